// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the poll-mode multiplexer that owns socket managers
// and dispatches readiness events to them on a single reactor thread.
package reactor
