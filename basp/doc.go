// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package basp implements the Binary Actor System Protocol: the 13-byte frame
// header, the per-connection protocol state machine, and the ordered
// delivery pipeline that deserializes actor messages on a worker pool while
// preserving per-connection ordering.
package basp
