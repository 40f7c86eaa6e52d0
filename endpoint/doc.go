// Author: momentics <momentics@gmail.com>

// Package endpoint implements the per-peer connection unit: a socket manager
// that owns a transport and a two-class outbound queue.
package endpoint
