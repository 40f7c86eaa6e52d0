// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer recycling for connection transports. Each transport owns bounded
// header and payload caches; a full cache drops returned buffers instead of
// growing.
package pool
