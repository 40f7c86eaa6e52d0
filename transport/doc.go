// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport turns socket byte streams and datagrams into frames for an
// Application and drains outbound frames back to the socket.
package transport
