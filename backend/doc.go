// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package backend wires the protocol engine into a running node: it owns the
// multiplexer thread, accepts and opens stream connections, serves a datagram
// socket, and routes proxies to the endpoint of their node.
package backend
