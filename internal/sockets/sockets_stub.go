//go:build !linux
// +build !linux

// File: internal/sockets/sockets_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package sockets

import (
	"net/netip"

	"github.com/momentics/hioload-basp/api"
)

func Close(Socket) error                { return api.ErrNotSupported }
func SetNonblocking(Socket, bool) error { return api.ErrNotSupported }
func SetCloseOnExec(Socket) error       { return api.ErrNotSupported }
func SetNoDelay(Socket, bool) error     { return api.ErrNotSupported }

func MakePipe() (Socket, Socket, error)   { return Invalid, Invalid, api.ErrNotSupported }
func StreamPair() (Socket, Socket, error) { return Invalid, Invalid, api.ErrNotSupported }

func Read(Socket, []byte) (int, error)  { return 0, api.ErrNotSupported }
func Write(Socket, []byte) (int, error) { return 0, api.ErrNotSupported }

func ListenTCP(netip.AddrPort, int) (Socket, error) { return Invalid, api.ErrNotSupported }
func Accept(Socket) (Socket, netip.AddrPort, error) {
	return Invalid, netip.AddrPort{}, api.ErrNotSupported
}
func DialTCP(netip.AddrPort) (Socket, error)   { return Invalid, api.ErrNotSupported }
func ListenUDP(netip.AddrPort) (Socket, error) { return Invalid, api.ErrNotSupported }
func RecvFrom(Socket, []byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, api.ErrNotSupported
}
func SendTo(Socket, [][]byte, netip.AddrPort) (int, error) { return 0, api.ErrNotSupported }
func LocalAddr(Socket) (netip.AddrPort, error)             { return netip.AddrPort{}, api.ErrNotSupported }
