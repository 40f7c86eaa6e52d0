//go:build linux
// +build linux

// File: internal/sockets/sockets_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket syscalls. Every handle is created non-blocking and close-on-exec.

package sockets

import (
	"errors"
	"net/netip"

	"github.com/momentics/hioload-basp/api"
	"golang.org/x/sys/unix"
)

func mapErr(syscall string, err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return api.ErrWouldBlock
	}
	return api.NewSyscallError(syscall, err)
}

// Close closes the descriptor.
func Close(s Socket) error {
	if !s.Valid() {
		return nil
	}
	if err := unix.Close(int(s)); err != nil {
		return api.NewSyscallError("close", err)
	}
	return nil
}

// SetNonblocking toggles O_NONBLOCK.
func SetNonblocking(s Socket, on bool) error {
	if err := unix.SetNonblock(int(s), on); err != nil {
		return api.NewSyscallError("fcntl", err)
	}
	return nil
}

// SetCloseOnExec sets FD_CLOEXEC.
func SetCloseOnExec(s Socket) error {
	if _, err := unix.FcntlInt(uintptr(s), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		return api.NewSyscallError("fcntl", err)
	}
	return nil
}

// SetNoDelay toggles TCP_NODELAY.
func SetNoDelay(s Socket, on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := unix.SetsockoptInt(int(s), unix.IPPROTO_TCP, unix.TCP_NODELAY, v); err != nil {
		return api.NewSyscallError("setsockopt", err)
	}
	return nil
}

// MakePipe returns a pipe. The read end is non-blocking, the write end blocks
// so that small control messages are never lost.
func MakePipe() (rd, wr Socket, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return Invalid, Invalid, api.NewSyscallError("pipe2", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return Invalid, Invalid, api.NewSyscallError("fcntl", err)
	}
	return Socket(fds[0]), Socket(fds[1]), nil
}

// StreamPair returns two connected non-blocking AF_UNIX stream sockets.
func StreamPair() (Socket, Socket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return Invalid, Invalid, api.NewSyscallError("socketpair", err)
	}
	return Socket(fds[0]), Socket(fds[1]), nil
}

// Read performs one non-blocking read. A closed peer yields ErrSocketDisconnected.
func Read(s Socket, buf []byte) (int, error) {
	n, err := unix.Read(int(s), buf)
	if err != nil {
		return 0, mapErr("read", err)
	}
	if n == 0 && len(buf) > 0 {
		return 0, api.ErrSocketDisconnected
	}
	return n, nil
}

// Write performs one non-blocking write.
func Write(s Socket, buf []byte) (int, error) {
	n, err := unix.Write(int(s), buf)
	if err != nil {
		if errors.Is(err, unix.EPIPE) {
			return 0, api.ErrSocketDisconnected
		}
		return 0, mapErr("write", err)
	}
	return n, nil
}

func toSockaddr(ap netip.AddrPort) unix.Sockaddr {
	addr := ap.Addr()
	if addr.Is4() || addr.Is4In6() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.Unmap().As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	}
	return netip.AddrPort{}
}

func family(ap netip.AddrPort) int {
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func newSocket(ap netip.AddrPort, typ int) (Socket, error) {
	fd, err := unix.Socket(family(ap), typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return Invalid, api.NewSyscallError("socket", err)
	}
	return Socket(fd), nil
}

// ListenTCP binds and listens on addr.
func ListenTCP(addr netip.AddrPort, backlog int) (Socket, error) {
	s, err := newSocket(addr, unix.SOCK_STREAM)
	if err != nil {
		return Invalid, err
	}
	_ = unix.SetsockoptInt(int(s), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(int(s), toSockaddr(addr)); err != nil {
		Close(s)
		return Invalid, api.NewSyscallError("bind", err)
	}
	if err := unix.Listen(int(s), backlog); err != nil {
		Close(s)
		return Invalid, api.NewSyscallError("listen", err)
	}
	return s, nil
}

// Accept accepts one pending connection.
func Accept(s Socket) (Socket, netip.AddrPort, error) {
	fd, sa, err := unix.Accept4(int(s), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return Invalid, netip.AddrPort{}, mapErr("accept", err)
	}
	return Socket(fd), fromSockaddr(sa), nil
}

// DialTCP connects to addr. The connect itself blocks; the returned socket is
// non-blocking.
func DialTCP(addr netip.AddrPort) (Socket, error) {
	fd, err := unix.Socket(family(addr), unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return Invalid, api.NewSyscallError("socket", err)
	}
	s := Socket(fd)
	if err := unix.Connect(fd, toSockaddr(addr)); err != nil {
		Close(s)
		return Invalid, api.NewSyscallError("connect", err)
	}
	if err := SetNonblocking(s, true); err != nil {
		Close(s)
		return Invalid, err
	}
	return s, nil
}

// ListenUDP binds a datagram socket on addr.
func ListenUDP(addr netip.AddrPort) (Socket, error) {
	s, err := newSocket(addr, unix.SOCK_DGRAM)
	if err != nil {
		return Invalid, err
	}
	if err := unix.Bind(int(s), toSockaddr(addr)); err != nil {
		Close(s)
		return Invalid, api.NewSyscallError("bind", err)
	}
	return s, nil
}

// RecvFrom reads one datagram.
func RecvFrom(s Socket, buf []byte) (int, netip.AddrPort, error) {
	n, sa, err := unix.Recvfrom(int(s), buf, 0)
	if err != nil {
		return 0, netip.AddrPort{}, mapErr("recvfrom", err)
	}
	return n, fromSockaddr(sa), nil
}

// SendTo writes bufs as one datagram to ep.
func SendTo(s Socket, bufs [][]byte, ep netip.AddrPort) (int, error) {
	n, err := unix.SendmsgBuffers(int(s), bufs, nil, toSockaddr(ep), unix.MSG_DONTWAIT)
	if err != nil {
		return 0, mapErr("sendmsg", err)
	}
	return n, nil
}

// LocalAddr returns the bound address of s.
func LocalAddr(s Socket) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(int(s))
	if err != nil {
		return netip.AddrPort{}, api.NewSyscallError("getsockname", err)
	}
	return fromSockaddr(sa), nil
}
