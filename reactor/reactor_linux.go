//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller. Level-triggered: a manager that leaves data
// unread is polled again on the next pass.

package reactor

import (
	"errors"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/internal/sockets"
	"golang.org/x/sys/unix"
)

// readiness flags reported by the poller.
const (
	evRead uint32 = 1 << iota
	evWrite
	evError
	evHangup
)

type readyEvent struct {
	fd    sockets.Socket
	flags uint32
}

// poller is an epoll instance.
type poller struct {
	epfd int
	raw  []unix.EpollEvent
}

func newPoller(maxEvents int) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewSyscallError("epoll_create1", err)
	}
	return &poller{epfd: epfd, raw: make([]unix.EpollEvent, maxEvents)}, nil
}

func toEpoll(op Operation) uint32 {
	var ev uint32
	if op&OpRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if op&OpWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *poller) ctl(op int, fd sockets.Socket, interest Operation) error {
	event := &unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, int(fd), event); err != nil {
		return api.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *poller) add(fd sockets.Socket, interest Operation) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, interest)
}

func (p *poller) mod(fd sockets.Socket, interest Operation) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, interest)
}

func (p *poller) del(fd sockets.Socket) error {
	return p.ctl(unix.EPOLL_CTL_DEL, fd, OpNone)
}

// wait polls once. timeoutMs < 0 blocks. An interrupted call yields no events.
func (p *poller) wait(out []readyEvent, timeoutMs int) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.raw, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return out, nil
		}
		return out, api.NewSyscallError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		raw := p.raw[i]
		var flags uint32
		if raw.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
			flags |= evRead
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			flags |= evWrite
		}
		if raw.Events&unix.EPOLLERR != 0 {
			flags |= evError
		}
		if raw.Events&unix.EPOLLHUP != 0 {
			flags |= evHangup
		}
		out = append(out, readyEvent{fd: sockets.Socket(raw.Fd), flags: flags})
	}
	return out, nil
}

func (p *poller) close() error {
	if err := unix.Close(p.epfd); err != nil {
		return api.NewSyscallError("close", err)
	}
	return nil
}

func currentThreadID() int64 {
	return int64(unix.Gettid())
}
