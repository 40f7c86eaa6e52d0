//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"errors"

	"github.com/momentics/hioload-basp/internal/sockets"
)

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

type poller struct{}

var errUnsupported = errors.New("reactor: this platform is not supported")

func newPoller(int) (*poller, error) { return nil, errUnsupported }

func (p *poller) add(sockets.Socket, Operation) error { return errUnsupported }
func (p *poller) mod(sockets.Socket, Operation) error { return errUnsupported }
func (p *poller) del(sockets.Socket) error            { return errUnsupported }
func (p *poller) close() error                        { return nil }

func (p *poller) wait(out []readyEvent, _ int) ([]readyEvent, error) {
	return out, errUnsupported
}

func currentThreadID() int64 { return 0 }
