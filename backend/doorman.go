// File: backend/doorman.go
// Author: momentics <momentics@gmail.com>
//
// Doorman accepts stream connections on a listening socket.

package backend

import (
	"errors"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/internal/sockets"
	"github.com/momentics/hioload-basp/reactor"
	"go.uber.org/zap"
)

type doorman struct {
	reactor.ManagerBase
	node *Node
	log  *zap.Logger
}

func (d *doorman) HandleReadEvent() bool {
	for {
		s, ep, err := sockets.Accept(d.Handle())
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return true
			}
			d.log.Warn("accept failed", zap.Error(err))
			return false
		}
		d.log.Debug("accepted connection", zap.Stringer("remote", ep))
		d.node.addConnection(s)
	}
}

func (d *doorman) HandleWriteEvent() bool { return false }

func (d *doorman) HandleError(err error) {
	d.log.Warn("listener failed", zap.Error(err))
}
