// File: reactor/pollset_updater.go
// Author: momentics <momentics@gmail.com>
//
// Internal manager that reads the self-pipe and applies queued updates.

package reactor

import (
	"errors"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/internal/sockets"
	"go.uber.org/zap"
)

var (
	errHangup     = api.ErrSocketDisconnected
	errPollFailed = errors.New("socket operation failed")
)

type pollsetUpdater struct {
	ManagerBase
	buf [64]byte
}

func newPollsetUpdater(rd sockets.Socket, mpx *Multiplexer) *pollsetUpdater {
	return &pollsetUpdater{ManagerBase: NewManagerBase(rd, mpx)}
}

func (u *pollsetUpdater) HandleReadEvent() bool {
	for {
		_, err := sockets.Read(u.handle, u.buf[:])
		if err == nil {
			continue
		}
		// Requests queued before the pipe closed are still applied.
		u.mpx.drainPending()
		if errors.Is(err, api.ErrWouldBlock) {
			return true
		}
		if !errors.Is(err, api.ErrSocketDisconnected) {
			u.mpx.log.Warn("pollset updater failed", zap.Error(err))
		}
		return false
	}
}

func (u *pollsetUpdater) HandleWriteEvent() bool { return false }

func (u *pollsetUpdater) HandleError(err error) {
	u.mpx.log.Debug("pollset updater error", zap.Error(err))
}
