package client

import (
	"encoding/json"
	"time"

	"github.com/psychgame/client/internal/protocol"
	"github.com/psychgame/client/internal/state"
)

type rcPhase int

const (
	rcIdle rcPhase = iota
	rcAttempting
	rcSucceeded
	rcFailed
)

// reconnector drives the one-shot rejoin attempt at startup. All methods
// run on the client loop goroutine; the timer callback only posts a
// message back into the loop.
//
// idle -> attempting: a valid stored session exists at startup.
// attempting -> succeeded: a reconnected push arrived.
// attempting -> failed: a reconnectFailed push arrived, or the attempt
// timer expired without either terminal message.
type reconnector struct {
	c       *Client
	timeout time.Duration
	phase   rcPhase
	attempt uint64
	timer   *time.Timer
}

// start reads the session store once. Without a valid record the
// reconnector stays idle and never sends anything; with one it flags the
// mirror as reconnecting and sends a single rejoinRoom before any other
// message is processed.
func (r *reconnector) start() {
	rec, ok := r.c.store.Read()
	if !ok {
		return
	}

	r.phase = rcAttempting
	r.attempt++
	r.c.mirror.SetReconnecting(true)
	r.c.log.Info().Str("room", rec.RoomCode).Msg("rejoining stored session")
	r.c.send(protocol.RejoinRoom{
		RoomCode:   rec.RoomCode,
		PlayerID:   rec.PlayerID,
		PlayerName: rec.PlayerName,
		Avatar:     rec.PlayerAvatar,
	})

	attempt := r.attempt
	r.timer = time.AfterFunc(r.timeout, func() {
		r.c.post(rejoinTimeout{attempt: attempt})
	})
}

func (r *reconnector) onReconnected(seq uint64, raw json.RawMessage) {
	r.stop()
	r.phase = rcSucceeded

	norm := state.Normalize(r.c.mirror.Current(), raw)
	r.c.mirror.Replace(seq, norm)
	r.c.mirror.SetReconnecting(false)
	r.c.mirror.SetConnectionStatus(state.StatusConnected)
}

// onFailed handles the terminal failure: the whole session is cleared, not
// just the room scope, and the state resets to home. Clearing the profile
// too mirrors the server's view that the identity is no longer resumable.
func (r *reconnector) onFailed(reason string) {
	if r.phase != rcAttempting {
		return
	}
	r.stop()
	r.phase = rcFailed

	if err := r.c.store.ClearAll(); err != nil {
		r.c.log.Warn().Err(err).Msg("clear session")
	}
	r.c.mirror.ResetHome()
	r.c.mirror.SetReconnecting(false)
	r.c.log.Info().Str("reason", reason).Msg("reconnect failed")
	r.c.notify(Notice{Kind: NoticeInfo, Message: "No se pudo reconectar a la sala"})
}

// onTimeout fires when the attempt never received a terminal message. The
// attempt counter guards against a timer from a superseded attempt.
func (r *reconnector) onTimeout(attempt uint64) {
	if r.phase != rcAttempting || attempt != r.attempt {
		return
	}
	r.onFailed("timed out")
}

func (r *reconnector) stop() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
