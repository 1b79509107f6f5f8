// Package client runs the session and state synchronization loop: a single
// goroutine that owns the game state mirror and the session store, applies
// inbound server pushes, dispatches outbound intents, and drives the
// reconnection attempt at startup. One goroutine owning all mutation is
// what keeps the mirror race-free without locks.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/psychgame/client/internal/protocol"
	"github.com/psychgame/client/internal/session"
	"github.com/psychgame/client/internal/state"
	"github.com/psychgame/client/internal/transport"
)

var ErrClosed = errors.New("client: closed")

// DefaultRejoinTimeout bounds how long a rejoin attempt may sit without a
// terminal answer from the server before it is treated as failed.
const DefaultRejoinTimeout = 10 * time.Second

type NoticeKind string

const (
	// NoticeError is a server-reported application error. Shown once,
	// never mutates state.
	NoticeError NoticeKind = "error"
	// NoticeInfo covers informational confirmations (leftRoom,
	// playerKicked) and reconnection outcomes.
	NoticeInfo NoticeKind = "info"
	// NoticeKicked means this player was removed from the room.
	NoticeKicked NoticeKind = "kicked"
	// NoticeTimer carries the advisory round countdown.
	NoticeTimer NoticeKind = "timer"
)

// Notice is a user-facing event that is not part of the mirrored state.
type Notice struct {
	Kind    NoticeKind
	Message string
	Seconds int
}

// msg is the union of everything that can be posted to the client loop.
type msg interface{ isClientMsg() }

type createRoom struct {
	name   string
	avatar string
}

type joinRoom struct {
	code   string
	name   string
	avatar string
}

type leaveRoom struct{}

type kickPlayer struct{ target string }

type startGame struct{}

type playerReady struct{}

type submitAnswer struct{ answer string }

type vote struct{ answerID string }

type startPunishmentRound struct{}

type selectPunishments struct{ selected []state.PunishmentOption }

type subscribe struct {
	id     string
	outbox chan state.Snapshot
}

type unsubscribe struct{ id string }

type getState struct{ reply chan state.Snapshot }

type rejoinTimeout struct{ attempt uint64 }

func (createRoom) isClientMsg()           {}
func (joinRoom) isClientMsg()             {}
func (leaveRoom) isClientMsg()            {}
func (kickPlayer) isClientMsg()           {}
func (startGame) isClientMsg()            {}
func (playerReady) isClientMsg()          {}
func (submitAnswer) isClientMsg()         {}
func (vote) isClientMsg()                 {}
func (startPunishmentRound) isClientMsg() {}
func (selectPunishments) isClientMsg()    {}
func (subscribe) isClientMsg()            {}
func (unsubscribe) isClientMsg()          {}
func (getState) isClientMsg()             {}
func (rejoinTimeout) isClientMsg()        {}

type Options struct {
	// RejoinTimeout overrides DefaultRejoinTimeout when positive.
	RejoinTimeout time.Duration
}

type Client struct {
	inbox   chan msg
	notices chan Notice

	ch     transport.Channel
	store  *session.Store
	mirror *state.Mirror
	rc     *reconnector
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// seq counts inbound messages in arrival order; the mirror uses it to
	// refuse applying anything stale.
	seq uint64
}

// New starts the client loop. The transport and store are injected, never
// reached for globally. The reconnection attempt, if any, is issued inside
// the loop before the first message is processed, so it races fairly with
// any user-initiated join posted afterwards.
func New(parent context.Context, ch transport.Channel, store *session.Store, log zerolog.Logger, opts Options) *Client {
	ctx, cancel := context.WithCancel(parent)

	timeout := opts.RejoinTimeout
	if timeout <= 0 {
		timeout = DefaultRejoinTimeout
	}

	c := &Client{
		inbox:   make(chan msg, 64),
		notices: make(chan Notice, 16),
		ch:      ch,
		store:   store,
		mirror:  state.NewMirror(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.rc = &reconnector{c: c, timeout: timeout}

	go c.loop()
	return c
}

// Notices delivers user-facing events that are not part of the state
// mirror. The channel is closed on shutdown.
func (c *Client) Notices() <-chan Notice { return c.notices }

// Subscribe registers an outbox for state snapshots under id. The current
// snapshot is delivered immediately; outbox must have capacity for it.
func (c *Client) Subscribe(id string, outbox chan state.Snapshot) {
	c.post(subscribe{id: id, outbox: outbox})
}

func (c *Client) Unsubscribe(id string) {
	c.post(unsubscribe{id: id})
}

// State returns the current mirrored state via the loop, so callers on
// other goroutines never touch the mirror directly.
func (c *Client) State(ctx context.Context) (state.GameState, error) {
	reply := make(chan state.Snapshot, 1)
	select {
	case c.inbox <- getState{reply: reply}:
	case <-ctx.Done():
		return state.GameState{}, ctx.Err()
	case <-c.ctx.Done():
		return state.GameState{}, ErrClosed
	}
	select {
	case snap := <-reply:
		return snap.State, nil
	case <-ctx.Done():
		return state.GameState{}, ctx.Err()
	case <-c.ctx.Done():
		return state.GameState{}, ErrClosed
	}
}

// CreateRoom asks the server for a new room. The player id is created
// lazily and the profile is saved before the intent goes out.
func (c *Client) CreateRoom(playerName, avatar string) {
	c.post(createRoom{name: playerName, avatar: avatar})
}

// JoinRoom joins an existing room and persists the full session so a
// reload can rejoin.
func (c *Client) JoinRoom(roomCode, playerName, avatar string) {
	c.post(joinRoom{code: roomCode, name: playerName, avatar: avatar})
}

// LeaveRoom resets the local state to home immediately (the server push is
// not waited for) and clears the room-scoped session.
func (c *Client) LeaveRoom() { c.post(leaveRoom{}) }

// KickPlayer asks the server to remove a player. Host-only; authorization
// is the server's job.
func (c *Client) KickPlayer(targetPlayerID string) { c.post(kickPlayer{target: targetPlayerID}) }

func (c *Client) StartGame() { c.post(startGame{}) }

func (c *Client) PlayerReady() { c.post(playerReady{}) }

func (c *Client) SubmitAnswer(answer string) { c.post(submitAnswer{answer: answer}) }

func (c *Client) Vote(answerID string) { c.post(vote{answerID: answerID}) }

func (c *Client) StartPunishmentRound() { c.post(startPunishmentRound{}) }

// SelectPunishments sends the winner's chosen punishments. The winner id
// is taken from the mirrored state.
func (c *Client) SelectPunishments(selected []state.PunishmentOption) {
	c.post(selectPunishments{selected: selected})
}

// Close tears the loop down: the transport is closed, every subscriber
// outbox and the notices channel are closed, and no handler can touch the
// mirror afterwards.
func (c *Client) Close() {
	c.cancel()
	<-c.done
}

func (c *Client) post(m msg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}

func (c *Client) loop() {
	defer close(c.done)

	c.rc.start()

	events := c.ch.Events()
	for {
		select {
		case <-c.ctx.Done():
			c.teardown()
			return

		case ev, ok := <-events:
			if !ok {
				// Transport is gone for good.
				events = nil
				c.mirror.SetConnectionStatus(state.StatusDisconnected)
				continue
			}
			c.seq++
			c.handleInbound(c.seq, ev)

		case m := <-c.inbox:
			c.handleMsg(m)
		}
	}
}

func (c *Client) teardown() {
	c.rc.stop()
	if err := c.ch.Close(); err != nil {
		c.log.Debug().Err(err).Msg("transport close")
	}
	c.mirror.Close()
	close(c.notices)
}

func (c *Client) handleInbound(seq uint64, ev protocol.Inbound) {
	switch ev := ev.(type) {
	case protocol.Connected:
		c.mirror.SetConnectionStatus(state.StatusConnected)

	case protocol.Disconnected:
		c.mirror.SetConnectionStatus(state.StatusDisconnected)

	case protocol.GameStatePush:
		norm := state.Normalize(c.mirror.Current(), ev.State)
		if !c.mirror.Replace(seq, norm) {
			c.log.Debug().Uint64("seq", seq).Msg("stale state push ignored")
		}

	case protocol.PhaseChange:
		if !c.mirror.PatchPhase(seq, state.Phase(ev.Phase)) {
			c.log.Debug().Uint64("seq", seq).Msg("stale phase patch ignored")
		}

	case protocol.Reconnected:
		c.rc.onReconnected(seq, ev.State)

	case protocol.ReconnectFailed:
		c.rc.onFailed(ev.Reason)

	case protocol.Kicked:
		// Forced removal: the room scope goes, the profile stays.
		if err := c.store.ClearRoomScope(); err != nil {
			c.log.Warn().Err(err).Msg("clear room session")
		}
		c.mirror.ResetHome()
		c.notify(Notice{Kind: NoticeKicked, Message: ev.Message})

	case protocol.PlayerKicked:
		c.notify(Notice{Kind: NoticeInfo, Message: ev.Message})

	case protocol.LeftRoom:
		c.notify(Notice{Kind: NoticeInfo, Message: ev.Message})

	case protocol.ServerError:
		c.notify(Notice{Kind: NoticeError, Message: ev.Message})

	case protocol.TimerUpdate:
		c.notify(Notice{Kind: NoticeTimer, Seconds: ev.RemainingTime})
	}
}

func (c *Client) handleMsg(m msg) {
	switch m := m.(type) {
	case createRoom:
		id, err := c.store.GetOrCreatePlayerID()
		if err != nil {
			c.log.Warn().Err(err).Msg("create player id")
		}
		if err := c.store.SavePlayerName(m.name); err != nil {
			c.log.Warn().Err(err).Msg("save player name")
		}
		if m.avatar != "" {
			if err := c.store.SavePlayerAvatar(m.avatar); err != nil {
				c.log.Warn().Err(err).Msg("save avatar")
			}
		}
		c.send(protocol.CreateRoom{PlayerID: id, PlayerName: m.name, Avatar: m.avatar})

	case joinRoom:
		id, err := c.store.GetOrCreatePlayerID()
		if err != nil {
			c.log.Warn().Err(err).Msg("create player id")
		}
		if err := c.store.Save(id, m.name, m.code, m.avatar); err != nil {
			c.log.Warn().Err(err).Msg("save session")
		}
		c.send(protocol.JoinRoom{RoomCode: m.code, PlayerID: id, PlayerName: m.name, Avatar: m.avatar})

	case leaveRoom:
		code := c.mirror.Current().RoomCode
		playerID, _, _ := c.store.Profile()
		// Optimistic: back to home before the server confirms.
		c.mirror.ResetHome()
		if err := c.store.ClearRoomScope(); err != nil {
			c.log.Warn().Err(err).Msg("clear room session")
		}
		if code != "" {
			c.send(protocol.LeaveRoom{RoomCode: code, PlayerID: playerID})
		}

	case kickPlayer:
		c.send(protocol.KickPlayer{RoomCode: c.mirror.Current().RoomCode, TargetPlayerID: m.target})

	case startGame:
		c.send(protocol.StartGame{RoomCode: c.mirror.Current().RoomCode})

	case playerReady:
		c.send(protocol.PlayerReady{RoomCode: c.mirror.Current().RoomCode})

	case submitAnswer:
		c.send(protocol.SubmitAnswer{RoomCode: c.mirror.Current().RoomCode, Answer: m.answer})

	case vote:
		c.send(protocol.Vote{RoomCode: c.mirror.Current().RoomCode, AnswerID: m.answerID})

	case startPunishmentRound:
		c.send(protocol.StartPunishmentRound{RoomCode: c.mirror.Current().RoomCode})

	case selectPunishments:
		cur := c.mirror.Current()
		c.send(protocol.SelectPunishments{
			RoomCode:            cur.RoomCode,
			WinnerID:            cur.WinnerID,
			SelectedPunishments: m.selected,
		})

	case subscribe:
		c.mirror.Subscribe(m.id, m.outbox)

	case unsubscribe:
		c.mirror.Unsubscribe(m.id)

	case getState:
		m.reply <- state.Snapshot{Version: c.mirror.Version(), State: c.mirror.Current()}

	case rejoinTimeout:
		c.rc.onTimeout(m.attempt)
	}
}

func (c *Client) send(out protocol.Outbound) {
	if err := c.ch.Send(c.ctx, out); err != nil {
		c.log.Warn().Err(err).Str("event", protocol.Event(out)).Msg("send failed")
	}
}

func (c *Client) notify(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.log.Warn().Str("kind", string(n.Kind)).Msg("notice dropped, consumer too slow")
	}
}
