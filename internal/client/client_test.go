package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychgame/client/internal/protocol"
	"github.com/psychgame/client/internal/session"
	"github.com/psychgame/client/internal/state"
)

// fakeChannel stands in for the websocket transport: tests push inbound
// messages and observe what the client sends.
type fakeChannel struct {
	events chan protocol.Inbound
	sent   chan protocol.Outbound

	mu     sync.Mutex
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events: make(chan protocol.Inbound, 16),
		sent:   make(chan protocol.Outbound, 16),
	}
}

func (f *fakeChannel) Send(_ context.Context, msg protocol.Outbound) error {
	f.sent <- msg
	return nil
}

func (f *fakeChannel) Events() <-chan protocol.Inbound { return f.events }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// helper: receive one outbound message with a timeout so tests never hang
func recvSent(t *testing.T, ch <-chan protocol.Outbound, within time.Duration) protocol.Outbound {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for outbound message")
		return nil // unreachable
	}
}

func recvNoSent(t *testing.T, ch <-chan protocol.Outbound, within time.Duration) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("expected no outbound message within %v, but got: %+v", within, msg)
	case <-time.After(within):
	}
}

func recvNotice(t *testing.T, ch <-chan Notice, within time.Duration) Notice {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(within):
		t.Fatalf("timed out waiting for notice")
		return Notice{} // unreachable
	}
}

func newTestClient(t *testing.T, ch *fakeChannel, store *session.Store, opts Options) *Client {
	t.Helper()
	c := New(context.Background(), ch, store, zerolog.Nop(), opts)
	t.Cleanup(c.Close)
	return c
}

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(afero.NewMemMapFs(), "session.json")
}

func mustState(t *testing.T, c *Client) state.GameState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := c.State(ctx)
	require.NoError(t, err)
	return st
}

func eventuallyState(t *testing.T, c *Client, pred func(state.GameState) bool) state.GameState {
	t.Helper()
	var last state.GameState
	require.Eventually(t, func() bool {
		last = mustState(t, c)
		return pred(last)
	}, time.Second, 5*time.Millisecond)
	return last
}

func TestClient_NoStoredSession_NeverRejoins(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, ch, newTestStore(t), Options{})

	recvNoSent(t, ch.sent, 150*time.Millisecond)
	assert.False(t, mustState(t, c).IsReconnecting)
}

func TestClient_StoredSession_RejoinsAndMergesState(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("p1", "Ana", "ABCD", "data:x"))

	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{})

	msg := recvSent(t, ch.sent, time.Second)
	rejoin, ok := msg.(protocol.RejoinRoom)
	require.True(t, ok, "expected rejoinRoom, got %T", msg)
	assert.Equal(t, "ABCD", rejoin.RoomCode)
	assert.Equal(t, "p1", rejoin.PlayerID)
	assert.Equal(t, "Ana", rejoin.PlayerName)
	assert.Equal(t, "data:x", rejoin.Avatar)

	// Exactly one attempt, flagged before any response arrives.
	recvNoSent(t, ch.sent, 100*time.Millisecond)
	assert.True(t, mustState(t, c).IsReconnecting)

	ch.events <- protocol.Reconnected{State: json.RawMessage(`{"phase":"lobby","roomCode":"ABCD","players":[{"id":"p1","name":"Ana"},{"id":"p2","name":"Luis"}]}`)}

	st := eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseLobby })
	assert.Equal(t, "ABCD", st.RoomCode)
	require.Len(t, st.Players, 2)
	assert.False(t, st.IsReconnecting)
	assert.Equal(t, state.StatusConnected, st.ConnectionStatus)
}

func TestClient_ReconnectFailed_ClearsSessionAndResets(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("p1", "Ana", "ABCD", ""))

	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{})

	_ = recvSent(t, ch.sent, time.Second) // the rejoin attempt

	ch.events <- protocol.ReconnectFailed{Reason: "room closed"}

	st := eventuallyState(t, c, func(s state.GameState) bool { return !s.IsReconnecting })
	assert.Equal(t, state.PhaseHome, st.Phase)
	assert.Empty(t, st.RoomCode)
	assert.Empty(t, st.Players)

	_, ok := store.Read()
	assert.False(t, ok, "session should be gone")
	id, name, _ := store.Profile()
	assert.Empty(t, id, "failed reconnect clears the whole session, profile included")
	assert.Empty(t, name)
}

func TestClient_RejoinTimesOutWithoutAnswer(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("p1", "Ana", "ABCD", ""))

	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{RejoinTimeout: 50 * time.Millisecond})

	_ = recvSent(t, ch.sent, time.Second)

	st := eventuallyState(t, c, func(s state.GameState) bool { return !s.IsReconnecting })
	assert.Equal(t, state.PhaseHome, st.Phase)
	_, ok := store.Read()
	assert.False(t, ok)
}

func TestClient_LateReconnectedAfterTimeoutIsHarmless(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("p1", "Ana", "ABCD", ""))

	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{RejoinTimeout: 30 * time.Millisecond})

	_ = recvSent(t, ch.sent, time.Second)
	eventuallyState(t, c, func(s state.GameState) bool { return !s.IsReconnecting })

	// The server answers after the local timeout already failed the
	// attempt. The state payload still applies (it is fresher than
	// anything local) but must not wedge the reconnecting flag.
	ch.events <- protocol.Reconnected{State: json.RawMessage(`{"phase":"lobby","roomCode":"ABCD"}`)}
	st := eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseLobby })
	assert.False(t, st.IsReconnecting)
}

func TestClient_CreateRoom_GeneratesIdOnceAndSavesProfile(t *testing.T) {
	store := newTestStore(t)
	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{})

	c.CreateRoom("Ana", "")

	msg := recvSent(t, ch.sent, time.Second)
	create, ok := msg.(protocol.CreateRoom)
	require.True(t, ok, "expected createRoom, got %T", msg)
	assert.Equal(t, "Ana", create.PlayerName)
	assert.True(t, strings.HasPrefix(create.PlayerID, "player_"))

	id, name, _ := store.Profile()
	assert.Equal(t, create.PlayerID, id)
	assert.Equal(t, "Ana", name)

	// The same identity is reused on the next intent.
	c.CreateRoom("Ana", "")
	again := recvSent(t, ch.sent, time.Second).(protocol.CreateRoom)
	assert.Equal(t, create.PlayerID, again.PlayerID)
}

func TestClient_JoinRoom_PersistsFullSession(t *testing.T) {
	store := newTestStore(t)
	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{})

	c.JoinRoom("ABCD", "Ana", "data:x")

	msg := recvSent(t, ch.sent, time.Second)
	join, ok := msg.(protocol.JoinRoom)
	require.True(t, ok, "expected joinRoom, got %T", msg)
	assert.Equal(t, "ABCD", join.RoomCode)

	rec, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, "ABCD", rec.RoomCode)
	assert.Equal(t, "Ana", rec.PlayerName)
	assert.Equal(t, join.PlayerID, rec.PlayerID)
}

func TestClient_GameStatePush_NormalizedThroughLoop(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, ch, newTestStore(t), Options{})

	ch.events <- protocol.GameStatePush{State: json.RawMessage(`{"phase":"lobby","roomCode":"ABCD","scores":null}`)}

	st := eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseLobby })
	assert.Equal(t, []state.Player{}, st.Players)
	assert.Equal(t, map[string]int{}, st.Scores)
}

func TestClient_PhasePatch_LeavesRestIntact(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, ch, newTestStore(t), Options{})

	ch.events <- protocol.GameStatePush{State: json.RawMessage(`{"phase":"question","roomCode":"ABCD","players":[{"id":"p1","name":"Ana"}],"question":{"text":"¿Qué?"}}`)}
	eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseQuestion })

	ch.events <- protocol.PhaseChange{Phase: "voting"}

	st := eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseVoting })
	assert.Equal(t, "ABCD", st.RoomCode)
	require.Len(t, st.Players, 1)
	require.NotNil(t, st.Question)
	assert.Equal(t, "¿Qué?", st.Question.Text)
}

func TestClient_LeaveRoom_OptimisticResetAndRoomScopeCleared(t *testing.T) {
	store := newTestStore(t)
	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{})

	c.JoinRoom("ABCD", "Ana", "")
	_ = recvSent(t, ch.sent, time.Second)
	ch.events <- protocol.GameStatePush{State: json.RawMessage(`{"phase":"lobby","roomCode":"ABCD"}`)}
	eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseLobby })

	c.LeaveRoom()

	// The reset happens before the send, not on a server reply.
	st := mustState(t, c)
	assert.Equal(t, state.PhaseHome, st.Phase)
	assert.Empty(t, st.RoomCode)

	msg := recvSent(t, ch.sent, time.Second)
	leave, ok := msg.(protocol.LeaveRoom)
	require.True(t, ok, "expected leaveRoom, got %T", msg)
	assert.Equal(t, "ABCD", leave.RoomCode)

	_, ok = store.Read()
	assert.False(t, ok)
	_, name, _ := store.Profile()
	assert.Equal(t, "Ana", name, "profile survives leaving a room")
}

func TestClient_Kicked_ClearsRoomScopeKeepsProfile(t *testing.T) {
	store := newTestStore(t)
	ch := newFakeChannel()
	c := newTestClient(t, ch, store, Options{})

	c.JoinRoom("ABCD", "Ana", "")
	_ = recvSent(t, ch.sent, time.Second)
	ch.events <- protocol.GameStatePush{State: json.RawMessage(`{"phase":"lobby","roomCode":"ABCD"}`)}
	eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseLobby })

	ch.events <- protocol.Kicked{Message: "el host te ha expulsado"}

	n := recvNotice(t, c.Notices(), time.Second)
	assert.Equal(t, NoticeKicked, n.Kind)

	st := eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseHome })
	assert.Empty(t, st.RoomCode)

	_, ok := store.Read()
	assert.False(t, ok)
	_, name, _ := store.Profile()
	assert.Equal(t, "Ana", name)
}

func TestClient_ServerError_NoticeOnlyNoStateChange(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, ch, newTestStore(t), Options{})

	ch.events <- protocol.GameStatePush{State: json.RawMessage(`{"phase":"lobby","roomCode":"ABCD"}`)}
	before := eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseLobby })

	ch.events <- protocol.ServerError{Message: "sala llena"}

	n := recvNotice(t, c.Notices(), time.Second)
	assert.Equal(t, NoticeError, n.Kind)
	assert.Equal(t, "sala llena", n.Message)

	assert.Equal(t, before, mustState(t, c))
}

func TestClient_TimerUpdate_AdvisoryOnly(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, ch, newTestStore(t), Options{})

	ch.events <- protocol.GameStatePush{State: json.RawMessage(`{"phase":"question","roomCode":"ABCD"}`)}
	eventuallyState(t, c, func(s state.GameState) bool { return s.Phase == state.PhaseQuestion })

	ch.events <- protocol.TimerUpdate{RemainingTime: 12}

	n := recvNotice(t, c.Notices(), time.Second)
	assert.Equal(t, NoticeTimer, n.Kind)
	assert.Equal(t, 12, n.Seconds)
	assert.Equal(t, state.PhaseQuestion, mustState(t, c).Phase)
}

func TestClient_ConnectionStatusFollowsTransport(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, ch, newTestStore(t), Options{})

	ch.events <- protocol.Connected{}
	st := eventuallyState(t, c, func(s state.GameState) bool { return s.ConnectionStatus == state.StatusConnected })
	assert.Equal(t, state.PhaseHome, st.Phase, "transport status never touches the phase")

	ch.events <- protocol.Disconnected{}
	eventuallyState(t, c, func(s state.GameState) bool { return s.ConnectionStatus == state.StatusDisconnected })
}

func TestClient_IntentsCarryCurrentRoomCode(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, ch, newTestStore(t), Options{})

	ch.events <- protocol.GameStatePush{State: json.RawMessage(`{"phase":"voting","roomCode":"WXYZ","winnerId":"p1"}`)}
	eventuallyState(t, c, func(s state.GameState) bool { return s.RoomCode == "WXYZ" })

	c.StartGame()
	assert.Equal(t, protocol.StartGame{RoomCode: "WXYZ"}, recvSent(t, ch.sent, time.Second))

	c.PlayerReady()
	assert.Equal(t, protocol.PlayerReady{RoomCode: "WXYZ"}, recvSent(t, ch.sent, time.Second))

	c.SubmitAnswer("una respuesta")
	assert.Equal(t, protocol.SubmitAnswer{RoomCode: "WXYZ", Answer: "una respuesta"}, recvSent(t, ch.sent, time.Second))

	c.Vote("a1")
	assert.Equal(t, protocol.Vote{RoomCode: "WXYZ", AnswerID: "a1"}, recvSent(t, ch.sent, time.Second))

	c.KickPlayer("p2")
	assert.Equal(t, protocol.KickPlayer{RoomCode: "WXYZ", TargetPlayerID: "p2"}, recvSent(t, ch.sent, time.Second))

	c.StartPunishmentRound()
	assert.Equal(t, protocol.StartPunishmentRound{RoomCode: "WXYZ"}, recvSent(t, ch.sent, time.Second))

	c.SelectPunishments([]state.PunishmentOption{{Text: "canta", Type: "funny"}})
	sel := recvSent(t, ch.sent, time.Second).(protocol.SelectPunishments)
	assert.Equal(t, "WXYZ", sel.RoomCode)
	assert.Equal(t, "p1", sel.WinnerID)
	require.Len(t, sel.SelectedPunishments, 1)
}

func TestClient_Close_TearsEverythingDown(t *testing.T) {
	ch := newFakeChannel()
	c := New(context.Background(), ch, newTestStore(t), zerolog.Nop(), Options{})

	snaps := make(chan state.Snapshot, 8)
	c.Subscribe("ui", snaps)
	require.Eventually(t, func() bool {
		select {
		case <-snaps:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	c.Close()

	assert.True(t, ch.isClosed(), "transport should be closed")

	_, open := <-c.Notices()
	assert.False(t, open, "notices should be closed")

	drained := false
	for !drained {
		select {
		case _, open := <-snaps:
			if !open {
				drained = true
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber outbox was never closed")
		}
	}

	// A query after shutdown fails instead of hanging.
	_, err := c.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
