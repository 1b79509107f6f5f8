package state

// Snapshot is what subscribers receive on every mirror mutation.
type Snapshot struct {
	Version uint64
	State   GameState
}

// Mirror holds the single current GameState. It is owned by the client
// loop: every method must be called from that one goroutine, which is what
// makes mutation race-free without locks. Subscribers receive a snapshot
// synchronously within the turn that mutated the mirror.
//
// Inbound mutations (Replace, PatchPhase) carry the transport's monotonic
// arrival sequence; anything at or below the last applied sequence is
// stale and refused. Local mutations (connection status, reconnect flag,
// reset) always apply.
type Mirror struct {
	state   GameState
	version uint64
	lastSeq uint64
	subs    map[string]chan Snapshot
}

func NewMirror() *Mirror {
	return &Mirror{
		state: NewGameState(),
		subs:  make(map[string]chan Snapshot),
	}
}

// Current returns the mirrored state value.
func (m *Mirror) Current() GameState { return m.state }

// Version returns the number of mutations applied so far.
func (m *Mirror) Version() uint64 { return m.version }

// Replace swaps in a full normalized state. It reports whether the update
// was applied or refused as stale.
func (m *Mirror) Replace(seq uint64, s GameState) bool {
	if seq <= m.lastSeq {
		return false
	}
	m.lastSeq = seq
	m.state = s
	m.bump()
	return true
}

// PatchPhase overwrites only the phase field, leaving everything else
// untouched.
func (m *Mirror) PatchPhase(seq uint64, p Phase) bool {
	if seq <= m.lastSeq {
		return false
	}
	m.lastSeq = seq
	m.state.Phase = p
	if p == PhaseHome {
		m.state.RoomCode = ""
	}
	m.bump()
	return true
}

// SetConnectionStatus updates the transport status flag only.
func (m *Mirror) SetConnectionStatus(cs ConnectionStatus) {
	if m.state.ConnectionStatus == cs {
		return
	}
	m.state.ConnectionStatus = cs
	m.bump()
}

// SetReconnecting updates the reconnection flag only.
func (m *Mirror) SetReconnecting(v bool) {
	if m.state.IsReconnecting == v {
		return
	}
	m.state.IsReconnecting = v
	m.bump()
}

// ResetHome discards everything room-scoped and returns to the home phase,
// keeping only the client-local connection status.
func (m *Mirror) ResetHome() {
	cs := m.state.ConnectionStatus
	m.state = NewGameState()
	m.state.ConnectionStatus = cs
	m.bump()
}

// Subscribe registers an outbox for snapshots and immediately sends the
// current one.
func (m *Mirror) Subscribe(id string, outbox chan Snapshot) {
	m.subs[id] = outbox
	outbox <- Snapshot{Version: m.version, State: m.state}
}

func (m *Mirror) Unsubscribe(id string) {
	delete(m.subs, id)
}

// Close closes every subscriber outbox.
func (m *Mirror) Close() {
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

func (m *Mirror) bump() {
	m.version++
	m.broadcast(Snapshot{Version: m.version, State: m.state})
}

func (m *Mirror) broadcast(snap Snapshot) {
	for id, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// Subscriber is slow/full - drop it.
			close(ch)
			delete(m.subs, id)
		}
	}
}
