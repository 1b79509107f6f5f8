// Package protocol defines the message contract with the game server: a
// closed set of inbound and outbound message types plus the JSON envelope
// codec used on the wire. Adding a new event name means adding a type here,
// so an unhandled message is a compile-time hole, not a silent drop.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/psychgame/client/internal/state"
)

var ErrUnknownEvent = errors.New("unknown event")

// Envelope is the wire framing for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Server -> client event names.
const (
	EventGameState       = "gameState"
	EventPhaseChange     = "phaseChange"
	EventReconnected     = "reconnected"
	EventReconnectFailed = "reconnectFailed"
	EventKicked          = "kicked"
	EventPlayerKicked    = "playerKicked"
	EventLeftRoom        = "leftRoom"
	EventError           = "error"
	EventTimerUpdate     = "timerUpdate"
)

// Client -> server event names.
const (
	EventCreateRoom           = "createRoom"
	EventJoinRoom             = "joinRoom"
	EventRejoinRoom           = "rejoinRoom"
	EventLeaveRoom            = "leaveRoom"
	EventKickPlayer           = "kickPlayer"
	EventStartGame            = "startGame"
	EventPlayerReady          = "playerReady"
	EventSubmitAnswer         = "submitAnswer"
	EventVote                 = "vote"
	EventStartPunishmentRound = "startPunishmentRound"
	EventSelectPunishments    = "selectPunishments"
)

// Inbound is the union of everything the server (or the transport itself)
// can deliver to the client loop.
type Inbound interface{ isInbound() }

// GameStatePush carries a full replacement state. The payload is kept raw
// here; normalization happens in the state package against the previous
// mirror value.
type GameStatePush struct {
	State json.RawMessage
}

// PhaseChange patches only the phase field of the mirror.
type PhaseChange struct {
	Phase string `json:"phase"`
}

// Reconnected is the terminal success of a rejoin attempt, carrying the
// full room state.
type Reconnected struct {
	State json.RawMessage
}

// ReconnectFailed is the terminal failure of a rejoin attempt.
type ReconnectFailed struct {
	Reason string `json:"reason"`
}

// Kicked means this player was removed from the room by the host.
type Kicked struct {
	Message string `json:"message"`
}

// PlayerKicked confirms a kick this player issued as host.
type PlayerKicked struct {
	Message string `json:"message"`
}

// LeftRoom confirms a voluntary leave.
type LeftRoom struct {
	Message string `json:"message"`
}

// ServerError is an application-level error report. It never mutates state.
type ServerError struct {
	Message string `json:"message"`
}

// TimerUpdate is an advisory countdown, in seconds. It is not authoritative
// for the game phase.
type TimerUpdate struct {
	RemainingTime int `json:"remainingTime"`
}

// Connected and Disconnected are synthesized by the transport, never decoded
// off the wire. They report low-level link status only.
type Connected struct{}
type Disconnected struct{}

func (GameStatePush) isInbound()   {}
func (PhaseChange) isInbound()     {}
func (Reconnected) isInbound()     {}
func (ReconnectFailed) isInbound() {}
func (Kicked) isInbound()          {}
func (PlayerKicked) isInbound()    {}
func (LeftRoom) isInbound()        {}
func (ServerError) isInbound()     {}
func (TimerUpdate) isInbound()     {}
func (Connected) isInbound()       {}
func (Disconnected) isInbound()    {}

// DecodeInbound parses one wire frame into its typed message.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventGameState:
		return GameStatePush{State: env.Data}, nil
	case EventPhaseChange:
		var m PhaseChange
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return m, nil
	case EventReconnected:
		return Reconnected{State: env.Data}, nil
	case EventReconnectFailed:
		var m ReconnectFailed
		// A bare string reason is also accepted.
		if err := json.Unmarshal(env.Data, &m); err != nil {
			var reason string
			if err := json.Unmarshal(env.Data, &reason); err != nil {
				return nil, fmt.Errorf("decode %s: %w", env.Event, err)
			}
			m.Reason = reason
		}
		return m, nil
	case EventKicked:
		var m Kicked
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return m, nil
	case EventPlayerKicked:
		var m PlayerKicked
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return m, nil
	case EventLeftRoom:
		var m LeftRoom
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return m, nil
	case EventError:
		var m ServerError
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return m, nil
	case EventTimerUpdate:
		var m TimerUpdate
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// Outbound is the union of every intent the client can send.
type Outbound interface {
	isOutbound()
	event() string
}

type CreateRoom struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Avatar     string `json:"avatar,omitempty"`
}

type JoinRoom struct {
	RoomCode   string `json:"roomCode"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Avatar     string `json:"avatar,omitempty"`
}

type RejoinRoom struct {
	RoomCode   string `json:"roomCode"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Avatar     string `json:"avatar,omitempty"`
}

type LeaveRoom struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type KickPlayer struct {
	RoomCode       string `json:"roomCode"`
	TargetPlayerID string `json:"targetPlayerId"`
}

type StartGame struct {
	RoomCode string `json:"roomCode"`
}

type PlayerReady struct {
	RoomCode string `json:"roomCode"`
}

type SubmitAnswer struct {
	RoomCode string `json:"roomCode"`
	Answer   string `json:"answer"`
}

type Vote struct {
	RoomCode string `json:"roomCode"`
	AnswerID string `json:"answerId"`
}

type StartPunishmentRound struct {
	RoomCode string `json:"roomCode"`
}

type SelectPunishments struct {
	RoomCode            string                   `json:"roomCode"`
	WinnerID            string                   `json:"winnerId"`
	SelectedPunishments []state.PunishmentOption `json:"selectedPunishments"`
}

func (CreateRoom) isOutbound()           {}
func (JoinRoom) isOutbound()             {}
func (RejoinRoom) isOutbound()           {}
func (LeaveRoom) isOutbound()            {}
func (KickPlayer) isOutbound()           {}
func (StartGame) isOutbound()            {}
func (PlayerReady) isOutbound()          {}
func (SubmitAnswer) isOutbound()         {}
func (Vote) isOutbound()                 {}
func (StartPunishmentRound) isOutbound() {}
func (SelectPunishments) isOutbound()    {}

func (CreateRoom) event() string           { return EventCreateRoom }
func (JoinRoom) event() string             { return EventJoinRoom }
func (RejoinRoom) event() string           { return EventRejoinRoom }
func (LeaveRoom) event() string            { return EventLeaveRoom }
func (KickPlayer) event() string           { return EventKickPlayer }
func (StartGame) event() string            { return EventStartGame }
func (PlayerReady) event() string          { return EventPlayerReady }
func (SubmitAnswer) event() string         { return EventSubmitAnswer }
func (Vote) event() string                 { return EventVote }
func (StartPunishmentRound) event() string { return EventStartPunishmentRound }
func (SelectPunishments) event() string    { return EventSelectPunishments }

// Event reports the wire name an outbound message is sent under.
func Event(m Outbound) string { return m.event() }

// EncodeOutbound wraps an intent in its envelope and marshals it.
func EncodeOutbound(m Outbound) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.event(), err)
	}
	return json.Marshal(Envelope{Event: m.event(), Data: data})
}
