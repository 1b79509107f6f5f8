// Package state holds the client-side mirror of the server-authoritative
// game state: the data model, the normalizer that makes partial payloads
// safe, the phase transition table, and the mirror itself.
package state

type Phase string

const (
	PhaseHome            Phase = "home"
	PhaseLobby           Phase = "lobby"
	PhaseQuestion        Phase = "question"
	PhaseVoting          Phase = "voting"
	PhaseLeaderboard     Phase = "leaderboard"
	PhaseWinnerSelection Phase = "winnerSelection"
	PhasePunishments     Phase = "punishments"
)

type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Player identity is assigned by the server; the client only displays it.
// Index 0 in GameState.Players is the host.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Question struct {
	Text string `json:"text"`
}

type Answer struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	PlayerID string `json:"playerId,omitempty"`
}

// Punishment is a punishment assigned to a player after winner selection.
// The wire field for the assignee is playerId.
type Punishment struct {
	Text       string `json:"text"`
	Type       string `json:"type"`
	AssignedTo string `json:"playerId,omitempty"`
}

// PunishmentOption is an unassigned punishment offered to the winner.
type PunishmentOption struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// GameState is the full mirrored state. Every collection field is always a
// concrete, possibly empty container regardless of what the server sent;
// ConnectionStatus and IsReconnecting are client-local and never come off
// the wire.
type GameState struct {
	Phase                Phase              `json:"phase"`
	RoomCode             string             `json:"roomCode,omitempty"`
	Players              []Player           `json:"players"`
	Question             *Question          `json:"question,omitempty"`
	TargetPlayer         *Player            `json:"targetPlayer,omitempty"`
	Answers              []Answer           `json:"answers"`
	Scores               map[string]int     `json:"scores"`
	Votes                map[string]string  `json:"votes"`
	Ready                []string           `json:"ready"`
	Punishments          []Punishment       `json:"punishments"`
	AvailablePunishments []PunishmentOption `json:"availablePunishments"`
	WinnerID             string             `json:"winnerId,omitempty"`
	TiedWinners          []string           `json:"tiedWinners"`
	Round                int                `json:"round"`
	TotalRounds          int                `json:"totalRounds"`
	IsGameFinished       bool               `json:"isGameFinished"`

	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	IsReconnecting   bool             `json:"isReconnecting"`
}

// NewGameState returns the initial state: home phase, no room, every
// collection empty.
func NewGameState() GameState {
	return GameState{
		Phase:                PhaseHome,
		Players:              []Player{},
		Answers:              []Answer{},
		Scores:               map[string]int{},
		Votes:                map[string]string{},
		Ready:                []string{},
		Punishments:          []Punishment{},
		AvailablePunishments: []PunishmentOption{},
		TiedWinners:          []string{},
		ConnectionStatus:     StatusDisconnected,
	}
}
