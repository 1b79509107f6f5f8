package state

import "encoding/json"

// rawState mirrors the wire shape of a full-state payload with every field
// optional, so a partial push can be told apart from an explicit value.
type rawState struct {
	Phase                *string         `json:"phase"`
	RoomCode             *string         `json:"roomCode"`
	Players              json.RawMessage `json:"players"`
	Question             json.RawMessage `json:"question"`
	TargetPlayer         json.RawMessage `json:"targetPlayer"`
	Answers              json.RawMessage `json:"answers"`
	Scores               json.RawMessage `json:"scores"`
	Votes                json.RawMessage `json:"votes"`
	Ready                json.RawMessage `json:"ready"`
	Punishments          json.RawMessage `json:"punishments"`
	AvailablePunishments json.RawMessage `json:"availablePunishments"`
	WinnerID             *string         `json:"winnerId"`
	TiedWinners          json.RawMessage `json:"tiedWinners"`
	Round                *int            `json:"round"`
	TotalRounds          *int            `json:"totalRounds"`
	IsGameFinished       *bool           `json:"isGameFinished"`
}

// Normalize merges a raw full-state payload over prev and returns a
// GameState that satisfies the model invariants: collections are always
// concrete containers, scalars keep their previous value when the payload
// omits them, and RoomCode is empty whenever the phase is home. A payload
// that is not a JSON object at all yields prev unchanged. Client-local
// fields (ConnectionStatus, IsReconnecting) are carried over from prev;
// the server never speaks for them.
func Normalize(prev GameState, raw []byte) GameState {
	var in rawState
	if err := json.Unmarshal(raw, &in); err != nil {
		return prev
	}

	out := prev

	if in.Phase != nil {
		out.Phase = Phase(*in.Phase)
	}
	if in.RoomCode != nil {
		out.RoomCode = *in.RoomCode
	}
	if in.WinnerID != nil {
		out.WinnerID = *in.WinnerID
	}
	if in.Round != nil {
		out.Round = *in.Round
	}
	if in.TotalRounds != nil {
		out.TotalRounds = *in.TotalRounds
	}
	if in.IsGameFinished != nil {
		out.IsGameFinished = *in.IsGameFinished
	}

	out.Players = coerceSlice[Player](in.Players)
	out.Answers = coerceSlice[Answer](in.Answers)
	out.Ready = coerceSlice[string](in.Ready)
	out.Punishments = coerceSlice[Punishment](in.Punishments)
	out.AvailablePunishments = coerceSlice[PunishmentOption](in.AvailablePunishments)
	out.TiedWinners = coerceSlice[string](in.TiedWinners)
	out.Scores = coerceMap[int](in.Scores)
	out.Votes = coerceMap[string](in.Votes)

	out.Question = coercePtr[Question](in.Question)
	out.TargetPlayer = coercePtr[Player](in.TargetPlayer)

	if out.Phase == PhaseHome {
		out.RoomCode = ""
	}

	return out
}

// coerceSlice decodes raw into a slice, substituting an empty slice when the
// value is missing, null, or not a list of the expected shape.
func coerceSlice[T any](raw json.RawMessage) []T {
	var v []T
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == nil {
		return []T{}
	}
	return v
}

func coerceMap[V any](raw json.RawMessage) map[string]V {
	var v map[string]V
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == nil {
		return map[string]V{}
	}
	return v
}

// coercePtr decodes raw into an optional struct; anything malformed reads
// as absent.
func coercePtr[T any](raw json.RawMessage) *T {
	var v *T
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return v
}
