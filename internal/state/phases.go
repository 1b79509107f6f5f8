package state

// transitions is the expected forward path of a game. The leaderboard loops
// back to question for further rounds, or advances to winner selection and
// punishments once the game is finished; an explicit leave returns to home
// from anywhere. The server is authoritative, so this table documents the
// contract for tests rather than gating inbound phases at runtime.
var transitions = map[Phase][]Phase{
	PhaseHome:            {PhaseLobby},
	PhaseLobby:           {PhaseQuestion, PhaseHome},
	PhaseQuestion:        {PhaseVoting, PhaseHome},
	PhaseVoting:          {PhaseLeaderboard, PhaseHome},
	PhaseLeaderboard:     {PhaseQuestion, PhaseWinnerSelection, PhasePunishments, PhaseHome},
	PhaseWinnerSelection: {PhasePunishments, PhaseHome},
	PhasePunishments:     {PhaseHome},
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := transitions[p]
	return ok
}

// CanTransition reports whether moving from p to next follows the expected
// game flow.
func (p Phase) CanTransition(next Phase) bool {
	for _, t := range transitions[p] {
		if t == next {
			return true
		}
	}
	return false
}
