package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/psychgame/client/internal/state"
)

// StateProvider is the narrow slice of the client the debug surface needs.
type StateProvider interface {
	State(ctx context.Context) (state.GameState, error)
}

// CurrentState serves the mirrored game state as JSON.
func CurrentState(c StateProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := c.State(r.Context())
		if err != nil {
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
