package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/api/middleware"
	"github.com/dvloznov/artho/internal/session"
)

// SessionHandler locks and unlocks the PIN gate.
type SessionHandler struct {
	gate *session.Gate
	log  zerolog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(gate *session.Gate, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{gate: gate, log: log}
}

// Status handles GET /api/session
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"unlocked": h.gate.Unlocked()})
}

// Unlock handles POST /api/session/unlock
func (h *SessionHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.gate.Unlock(req.PIN) {
		h.log.Warn().Msg("Wrong PIN entered")
		middleware.WriteError(w, http.StatusUnauthorized, "Wrong PIN")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"unlocked": true})
}

// Lock handles POST /api/session/lock
func (h *SessionHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.gate.Lock()
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"unlocked": false})
}
