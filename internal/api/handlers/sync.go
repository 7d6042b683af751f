package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/api/middleware"
	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/jobs"
	"github.com/dvloznov/artho/internal/reconcile"
)

// Syncer is the reconciliation surface the sync endpoints drive.
type Syncer interface {
	State() domain.SyncState
	Conflict() *domain.Snapshot
	Sync(ctx context.Context) (reconcile.Outcome, error)
	ResolveConflict(ctx context.Context, choice reconcile.Choice) (reconcile.Outcome, error)
	Connect(ctx context.Context, token string, expiresIn time.Duration) (reconcile.Outcome, error)
	Disconnect(ctx context.Context) error
}

// ChangeNotifier is told when sync replaced local data.
type ChangeNotifier interface {
	Changed(ctx context.Context, trigger jobs.Trigger)
}

// SyncHandler handles cloud sync endpoints. A nil Syncer means sync is not
// configured and every endpoint answers 503.
type SyncHandler struct {
	syncer   Syncer
	notifier ChangeNotifier
	log      zerolog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncer Syncer, notifier ChangeNotifier, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{syncer: syncer, notifier: notifier, log: log}
}

type conflictResponse struct {
	LastUpdated      string `json:"lastUpdated"`
	TransactionCount int    `json:"transactionCount"`
	AccountCount     int    `json:"accountCount"`
}

type syncResponse struct {
	Outcome  reconcile.Outcome `json:"outcome,omitempty"`
	State    domain.SyncState  `json:"state"`
	Conflict *conflictResponse `json:"conflict"`
}

func (h *SyncHandler) response(outcome reconcile.Outcome) syncResponse {
	resp := syncResponse{Outcome: outcome, State: h.syncer.State()}
	if c := h.syncer.Conflict(); c != nil {
		resp.Conflict = &conflictResponse{
			LastUpdated:      domain.FormatTimestamp(c.LastUpdated),
			TransactionCount: len(c.Transactions),
			AccountCount:     len(c.Accounts),
		}
	}
	return resp
}

func (h *SyncHandler) enabled(w http.ResponseWriter) bool {
	if h.syncer == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Cloud sync is not configured")
		return false
	}
	return true
}

// writeResult maps reconciliation errors to status codes.
func (h *SyncHandler) writeResult(w http.ResponseWriter, r *http.Request, outcome reconcile.Outcome, err error) {
	switch {
	case err == nil:
		if outcome == reconcile.PulledRemote && h.notifier != nil {
			h.notifier.Changed(r.Context(), jobs.TriggerSynced)
		}
		middleware.WriteJSON(w, http.StatusOK, h.response(outcome))
	case errors.Is(err, reconcile.ErrSyncInProgress):
		middleware.WriteError(w, http.StatusConflict, "A sync is already in progress")
	case errors.Is(err, reconcile.ErrNoConflict):
		middleware.WriteError(w, http.StatusConflict, "There is no pending conflict")
	case errors.Is(err, reconcile.ErrNotConnected):
		middleware.WriteError(w, http.StatusConflict, "Cloud sync is not connected")
	case errors.Is(err, reconcile.ErrSessionExpired):
		middleware.WriteError(w, http.StatusUnauthorized, "Cloud session expired. Please reconnect.")
	default:
		h.log.Error().Err(err).Msg("Sync failed")
		middleware.WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": "Sync failed",
			"state": h.syncer.State(),
		})
	}
}

// GetState handles GET /api/sync
func (h *SyncHandler) GetState(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.response(""))
}

// Sync handles POST /api/sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	outcome, err := h.syncer.Sync(r.Context())
	h.writeResult(w, r, outcome, err)
}

// Resolve handles POST /api/sync/resolve
func (h *SyncHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	var req struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	choice, err := reconcile.ParseChoice(req.Choice)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.syncer.ResolveConflict(r.Context(), choice)
	h.writeResult(w, r, outcome, err)
}

// Connect handles POST /api/sync/connect
func (h *SyncHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	var req struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"` // seconds
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		middleware.WriteError(w, http.StatusBadRequest, "token is required")
		return
	}
	if req.ExpiresIn <= 0 {
		req.ExpiresIn = 3600
	}

	outcome, err := h.syncer.Connect(r.Context(), req.Token, time.Duration(req.ExpiresIn)*time.Second)
	h.writeResult(w, r, outcome, err)
}

// Disconnect handles POST /api/sync/disconnect
func (h *SyncHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	if err := h.syncer.Disconnect(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to disconnect cloud sync")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.response(""))
}
