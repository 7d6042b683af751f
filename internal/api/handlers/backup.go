package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/api/middleware"
	"github.com/dvloznov/artho/internal/backup"
	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/tracker"
)

// BackupHandler serves the export file and recovery key and restores them.
type BackupHandler struct {
	tracker *tracker.Tracker
	now     func() time.Time
	log     zerolog.Logger
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(t *tracker.Tracker, log zerolog.Logger) *BackupHandler {
	return &BackupHandler{tracker: t, now: time.Now, log: log}
}

// Export handles GET /api/export
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := backup.Export(&buf, h.tracker.Transactions()); err != nil {
		h.log.Error().Err(err).Msg("Failed to export transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export transactions")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+backup.ExportFilename(h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// RecoveryKey handles GET /api/recovery-key
func (h *BackupHandler) RecoveryKey(w http.ResponseWriter, r *http.Request) {
	key, err := backup.RecoveryKey(h.tracker.Transactions())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build recovery key")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build recovery key")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"key": key})
}

// Import handles POST /api/import. The body carries either an export
// document or a recovery key, and confirm=true to replace every record.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Document json.RawMessage `json:"document"`
		Key      string          `json:"key"`
		Confirm  bool            `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		txs []domain.Transaction
		err error
	)
	switch {
	case len(req.Document) > 0:
		txs, err = backup.Import(bytes.NewReader(req.Document))
	case req.Key != "":
		txs, err = backup.DecodeRecoveryKey(req.Key)
	default:
		middleware.WriteError(w, http.StatusBadRequest, "document or key is required")
		return
	}
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "That backup could not be read")
		return
	}

	err = h.tracker.Restore(r.Context(), txs, func(int) bool { return req.Confirm })
	if errors.Is(err, backup.ErrDeclined) {
		middleware.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"error": "Importing replaces all local transactions. Resend with confirm=true.",
			"count": len(txs),
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to restore backup")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to restore backup")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"restored": len(txs),
	})
}
