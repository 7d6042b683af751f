package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/artho/internal/api/middleware"
)

// Handlers groups every endpoint handler.
type Handlers struct {
	Transactions *TransactionsHandler
	Sync         *SyncHandler
	Backup       *BackupHandler
	Session      *SessionHandler
	Jobs         *JobsHandler
}

// Register adds every route to mux.
func Register(mux *http.ServeMux, h Handlers) {
	mux.HandleFunc("GET /api/transactions", h.Transactions.ListTransactions)
	mux.HandleFunc("POST /api/transactions/parse", h.Transactions.ParseInput)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.Transactions.DeleteTransaction)
	mux.HandleFunc("DELETE /api/transactions", h.Transactions.WipeTransactions)
	mux.HandleFunc("GET /api/summary", h.Transactions.Summary)
	mux.HandleFunc("GET /api/accounts", h.Transactions.ListAccounts)
	mux.HandleFunc("PUT /api/accounts", h.Transactions.ReplaceAccounts)
	mux.HandleFunc("GET /api/insights", h.Transactions.Insights)

	mux.HandleFunc("GET /api/sync", h.Sync.GetState)
	mux.HandleFunc("POST /api/sync", h.Sync.Sync)
	mux.HandleFunc("POST /api/sync/resolve", h.Sync.Resolve)
	mux.HandleFunc("POST /api/sync/connect", h.Sync.Connect)
	mux.HandleFunc("POST /api/sync/disconnect", h.Sync.Disconnect)

	mux.HandleFunc("GET /api/export", h.Backup.Export)
	mux.HandleFunc("GET /api/recovery-key", h.Backup.RecoveryKey)
	mux.HandleFunc("POST /api/import", h.Backup.Import)

	mux.HandleFunc("GET /api/session", h.Session.Status)
	mux.HandleFunc("POST /api/session/unlock", h.Session.Unlock)
	mux.HandleFunc("POST /api/session/lock", h.Session.Lock)

	mux.HandleFunc("GET /api/jobs", h.Jobs.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.Jobs.GetJob)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}
