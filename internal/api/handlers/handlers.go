package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/artho/internal/aggregate"
	"github.com/dvloznov/artho/internal/api/middleware"
	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/filter"
	"github.com/dvloznov/artho/internal/jobs"
	"github.com/dvloznov/artho/internal/ledger"
	"github.com/dvloznov/artho/internal/tracker"
)

// TransactionsHandler handles transaction, account and insight endpoints.
type TransactionsHandler struct {
	tracker *tracker.Tracker
	now     func() time.Time
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(t *tracker.Tracker, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{tracker: t, now: time.Now, log: log}
}

func criteriaFromQuery(r *http.Request) (filter.Criteria, error) {
	q := r.URL.Query()
	return filter.ParseCriteria(q.Get("category"), q.Get("source"), q.Get("period"))
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := h.tracker.Dashboard(c, h.now())
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": d.Transactions,
		"count":        len(d.Transactions),
	})
}

// ParseInput handles POST /api/transactions/parse
func (h *TransactionsHandler) ParseInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.tracker.ProcessInput(r.Context(), req.Text)
	if errors.Is(err, tracker.ErrNotUnderstood) {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Could not find any transactions in that text. Try something like \"lunch 250 from bkash\".")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to record transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"transactions": created,
		"count":        len(created),
	})
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.tracker.Delete(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to delete transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WipeTransactions handles DELETE /api/transactions?confirm=true
func (h *TransactionsHandler) WipeTransactions(w http.ResponseWriter, r *http.Request) {
	if confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirm {
		middleware.WriteError(w, http.StatusBadRequest, "Deleting every transaction requires confirm=true")
		return
	}
	if err := h.tracker.Wipe(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to wipe transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to wipe transactions")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type summaryResponse struct {
	Inbound    decimal.Decimal            `json:"inbound"`
	Outbound   decimal.Decimal            `json:"outbound"`
	Net        decimal.Decimal            `json:"net"`
	Balances   map[string]decimal.Decimal `json:"balances"`
	Categories []categoryResponse         `json:"categories"`
	Count      int                        `json:"count"`
}

type categoryResponse struct {
	Category domain.Category `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Share    decimal.Decimal `json:"share"`
}

func newSummaryResponse(d tracker.Dashboard) summaryResponse {
	resp := summaryResponse{
		Inbound:    d.Report.Summary.Inbound,
		Outbound:   d.Report.Summary.Outbound,
		Net:        d.Report.Summary.Net,
		Balances:   d.Report.Balances,
		Categories: make([]categoryResponse, 0, len(d.Report.Categories)),
		Count:      len(d.Transactions),
	}
	for _, ct := range d.Report.Categories {
		resp.Categories = append(resp.Categories, categoryResponse{
			Category: ct.Category,
			Total:    ct.Total,
			Share:    d.Report.Share(ct.Category),
		})
	}
	return resp
}

// Summary handles GET /api/summary
func (h *TransactionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newSummaryResponse(h.tracker.Dashboard(c, h.now())))
}

// ListAccounts handles GET /api/accounts
func (h *TransactionsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.tracker.Accounts()
	balances := aggregate.Balances(h.tracker.Transactions(), accounts)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"balances": balances,
		"count":    len(accounts),
	})
}

// ReplaceAccounts handles PUT /api/accounts
func (h *TransactionsHandler) ReplaceAccounts(w http.ResponseWriter, r *http.Request) {
	var accounts []domain.Account
	if err := json.NewDecoder(r.Body).Decode(&accounts); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body, expected an account array")
		return
	}

	err := h.tracker.SetAccounts(r.Context(), accounts)
	if errors.Is(err, ledger.ErrInvalidAccount) {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to save accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save accounts")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": h.tracker.Accounts(),
	})
}

// Insights handles GET /api/insights, recomputing with refresh=true.
func (h *TransactionsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	var insights []domain.SpendingInsight
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		insights = h.tracker.RefreshInsights(r.Context())
	} else {
		insights = h.tracker.Insights(r.Context())
	}
	if insights == nil {
		insights = []domain.SpendingInsight{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"insights": insights,
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Trigger: jobs.Trigger(query.Get("trigger")),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
