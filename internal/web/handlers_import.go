package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/schoolbulk/internal/core"
	"github.com/JonMunkholm/schoolbulk/internal/metrics"
)

// handlePreview validates an uploaded file without writing anything.
// Counts cover the whole file; rows are paged with page and pageSize.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")
	moduleID := chi.URLParam(r, "moduleID")

	if _, err := s.service.Module(moduleID); err != nil {
		respondError(w, r, err)
		return
	}

	table, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.Preview(r.Context(), schoolID, moduleID, table)
	if err != nil {
		respondError(w, r, err)
		return
	}
	metrics.RecordPreview(moduleID, result.ValidRows, result.InvalidRows, result.DuplicateRows)

	page := parseIntParam(r, "page", 1)
	pageSize := min(parseIntParam(r, "pageSize", defaultPageSize), maxPageSize)
	writeJSON(w, r, result.Window(page, pageSize))
}

// handleCommit imports an uploaded file and provisions accounts for the
// rows that saved.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")
	moduleID := chi.URLParam(r, "moduleID")

	if _, err := s.service.Module(moduleID); err != nil {
		respondError(w, r, err)
		return
	}

	table, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	opts := core.DefaultCommitOptions()
	opts.SendEmails = formFlag(r, "sendEmails", false)
	opts.SkipDuplicates = formFlag(r, "skipDuplicates", opts.SkipDuplicates)
	opts.ActorID = core.ActorFromContext(r.Context())

	outcome, err := s.service.Commit(r.Context(), schoolID, moduleID, table, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	metrics.RecordImport(moduleID, outcome.Success, outcome.Failed, outcome.Skipped,
		outcome.AccountsCreated, outcome.AccountsFailed)

	writeJSON(w, r, outcome)
}

type retryRequest struct {
	Records    []core.RetryEntry `json:"records"`
	SendEmails bool              `json:"sendEmails"`
}

// handleRetryAccounts re-attempts account creation for failed entries.
func (s *Server) handleRetryAccounts(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")
	moduleID := chi.URLParam(r, "moduleID")

	var req retryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.RetryAccounts(r.Context(), schoolID, moduleID, req.Records,
		core.RetryOptions{SendEmails: req.SendEmails})
	if err != nil {
		respondError(w, r, err)
		return
	}
	metrics.RecordRetry(moduleID, result.Success, result.Failed)

	writeJSON(w, r, result)
}

// handleFailureReport renders a posted import outcome as a CSV of every
// failed row and account.
func (s *Server) handleFailureReport(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")

	def, err := s.service.Module(moduleID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var outcome core.ImportOutcome
	if err := decodeJSON(w, r, &outcome); err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := core.WriteFailureReport(&buf, def, &outcome); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", moduleID+"_failures.csv"))
	_, _ = w.Write(buf.Bytes())
}

// handleImportHistory lists past imports for a school, newest first.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")
	moduleID := strings.TrimSpace(r.URL.Query().Get("module"))
	limit := parseIntParam(r, "limit", core.DefaultHistoryLimit)

	entries, err := s.service.ListHistory(r.Context(), schoolID, moduleID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, map[string]any{"history": entries})
}
