package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/schoolbulk/internal/metrics"
)

type exportRequest struct {
	Modules []string `json:"modules"`
}

func (s *Server) handleExportableModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{"modules": s.service.Registry().Exportable()})
}

// handleExport builds a workbook with one sheet per requested module.
// The job is returned as JSON with the file base64 encoded, or as the raw
// workbook when download=1.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")

	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	job, err := s.service.Export(r.Context(), schoolID, req.Modules)
	if err != nil {
		respondError(w, r, err)
		return
	}
	for _, stat := range job.Modules {
		metrics.RecordExport(stat.Module, stat.RecordCount)
	}

	if r.URL.Query().Get("download") == "1" {
		writeFile(w, &job.File)
		return
	}
	writeJSON(w, r, job)
}
