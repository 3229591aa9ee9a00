package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleHealth reports liveness and current import load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status":  "ok",
		"modules": s.service.Registry().Count(),
		"imports": s.service.ImportLimiterStatus(),
	})
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{"modules": s.service.ListModules()})
}

// handleGetModule returns the full definition of one module.
func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	def, err := s.service.Module(chi.URLParam(r, "moduleID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, def)
}

// handleDownloadTemplate serves the blank XLSX template for a module.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	f, err := s.service.Template(chi.URLParam(r, "moduleID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeFile(w, f)
}
