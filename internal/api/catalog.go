package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/drill/internal/scenario"
)

// GET /api/v1/scenarios[?difficulty=easy]
func (s *Server) listScenarios(w http.ResponseWriter, r *http.Request) {
	list := scenario.All()
	if d := r.URL.Query().Get("difficulty"); d != "" {
		list = scenario.ByDifficulty(scenario.Difficulty(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": list,
		"count":     len(list),
	})
}

// GET /api/v1/scenarios/{id}
func (s *Server) getScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := scenario.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type transliterateRequest struct {
	Text string `json:"text"`
}

// POST /api/v1/transliterate
func (s *Server) transliterate(w http.ResponseWriter, r *http.Request) {
	var req transliterateRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, err, nil)
		return
	}
	if s.deps.Romanizer == nil {
		writeJSON(w, http.StatusOK, map[string]string{"roman": req.Text})
		return
	}
	roman, err := s.deps.Romanizer.Romanize(r.Context(), req.Text)
	if err != nil {
		writeError(w, fmt.Errorf("transliterate: %w", err), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"roman": roman})
}
