package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": s.svc.Entities(r.Context())})
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var a state.Anchor
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	out, err := s.svc.CreateEntity(r.Context(), a)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Entity(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Events(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var in service.EventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	ev, err := s.svc.AppendEvent(r.Context(), chi.URLParam(r, "entityID"), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleState serves GET /api/entities/{entityID}/state?at=<RFC3339>&save=<bool>.
// A missing at queries the current time.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	at := time.Now().UTC()
	if v := q.Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			http.Error(w, `{"error":"at must be RFC3339"}`, http.StatusBadRequest)
			return
		}
		at = t
	}
	save := false
	if v := q.Get("save"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, `{"error":"save must be a boolean"}`, http.StatusBadRequest)
			return
		}
		save = b
	}

	res, err := s.svc.StateAt(r.Context(), chi.URLParam(r, "entityID"), at, service.QueryOptions{Save: save, Source: "http"})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
