package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/store"
)

// --- Runs ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// --- Entries ---

func (s *Server) handleGetEntries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.runs.GetRun(r.Context(), id); err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	var entries []domain.StreamEntry
	var err error
	if after := r.URL.Query().Get("after"); after != "" {
		entries, err = s.stream.GetEntriesAfter(r.Context(), id, after)
	} else {
		entries, err = s.stream.GetEntries(r.Context(), id, limit)
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []domain.StreamEntry{}
	}
	s.jsonResponse(w, http.StatusOK, entries)
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.jsonResponse(w, http.StatusOK, []domain.Model{})
		return
	}
	p, err := s.registry.Get(r.Context(), s.provider)
	if err != nil {
		s.errorResponse(w, http.StatusServiceUnavailable, err)
		return
	}
	models, err := p.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, err)
		return
	}
	if models == nil {
		models = []domain.Model{}
	}
	s.jsonResponse(w, http.StatusOK, models)
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
