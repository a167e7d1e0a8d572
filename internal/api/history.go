package api

import (
	"net/http"
	"strconv"
)

// handleHistoryTransitions returns recorded lifecycle transitions of
// one identity, newest first.
//
// Query parameters:
//   - identity: entity identity (required)
//   - limit: maximum entries to return (default 50, capped at 200)
func (s *Server) handleHistoryTransitions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "history journal is not enabled")
		return
	}

	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeBadRequest(w, "identity query parameter is required")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, err := s.journal.Transitions(r.Context(), identity, limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transitions": entries, "count": len(entries)})
}

// handleHistoryStructural returns recorded structural changes (entity
// adds, removals, attachments), newest first.
//
// Query parameters:
//   - identity: entity identity (required)
//   - limit: maximum entries to return (default 50, capped at 200)
func (s *Server) handleHistoryStructural(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "history journal is not enabled")
		return
	}

	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeBadRequest(w, "identity query parameter is required")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, err := s.journal.Structural(r.Context(), identity, limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"structural": entries, "count": len(entries)})
}

// parseLimit reads the limit query parameter. A zero limit lets the
// journal apply its default. Writes a 400 response and returns false on
// a malformed value.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
