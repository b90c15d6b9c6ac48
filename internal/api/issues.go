package api

import (
	"net/http"

	"github.com/joescharf/fixit/internal/tracker"
)

// --- Issues ---

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var in tracker.CreateIssueInput
	if !decodeBody(w, r, &in) {
		return
	}
	issue, err := s.issues.CreateIssue(r.Context(), in, actor(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.issues.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) listUserIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.issues.ListIssuesByCreator(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var patch tracker.UpdateIssuePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	issue, err := s.issues.UpdateIssue(r.Context(), r.PathValue("id"), patch, actor(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.issues.DeleteIssue(r.Context(), r.PathValue("id"), actor(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Suggestions ---

func (s *Server) createSuggestion(w http.ResponseWriter, r *http.Request) {
	var in tracker.CreateSuggestionInput
	if !decodeBody(w, r, &in) {
		return
	}
	// The request context bounds the generator call: a client disconnect
	// cancels it.
	sg, err := s.suggestions.CreateSuggestion(r.Context(), in, actor(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (s *Server) getSuggestion(w http.ResponseWriter, r *http.Request) {
	sg, err := s.suggestions.GetSuggestion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (s *Server) listSuggestions(w http.ResponseWriter, r *http.Request) {
	if !actor(r).IsAdmin() {
		writeError(w, http.StatusForbidden, tracker.KindForbidden, "listing all suggestions requires the ADMIN role")
		return
	}
	list, err := s.suggestions.ListSuggestions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) listIssueSuggestions(w http.ResponseWriter, r *http.Request) {
	list, err := s.suggestions.ListSuggestionsForIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
