package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// CreateSessionRequest is the POST /session body.
type CreateSessionRequest struct {
	Directory string  `json:"directory,omitempty"`
	Title     string  `json:"title,omitempty"`
	ParentID  *string `json:"parentID,omitempty"`
}

// listSessions handles GET /session, newest first. An optional directory
// query narrows the result.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if dir := r.URL.Query().Get("directory"); dir != "" {
		filtered := sessions[:0]
		for _, session := range sessions {
			if session.Directory == dir {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles POST /session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "invalid JSON body")
			return
		}
	}
	if req.Directory == "" {
		req.Directory = s.config.Directory
	}

	session, err := s.store.CreateSession(r.Context(), store.CreateSessionOptions{
		Directory: req.Directory,
		Title:     req.Title,
		ParentID:  req.ParentID,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// getSession handles GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// deleteSession handles DELETE /session/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// abortSession handles POST /session/{sessionID}/abort.
func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Abort(chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": true})
}

// undoSession handles POST /session/{sessionID}/undo.
func (s *Server) undoSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.engine.Undo(r.Context(), sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// PermissionReplyRequest is the POST permissions body.
type PermissionReplyRequest struct {
	Reply string `json:"reply"` // "once" | "always" | "reject"
}

// respondPermission handles POST /session/{sessionID}/permissions/{permissionID}.
func (s *Server) respondPermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "invalid JSON body")
		return
	}
	switch req.Reply {
	case "once", "always", "reject":
	default:
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "reply must be once, always or reject")
		return
	}

	if !s.gate.Respond(chi.URLParam(r, "permissionID"), req.Reply) {
		writeError(w, http.StatusNotFound, errCodeNotFound, "no pending permission request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"replied": true})
}
