package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/lodestar-ai/lodestar/internal/engine"
	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// SendMessageRequest is the POST message body.
type SendMessageRequest struct {
	Text  string           `json:"text"`
	Agent string           `json:"agent,omitempty"`
	Model string           `json:"model,omitempty"` // "provider/model"
	Files []types.FilePart `json:"files,omitempty"`
}

// MessageResponse is one frame of the streaming response and the element
// type of the history listing.
type MessageResponse struct {
	Info  *types.Message `json:"info"`
	Parts []types.Part   `json:"parts"`
}

// sendMessage handles POST /session/{sessionID}/message. The response is
// chunked JSON: one MessageResponse per assistant update, ending with the
// completed message. Errors detected before streaming begins use the normal
// error envelope.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "invalid JSON body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errCodeInternal, "streaming not supported")
		return
	}

	// Updates arrive concurrently while tools run in parallel; the mutex
	// keeps frames whole and the streaming flag consistent.
	var (
		encoder   = json.NewEncoder(w)
		mu        sync.Mutex
		streaming bool
	)
	msg, err := s.engine.SendMessage(r.Context(), engine.SendOptions{
		SessionID: sessionID,
		Text:      req.Text,
		Files:     req.Files,
		Agent:     req.Agent,
		Model:     req.Model,
		OnUpdate: func(info *types.Message, parts []types.Part) {
			mu.Lock()
			defer mu.Unlock()
			if !streaming {
				streaming = true
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Cache-Control", "no-cache")
				w.WriteHeader(http.StatusOK)
			}
			encoder.Encode(MessageResponse{Info: info, Parts: parts})
			flusher.Flush()
		},
	})

	mu.Lock()
	defer mu.Unlock()

	if err != nil && !streaming {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("turn failed")
	}

	// Final frame with the terminal message state.
	if msg != nil {
		parts, perr := s.store.ListParts(r.Context(), sessionID, msg.ID)
		if perr != nil {
			parts = nil
		}
		if !streaming {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
		}
		encoder.Encode(MessageResponse{Info: msg, Parts: parts})
		flusher.Flush()
	}
}

// getMessages handles GET /session/{sessionID}/message. An optional
// sinceRevision query returns only messages created after that revision.
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var since int64
	if raw := r.URL.Query().Get("sinceRevision"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &since); err != nil {
			writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "sinceRevision must be a number")
			return
		}
	}

	msgs, err := s.store.ListMessages(r.Context(), sessionID, since)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, errCodeNotFound, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = MessageResponse{Info: m.Info, Parts: m.Parts}
	}
	writeJSON(w, http.StatusOK, out)
}
