package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/andrew/eve-companion/pkg/companion"
	"github.com/andrew/eve-companion/pkg/logging"
	"github.com/andrew/eve-companion/pkg/models"
	"github.com/andrew/eve-companion/pkg/store"
)

// maxBodyBytes bounds request bodies; backups carry inline images
const maxBodyBytes = 64 << 20

// SessionResponse is returned by every call that changes the conversation
type SessionResponse struct {
	Session companion.Snapshot `json:"session"`
	Notices []companion.Notice `json:"notices,omitempty"`
}

// MessageRequest is the body of POST /api/messages
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse carries the reply of one turn
type MessageResponse struct {
	Reply   models.Message     `json:"reply"`
	Session companion.Snapshot `json:"session"`
	Notices []companion.Notice `json:"notices,omitempty"`
}

// MemoryRequest is the body of PUT /api/memory
type MemoryRequest struct {
	Text string `json:"text"`
}

// ImageEndpointRequest is the body of PUT /api/settings/image-endpoint
type ImageEndpointRequest struct {
	URL string `json:"url"`
}

// LanguageRequest is the body of PUT /api/settings/language
type LanguageRequest struct {
	Language string `json:"language"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error   string             `json:"error"`
	Notices []companion.Notice `json:"notices,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	s.respondSession(w, http.StatusOK)
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearHistory(r.Context()); err != nil {
		if errors.Is(err, models.ErrTurnInFlight) {
			respondError(w, http.StatusConflict, err.Error(), nil)
			return
		}
		logging.FromContext(r.Context()).Error("failed to clear session", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to clear session", s.svc.DrainNotices())
		return
	}
	s.respondSession(w, http.StatusOK)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reply, err := s.svc.Send(r.Context(), req.Text)
	switch {
	case errors.Is(err, models.ErrEmptyInput):
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	case errors.Is(err, models.ErrTurnInFlight):
		respondError(w, http.StatusConflict, err.Error(), nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error(), s.svc.DrainNotices())
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{
		Reply:   reply,
		Session: s.svc.Snapshot(),
		Notices: s.svc.DrainNotices(),
	})
}

func (s *Server) consolidate(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Consolidate(r.Context())
	switch {
	case err == nil:
		s.respondSession(w, http.StatusOK)
	case errors.Is(err, companion.ErrConsolidationInFlight):
		respondError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, models.ErrNothingToSummarize):
		respondError(w, http.StatusUnprocessableEntity, err.Error(), s.svc.DrainNotices())
	default:
		logging.FromContext(r.Context()).Warn("memory consolidation failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, err.Error(), s.svc.DrainNotices())
	}
}

func (s *Server) setMemory(w http.ResponseWriter, r *http.Request) {
	var req MemoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.svc.SetMemory(r.Context(), req.Text); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	s.respondSession(w, http.StatusOK)
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Settings())
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", nil)
		return
	}
	settings, err := s.svc.ReplaceSettings(r.Context(), raw)
	if err != nil {
		respondError(w, statusFor(err), err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) resetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.ResetSettings(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) setImageEndpoint(w http.ResponseWriter, r *http.Request) {
	var req ImageEndpointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.svc.SetImageEndpoint(r.Context(), req.URL); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	s.respondSession(w, http.StatusOK)
}

func (s *Server) setLanguage(w http.ResponseWriter, r *http.Request) {
	var req LanguageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.svc.SetLanguage(r.Context(), models.Language(req.Language)); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	s.respondSession(w, http.StatusOK)
}

func (s *Server) exportBackup(w http.ResponseWriter, r *http.Request) {
	data, err := store.EncodeBackup(s.svc.Export(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="eve-backup.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) importBackup(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", nil)
		return
	}
	session, err := store.DecodeBackup(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := s.svc.Restore(r.Context(), session); err != nil {
		respondError(w, statusFor(err), err.Error(), nil)
		return
	}
	s.respondSession(w, http.StatusOK)
}

func (s *Server) respondSession(w http.ResponseWriter, status int) {
	respondJSON(w, status, SessionResponse{
		Session: s.svc.Snapshot(),
		Notices: s.svc.DrainNotices(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTurnInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string, notices []companion.Notice) {
	respondJSON(w, status, ErrorResponse{Error: message, Notices: notices})
}
