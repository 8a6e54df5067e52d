package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/gateway"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handlers) sessionsResponse() sessionsResponse {
	resp := sessionsResponse{Sessions: h.catalog.Sessions()}
	if at := h.catalog.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = &at
	}
	if err := h.catalog.LastError(); err != nil {
		resp.LoadError = err.Error()
	}
	return resp
}

// ListSessions handles GET /v1/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionsResponse())
}

// ReloadSessions handles POST /v1/sessions/reload.
func (h *Handlers) ReloadSessions(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Reload(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.sessionsResponse())
}

// PlaySession handles POST /v1/sessions/{sessionId}/play. Playback runs in
// the background; the response only carries the run id.
func (h *Handlers) PlaySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	runID, err := h.player.Play(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrUnknownSession) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("play session failed", zap.String("session", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "play session failed")
		return
	}
	writeJSON(w, http.StatusAccepted, playResponse{RunID: runID, SessionID: sessionID})
}

// Stop handles POST /v1/stop.
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	h.player.Stop()
	writeJSON(w, http.StatusOK, messageResponse{Message: "Stopped"})
}

// Status handles GET /v1/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sequencer.Status())
}

// CreateListener handles POST /v1/listeners.
// Generates a UUID, creates a WebRTC listener and returns the SDP offer.
func (h *Handlers) CreateListener(w http.ResponseWriter, r *http.Request) {
	if h.listeners == nil {
		writeError(w, http.StatusServiceUnavailable, "webrtc output disabled")
		return
	}

	listenerID := uuid.New().String()
	sdpOffer, err := h.listeners.CreateListener(listenerID)
	if err != nil {
		if errors.Is(err, gateway.ErrTooManyListeners) {
			writeError(w, http.StatusServiceUnavailable, "max listeners reached")
			return
		}
		h.logger.Error("create listener failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create listener failed")
		return
	}

	servers := h.listeners.ICEServers()
	iceServers := make([]iceServer, 0, len(servers))
	for _, s := range servers {
		iceServers = append(iceServers, iceServer{URLs: s.URLs, Username: s.Username})
	}

	writeJSON(w, http.StatusCreated, createListenerResponse{
		ListenerID: listenerID,
		SDPOffer:   sdpOffer,
		ICEServers: iceServers,
	})
}

// PostAnswer handles POST /v1/listeners/{listenerId}/answer.
func (h *Handlers) PostAnswer(w http.ResponseWriter, r *http.Request) {
	if h.listeners == nil {
		writeError(w, http.StatusNotFound, "listener not found")
		return
	}
	listenerID := chi.URLParam(r, "listenerId")

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SDPAnswer == "" {
		writeError(w, http.StatusBadRequest, "invalid request: sdpAnswer required")
		return
	}

	if err := h.listeners.SetAnswer(listenerID, req.SDPAnswer); err != nil {
		if errors.Is(err, gateway.ErrListenerNotFound) {
			writeError(w, http.StatusNotFound, "listener not found")
			return
		}
		h.logger.Error("set answer failed", zap.String("listener", listenerID), zap.Error(err))
		writeError(w, http.StatusBadRequest, "set answer failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteListener handles DELETE /v1/listeners/{listenerId}.
func (h *Handlers) DeleteListener(w http.ResponseWriter, r *http.Request) {
	if h.listeners == nil {
		writeError(w, http.StatusNotFound, "listener not found")
		return
	}
	listenerID := chi.URLParam(r, "listenerId")
	if err := h.listeners.DeleteListener(listenerID); err != nil {
		writeError(w, http.StatusNotFound, "listener not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
