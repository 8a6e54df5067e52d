package api

import (
	"time"

	"github.com/RenatoCabral2022/hypnotone/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type sessionsResponse struct {
	Sessions  []session.Session `json:"sessions"`
	LoadedAt  *time.Time        `json:"loadedAt,omitempty"`
	LoadError string            `json:"loadError,omitempty"`
}

type playResponse struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
}

type createListenerResponse struct {
	ListenerID string      `json:"listenerId"`
	SDPOffer   string      `json:"sdpOffer"`
	ICEServers []iceServer `json:"iceServers"`
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type answerRequest struct {
	SDPAnswer string `json:"sdpAnswer"`
}
