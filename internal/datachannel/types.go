package datachannel

import (
	"encoding/json"
	"time"

	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

// Message types carried on the control data channel.
const (
	TypeCommandPlay = "command.play"
	TypeCommandStop = "command.stop"

	TypeStageStarted    = "stage.started"
	TypeStageFinished   = "stage.finished"
	TypeStageFailed     = "stage.failed"
	TypeSessionFinished = "session.finished"
	TypeError           = "error"
)

// Envelope is the top-level wrapper for all data channel messages.
type Envelope struct {
	Type       string          `json:"type"`
	ListenerID string          `json:"listenerId,omitempty"`
	ActionID   string          `json:"actionId,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope stamped with the current
// time in milliseconds.
func NewEnvelope(msgType, actionID string, payload interface{}) ([]byte, error) {
	env := Envelope{
		Type:      msgType,
		ActionID:  actionID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// CommandPlay is the payload for command.play messages.
type CommandPlay struct {
	SessionID string `json:"sessionId"`
}

// EventStage is the payload for stage.started, stage.finished and
// stage.failed events.
type EventStage struct {
	RunID     string     `json:"runId"`
	SessionID string     `json:"sessionId"`
	Stage     string     `json:"stage"`
	Index     int        `json:"index"`
	Tone      *tone.Spec `json:"tone,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// EventSessionFinished is the payload for session.finished events.
type EventSessionFinished struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// EventError is the payload for error events.
type EventError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error codes.
const (
	CodeBadRequest     = "bad_request"
	CodeUnknownSession = "unknown_session"
	CodeUnknownCommand = "unknown_command"
	CodeInternal       = "internal"
)
