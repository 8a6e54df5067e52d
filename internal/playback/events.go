package playback

import (
	"time"

	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

// EventType names a sequencing milestone.
type EventType string

const (
	EventSessionStarted  EventType = "session.started"
	EventStageStarted    EventType = "stage.started"
	EventStageFinished   EventType = "stage.finished"
	EventStageFailed     EventType = "stage.failed"
	EventSessionFinished EventType = "session.finished"
)

// Finish reasons.
const (
	ReasonCompleted = "completed"
	ReasonCancelled = "cancelled"
)

// Event reports sequencing progress to observers.
type Event struct {
	Type      EventType  `json:"type"`
	RunID     string     `json:"runId"`
	SessionID string     `json:"sessionId"`
	Stage     string     `json:"stage,omitempty"`
	Index     int        `json:"index"`
	Tone      *tone.Spec `json:"tone,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Error     string     `json:"error,omitempty"`
	Time      time.Time  `json:"time"`
}

// Observer receives events on the sequencing goroutine. Observers must not
// block or call back into the Sequencer.
type Observer func(Event)
