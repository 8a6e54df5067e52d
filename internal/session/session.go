package session

import (
	"errors"

	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

// ErrUnknownSession is returned when a session id is not in the catalog.
var ErrUnknownSession = errors.New("unknown session")

// Slot names in play order.
const (
	SlotInduction     = "induction"
	SlotDeepening     = "deepening"
	SlotReinforcement = "reinforcement"
	SlotExit          = "exit"
)

// Slots lists the stage slots in the order they are played.
var Slots = []string{SlotInduction, SlotDeepening, SlotReinforcement, SlotExit}

// Stage is one named segment of a session.
type Stage struct {
	Name string    `json:"name"`
	Tone tone.Spec `json:"tone"`
}

// Session is an ordered list of stages plus optional narration.
// Sessions are immutable once loaded and may be replayed.
type Session struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Narration string  `json:"narration,omitempty"`
	Stages    []Stage `json:"stages"`
}

// HasNarration reports whether the session carries narration text.
func (s Session) HasNarration() bool {
	return s.Narration != ""
}
