package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/metrics"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
)

const (
	DefaultStageDuration    = 8 * time.Second
	DefaultNarrationTimeout = 30 * time.Second
)

// Narrator speaks a session's narration. It runs beside the tones and is
// never synchronized with them.
type Narrator interface {
	Narrate(ctx context.Context, sessionID, text string) error
}

// Status is a snapshot of the sequencer.
type Status struct {
	RunID      string    `json:"runId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	Title      string    `json:"title,omitempty"`
	Active     bool      `json:"active"`
	Stage      string    `json:"stage,omitempty"`
	StageIndex int       `json:"stageIndex"`
	StageCount int       `json:"stageCount"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

type run struct {
	id      string
	session session.Session
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Sequencer drives a session through its stages on a dedicated goroutine.
type Sequencer struct {
	ctrl             *Controller
	narrator         Narrator
	logger           *zap.Logger
	stageDuration    time.Duration
	narrationTimeout time.Duration
	observers        []Observer

	// opMu serializes PlaySession/StopAudio, and is held while joining
	// the sequencing goroutine. mu guards the status fields below and is
	// the only lock the sequencing goroutine takes.
	opMu     sync.Mutex
	mu       sync.Mutex
	run      *run
	stageIdx int
	active   bool
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithStageDuration sets how long each stage plays.
func WithStageDuration(d time.Duration) SequencerOption {
	return func(s *Sequencer) { s.stageDuration = d }
}

// WithNarrationTimeout bounds a single narration request.
func WithNarrationTimeout(d time.Duration) SequencerOption {
	return func(s *Sequencer) { s.narrationTimeout = d }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) SequencerOption {
	return func(s *Sequencer) { s.observers = append(s.observers, o) }
}

// NewSequencer creates a sequencer driving ctrl. narrator may be nil.
func NewSequencer(ctrl *Controller, narrator Narrator, logger *zap.Logger, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		ctrl:             ctrl,
		narrator:         narrator,
		logger:           logger,
		stageDuration:    DefaultStageDuration,
		narrationTimeout: DefaultNarrationTimeout,
		stageIdx:         -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaySession stops whatever is playing, fires the session's narration once
// and starts sequencing its stages in the background. It returns the run id
// without waiting for playback.
func (s *Sequencer) PlaySession(sess session.Session) string {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      uuid.NewString(),
		session: sess,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}

	s.mu.Lock()
	s.run = r
	s.stageIdx = -1
	s.active = true
	s.mu.Unlock()

	metrics.SessionsStartedTotal.Inc()
	s.logger.Info("session started",
		zap.String("run", r.id),
		zap.String("session", sess.ID),
		zap.Int("stages", len(sess.Stages)),
	)

	if sess.HasNarration() && s.narrator != nil {
		go s.narrate(r.id, sess)
	}
	go s.sequence(ctx, r)
	return r.id
}

// StopAudio cancels the current run, waits for the sequencing goroutine to
// exit and leaves the controller Idle. Safe to call when nothing is playing.
func (s *Sequencer) StopAudio() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stopLocked()
}

func (s *Sequencer) stopLocked() {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	if r != nil {
		r.cancel()
		<-r.done
	}
	s.ctrl.Stop()
}

// Wait blocks until the current run, if any, has finished.
func (s *Sequencer) Wait() {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Status returns the current run and controller state.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{StageIndex: -1, State: s.ctrl.State()}
	if s.run == nil {
		return st
	}
	st.RunID = s.run.id
	st.SessionID = s.run.session.ID
	st.Title = s.run.session.Title
	st.Active = s.active
	st.StageCount = len(s.run.session.Stages)
	st.StartedAt = s.run.started
	st.StageIndex = s.stageIdx
	if s.active && s.stageIdx >= 0 && s.stageIdx < st.StageCount {
		st.Stage = s.run.session.Stages[s.stageIdx].Name
	}
	return st
}

func (s *Sequencer) sequence(ctx context.Context, r *run) {
	defer close(r.done)

	logger := s.logger.With(zap.String("run", r.id), zap.String("session", r.session.ID))
	reason := s.playStages(ctx, r, logger)

	s.mu.Lock()
	if s.run == r {
		s.active = false
	}
	s.mu.Unlock()

	metrics.SessionsFinishedTotal.WithLabelValues(reason).Inc()
	logger.Info("session finished", zap.String("reason", reason))
	s.emit(Event{Type: EventSessionFinished, RunID: r.id, SessionID: r.session.ID,
		Index: len(r.session.Stages), Reason: reason})
}

func (s *Sequencer) playStages(ctx context.Context, r *run, logger *zap.Logger) string {
	s.emit(Event{Type: EventSessionStarted, RunID: r.id, SessionID: r.session.ID})

	for i, stage := range r.session.Stages {
		if ctx.Err() != nil {
			return ReasonCancelled
		}

		s.mu.Lock()
		s.stageIdx = i
		s.mu.Unlock()

		spec := stage.Tone
		ev := Event{RunID: r.id, SessionID: r.session.ID, Stage: stage.Name, Index: i, Tone: &spec}
		stageLogger := logger.With(zap.String("stage", stage.Name), zap.Int("index", i))
		waveform := spec.Waveform.String()

		if err := s.ctrl.StartContext(ctx, spec); err != nil {
			if ctx.Err() != nil {
				return ReasonCancelled
			}
			metrics.StagesTotal.WithLabelValues(waveform, "failed").Inc()
			stageLogger.Error("stage skipped", zap.Error(err))
			ev.Type = EventStageFailed
			ev.Error = err.Error()
			s.emit(ev)
			continue
		}
		if ctx.Err() != nil {
			// Cancelled while the output was opening.
			s.ctrl.Stop()
			stageLogger.Info("stage cancelled before start")
			return ReasonCancelled
		}
		stageLogger.Info("stage started", zap.Duration("duration", s.stageDuration))
		ev.Type = EventStageStarted
		s.emit(ev)

		timer := time.NewTimer(s.stageDuration)
		select {
		case <-timer.C:
			s.ctrl.Stop()
			metrics.StagesTotal.WithLabelValues(waveform, "completed").Inc()
			ev.Type = EventStageFinished
			ev.Reason = ReasonCompleted
			s.emit(ev)
		case <-ctx.Done():
			timer.Stop()
			s.ctrl.Stop()
			metrics.StagesTotal.WithLabelValues(waveform, "cancelled").Inc()
			stageLogger.Info("stage interrupted")
			ev.Type = EventStageFinished
			ev.Reason = ReasonCancelled
			s.emit(ev)
			return ReasonCancelled
		}
	}
	return ReasonCompleted
}

func (s *Sequencer) narrate(runID string, sess session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), s.narrationTimeout)
	defer cancel()

	if err := s.narrator.Narrate(ctx, sess.ID, sess.Narration); err != nil {
		metrics.NarrationsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("narration failed",
			zap.String("run", runID),
			zap.String("session", sess.ID),
			zap.Error(err),
		)
		return
	}
	metrics.NarrationsTotal.WithLabelValues("success").Inc()
}

func (s *Sequencer) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, o := range s.observers {
		o(ev)
	}
}
