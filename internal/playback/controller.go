package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/audio"
	"github.com/RenatoCabral2022/hypnotone/internal/metrics"
	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

// DefaultStopTimeout bounds how long Stop waits for the generator to
// acknowledge cancellation before forcing the sink closed.
const DefaultStopTimeout = 200 * time.Millisecond

// ErrSinkUnavailable wraps failures to open the audio output.
var ErrSinkUnavailable = errors.New("audio output unavailable")

// State is the controller's playback state.
type State int32

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Controller owns the audio output and the single generation goroutine.
// At most one stage plays at a time; Start replaces whatever is playing.
type Controller struct {
	device      audio.Device
	logger      *zap.Logger
	stopTimeout time.Duration

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	sink   audio.Sink
	spec   tone.Spec
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.stopTimeout = d }
}

// NewController creates an idle controller writing to device.
func NewController(device audio.Device, logger *zap.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		device:      device,
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current playback state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Current returns the spec being played, if any.
func (c *Controller) Current() (tone.Spec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec, c.cancel != nil
}

// Start stops any playing stage, opens the output for spec and begins
// generating. Invalid specs are rejected without touching current playback.
// When the output cannot be opened the controller stays Idle and the
// returned error wraps ErrSinkUnavailable.
func (c *Controller) Start(spec tone.Spec) error {
	return c.StartContext(context.Background(), spec)
}

// StartContext is Start, except that the output is not opened once ctx is
// done; ctx.Err() is returned and the controller is left Idle. ctx does not
// bound playback itself.
func (c *Controller) StartContext(ctx context.Context, spec tone.Spec) error {
	gen, err := tone.NewGenerator(spec)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	if err := ctx.Err(); err != nil {
		return err
	}

	sink, err := c.device.Open(audio.Format{SampleRate: tone.SampleRate, Channels: spec.Channels()})
	if err != nil {
		metrics.SinkOpenErrorsTotal.Inc()
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}

	genCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.sink = sink
	c.spec = spec
	c.state.Store(int32(Playing))
	metrics.PlaybackPlaying.Set(1)

	logger := c.logger.With(
		zap.Stringer("waveform", spec.Waveform),
		zap.Float64("carrierHz", spec.CarrierHz),
		zap.Float64("modHz", spec.ModHz),
		zap.Bool("binaural", spec.Binaural),
	)
	logger.Debug("generator started")
	go c.generate(genCtx, gen, sink, done, logger)
	return nil
}

// Stop cancels the generator, waits for it to exit and releases the
// output. It is idempotent and safe to call from any goroutine.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.cancel == nil {
		return
	}
	start := time.Now()
	c.cancel()

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		// A sink that ignores ctx still has to honour Close, which unblocks
		// the pending write. A sink that honours neither is abandoned after
		// a second timeout; its worker exits once the write returns.
		metrics.StopTimeoutsTotal.Inc()
		c.logger.Warn("generator missed stop deadline, forcing sink closed",
			zap.Duration("timeout", c.stopTimeout))
		c.sink.Close()
		timer.Reset(c.stopTimeout)
		select {
		case <-c.done:
		case <-timer.C:
			metrics.StopAbandonedTotal.Inc()
			c.logger.Error("generator still blocked after sink close, abandoning it",
				zap.Duration("timeout", c.stopTimeout))
		}
	}

	if err := c.sink.Close(); err != nil {
		c.logger.Warn("close audio sink", zap.Error(err))
	}
	metrics.StopLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)

	c.cancel = nil
	c.done = nil
	c.sink = nil
	c.spec = tone.Spec{}
	c.state.Store(int32(Idle))
	metrics.PlaybackPlaying.Set(0)
}

// generate is the generation worker: it loops frame→write until ctx is
// cancelled or the sink fails.
func (c *Controller) generate(ctx context.Context, gen *tone.Generator, sink audio.Sink,
	done chan<- struct{}, logger *zap.Logger) {

	defer close(done)

	frame := make([]int16, tone.FrameSize*gen.Channels())
	var stereo []int16
	upmix := gen.Channels() == 1 && sink.Channels() == 2
	if upmix {
		stereo = make([]int16, tone.FrameSize*2)
	}

	for ctx.Err() == nil {
		out := gen.FrameInto(frame)
		if upmix {
			out = audio.MonoToStereoInto(out, stereo)
		}
		if err := sink.Write(ctx, out); err != nil {
			if ctx.Err() != nil {
				break
			}
			metrics.SinkWriteErrorsTotal.Inc()
			logger.Error("audio write failed", zap.Error(err))
			return
		}
		metrics.FramesWrittenTotal.Inc()
	}
	logger.Debug("generator stopped", zap.Duration("elapsed", gen.Elapsed()))
}
