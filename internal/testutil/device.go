package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RenatoCabral2022/hypnotone/internal/audio"
)

// Op is a recorded sink operation.
type Op struct {
	Kind    string // "open", "write", "close"
	Sink    int    // 1-based sink number in open order
	Samples []int16
}

// RecordingDevice is an audio.Device that logs every open/write/close in a
// single global order so tests can check that sinks never overlap.
type RecordingDevice struct {
	// WriteDelay paces writes. Defaults to 1ms.
	WriteDelay time.Duration
	// IgnoreContext makes writes wait only for Close, like a driver that
	// does not support cancellation.
	IgnoreContext bool
	// FailOpen makes Open return an error.
	FailOpen bool
	// Channels overrides the sink channel count when non-zero.
	Channels int
	// OnOpen, when set, runs at the start of every Open.
	OnOpen func()

	mu    sync.Mutex
	ops   []Op
	sinks []*RecordingSink
}

// Open implements audio.Device.
func (d *RecordingDevice) Open(f audio.Format) (audio.Sink, error) {
	if d.OnOpen != nil {
		d.OnOpen()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailOpen {
		return nil, errors.New("device busy")
	}
	ch := f.Channels
	if d.Channels != 0 {
		ch = d.Channels
	}
	delay := d.WriteDelay
	if delay == 0 {
		delay = time.Millisecond
	}
	s := &RecordingSink{
		dev:      d,
		id:       len(d.sinks) + 1,
		format:   audio.Format{SampleRate: f.SampleRate, Channels: ch},
		delay:    delay,
		ignore:   d.IgnoreContext,
		closedCh: make(chan struct{}),
	}
	d.sinks = append(d.sinks, s)
	d.ops = append(d.ops, Op{Kind: "open", Sink: s.id})
	return s, nil
}

// Ops returns a copy of the operation log.
func (d *RecordingDevice) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.ops))
	copy(out, d.ops)
	return out
}

// Sinks returns every sink opened so far.
func (d *RecordingDevice) Sinks() []*RecordingSink {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*RecordingSink, len(d.sinks))
	copy(out, d.sinks)
	return out
}

// OpenSinks returns how many sinks are currently open.
func (d *RecordingDevice) OpenSinks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sinks {
		if !s.closed {
			n++
		}
	}
	return n
}

// RecordingSink is a sink opened by RecordingDevice.
type RecordingSink struct {
	dev      *RecordingDevice
	id       int
	format   audio.Format
	delay    time.Duration
	ignore   bool
	closedCh chan struct{}
	once     sync.Once
	closed   bool // guarded by dev.mu
}

// Format returns the format the sink was opened with.
func (s *RecordingSink) Format() audio.Format { return s.format }

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.closed
}

func (s *RecordingSink) Write(ctx context.Context, frame []int16) error {
	select {
	case <-s.closedCh:
		return audio.ErrSinkClosed
	default:
	}

	if s.ignore {
		<-s.closedCh
		return audio.ErrSinkClosed
	}

	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closedCh:
		return audio.ErrSinkClosed
	}

	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.closed {
		return audio.ErrSinkClosed
	}
	s.dev.ops = append(s.dev.ops, Op{Kind: "write", Sink: s.id, Samples: append([]int16(nil), frame...)})
	return nil
}

func (s *RecordingSink) Channels() int { return s.format.Channels }

func (s *RecordingSink) Close() error {
	s.once.Do(func() {
		s.dev.mu.Lock()
		s.closed = true
		s.dev.ops = append(s.dev.ops, Op{Kind: "close", Sink: s.id})
		s.dev.mu.Unlock()
		close(s.closedCh)
	})
	return nil
}
