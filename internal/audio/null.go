package audio

import (
	"context"
	"sync"
	"time"
)

// NullDevice discards audio at real-time pace. It stands in for a sound
// card on headless hosts so stage timing and backpressure behave the same.
type NullDevice struct{}

// Open returns a sink accepting f.Channels channels.
func (NullDevice) Open(f Format) (Sink, error) {
	return &nullSink{format: f, closed: make(chan struct{})}, nil
}

type nullSink struct {
	format Format
	next   time.Time
	closed chan struct{}
	once   sync.Once
}

func (s *nullSink) Write(ctx context.Context, frame []int16) error {
	now := time.Now()
	if s.next.Before(now) {
		s.next = now
	}
	s.next = s.next.Add(s.format.FrameDuration(len(frame)))

	timer := time.NewTimer(time.Until(s.next))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrSinkClosed
	}
}

func (s *nullSink) Channels() int { return s.format.Channels }

func (s *nullSink) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
