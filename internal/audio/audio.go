package audio

import (
	"context"
	"errors"
	"time"
)

// ErrSinkClosed is returned by Sink.Write after the sink has been closed.
var ErrSinkClosed = errors.New("audio sink closed")

// Format describes the PCM layout a Device is asked to accept:
// signed 16-bit samples, interleaved when Channels > 1.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameDuration returns the playback time of an interleaved frame of n samples.
func (f Format) FrameDuration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return time.Duration(n/f.Channels) * time.Second / time.Duration(f.SampleRate)
}

// Sink is an open audio output.
type Sink interface {
	// Write blocks until the output accepts the frame. It returns ctx.Err()
	// when ctx is cancelled first and ErrSinkClosed once Close was called.
	Write(ctx context.Context, frame []int16) error

	// Channels is the interleaved channel count Write expects. It may be
	// larger than the count requested at Open; callers upmix mono frames.
	Channels() int

	// Close releases the output and unblocks pending writes. Idempotent.
	Close() error
}

// Device opens sinks.
type Device interface {
	Open(f Format) (Sink, error)
}
