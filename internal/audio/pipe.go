package audio

import (
	"context"
	"io"
	"sync"
)

// Pipe bridges push-style frame writes to a pull-style reader such as a
// hardware player. Write hands a frame over only when the reader asks for
// more data, so a slow device throttles the writer.
type Pipe struct {
	channels int
	frames   chan []byte
	closed   chan struct{}
	once     sync.Once

	pending []byte // owned by the reader
}

// NewPipe creates a pipe carrying frames with the given channel count.
func NewPipe(channels int) *Pipe {
	return &Pipe{
		channels: channels,
		frames:   make(chan []byte),
		closed:   make(chan struct{}),
	}
}

// Write blocks until the reader takes the frame.
func (p *Pipe) Write(ctx context.Context, frame []int16) error {
	select {
	case <-p.closed:
		return ErrSinkClosed
	default:
	}

	buf := Int16ToBytes(frame)
	select {
	case p.frames <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrSinkClosed
	}
}

// Read implements io.Reader over the s16le byte stream. It blocks until a
// frame is written and returns io.EOF once the pipe is closed.
func (p *Pipe) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case buf := <-p.frames:
			p.pending = buf
		case <-p.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Channels returns the interleaved channel count.
func (p *Pipe) Channels() int { return p.channels }

// Close unblocks pending reads and writes. Idempotent.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
