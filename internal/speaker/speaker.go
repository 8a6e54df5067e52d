// Package speaker plays sinks on the local sound card through oto.
package speaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/audio"
)

// channels is fixed because oto allows one context per process; mono
// stages are upmixed by the caller.
const channels = 2

// Device opens oto players on a lazily created stereo context.
// Create at most one Device per process.
type Device struct {
	sampleRate int
	bufferSize time.Duration
	logger     *zap.Logger

	once    sync.Once
	ctx     *oto.Context
	initErr error
}

// New creates a speaker device. The sound card is not touched until the
// first Open.
func New(sampleRate int, bufferSize time.Duration, logger *zap.Logger) *Device {
	return &Device{
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (d *Device) init() error {
	d.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   d.sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   d.bufferSize,
		})
		if err != nil {
			d.initErr = fmt.Errorf("create oto context: %w", err)
			return
		}
		<-ready
		d.ctx = ctx
		d.logger.Info("speaker ready",
			zap.Int("sampleRate", d.sampleRate),
			zap.Duration("buffer", d.bufferSize),
		)
	})
	return d.initErr
}

// Open starts a player fed from a blocking pipe.
func (d *Device) Open(f audio.Format) (audio.Sink, error) {
	if f.SampleRate != d.sampleRate {
		return nil, fmt.Errorf("speaker runs at %d Hz, stage wants %d Hz", d.sampleRate, f.SampleRate)
	}
	if f.Channels > channels {
		return nil, fmt.Errorf("speaker supports %d channels, stage wants %d", channels, f.Channels)
	}
	if err := d.init(); err != nil {
		return nil, err
	}

	pipe := audio.NewPipe(channels)
	player := d.ctx.NewPlayer(pipe)
	player.Play()
	return &sink{pipe: pipe, player: player}, nil
}

type sink struct {
	pipe   *audio.Pipe
	player *oto.Player
	once   sync.Once
}

func (s *sink) Write(ctx context.Context, frame []int16) error {
	return s.pipe.Write(ctx, frame)
}

func (s *sink) Channels() int { return channels }

func (s *sink) Close() error {
	var err error
	s.once.Do(func() {
		s.pipe.Close()
		s.player.Pause()
		err = s.player.Close()
	})
	return err
}
