package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/RenatoCabral2022/hypnotone/internal/audio"
	"github.com/RenatoCabral2022/hypnotone/internal/metrics"
)

// Open implements audio.Device. The returned sink always takes stereo
// frames at f.SampleRate and resamples them to 48 kHz for Opus.
func (gw *Gateway) Open(f audio.Format) (audio.Sink, error) {
	if f.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > opusChannels {
		return nil, fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	enc, err := gw.newEncoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	return &sink{
		gw:        gw,
		enc:       enc,
		resampler: audio.NewResampler(f.SampleRate, opusSampleRate, opusChannels),
		bufs:      audio.AcquireOutboundBuffers(),
		ticker:    time.NewTicker(packetDuration),
		closed:    make(chan struct{}),
	}, nil
}

type sink struct {
	gw        *Gateway
	enc       Encoder
	resampler *audio.Resampler
	ticker    *time.Ticker
	closed    chan struct{}
	once      sync.Once

	mu   sync.Mutex // held by Write; guards bufs
	bufs *audio.OutboundFrameBuffers
}

// Write resamples frame, then encodes and sends every complete 20 ms
// packet, one per ticker tick.
func (s *sink) Write(ctx context.Context, frame []int16) error {
	select {
	case <-s.closed:
		return audio.ErrSinkClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bufs == nil {
		return audio.ErrSinkClosed
	}

	pending := s.resampler.Process(frame, s.bufs.ResampleBuf)
	defer func() { s.bufs.ResampleBuf = pending }()

	for len(pending) >= packetSamples {
		select {
		case <-s.ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return audio.ErrSinkClosed
		}

		start := time.Now()
		n, err := s.enc.Encode(pending[:packetSamples], s.bufs.PacketBuf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		metrics.EncodeLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)

		sample := media.Sample{Data: s.bufs.PacketBuf[:n], Duration: packetDuration}
		for _, l := range s.gw.snapshot() {
			l.writeSample(sample)
		}

		rest := copy(pending, pending[packetSamples:])
		pending = pending[:rest]
	}
	return nil
}

func (s *sink) Channels() int { return opusChannels }

func (s *sink) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.ticker.Stop()
		s.mu.Lock()
		audio.ReleaseOutboundBuffers(s.bufs)
		s.bufs = nil
		s.mu.Unlock()
	})
	return nil
}
