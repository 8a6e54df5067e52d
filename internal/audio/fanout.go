package audio

import (
	"context"
	"errors"
	"fmt"
)

// Fanout returns a Device that opens every device and copies each frame to
// all of them in order. Mono frames are upmixed for stereo-only outputs.
func Fanout(devices ...Device) Device {
	return fanout(devices)
}

type fanout []Device

func (f fanout) Open(format Format) (Sink, error) {
	sinks := make([]Sink, 0, len(f))
	for i, d := range f {
		s, err := d.Open(format)
		if err != nil {
			for _, opened := range sinks {
				opened.Close()
			}
			return nil, fmt.Errorf("open output %d: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return &fanoutSink{channels: format.Channels, sinks: sinks}, nil
}

type fanoutSink struct {
	channels int
	sinks    []Sink
	stereo   []int16
}

func (s *fanoutSink) Write(ctx context.Context, frame []int16) error {
	for _, sink := range s.sinks {
		out := frame
		if s.channels == 1 && sink.Channels() == 2 {
			if cap(s.stereo) < len(frame)*2 {
				s.stereo = make([]int16, len(frame)*2)
			}
			out = MonoToStereoInto(frame, s.stereo)
		}
		if err := sink.Write(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *fanoutSink) Channels() int { return s.channels }

func (s *fanoutSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
