package tone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSpec is returned for tone parameters that cannot be synthesized.
var ErrInvalidSpec = errors.New("invalid tone spec")

// Waveform selects the envelope applied to the carrier.
type Waveform int

const (
	Continuous Waveform = iota
	Isochronic
	Burst
)

func (w Waveform) String() string {
	switch w {
	case Continuous:
		return "continuous"
	case Isochronic:
		return "isochronic"
	case Burst:
		return "burst"
	default:
		return fmt.Sprintf("waveform(%d)", int(w))
	}
}

// ParseWaveform maps a catalog type string to a Waveform.
// Unknown names are rejected instead of falling back to Continuous.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous":
		return Continuous, nil
	case "isochronic":
		return Isochronic, nil
	case "burst":
		return Burst, nil
	}
	return 0, fmt.Errorf("%w: unknown waveform %q", ErrInvalidSpec, s)
}

// MarshalText implements encoding.TextMarshaler.
func (w Waveform) MarshalText() ([]byte, error) {
	switch w {
	case Continuous, Isochronic, Burst:
		return []byte(w.String()), nil
	}
	return nil, fmt.Errorf("%w: unknown waveform %d", ErrInvalidSpec, int(w))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Waveform) UnmarshalText(b []byte) error {
	parsed, err := ParseWaveform(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Spec describes the waveform of one session stage. It is a plain value and
// is never modified after a session is loaded.
type Spec struct {
	Waveform  Waveform `json:"waveform"`
	CarrierHz float64  `json:"carrierHz"`
	ModHz     float64  `json:"modHz"`
	Binaural  bool     `json:"binaural"`
}

// Channels returns 2 for binaural specs and 1 otherwise.
func (s Spec) Channels() int {
	if s.Binaural {
		return 2
	}
	return 1
}

// Carriers returns the left and right carrier frequencies. Binaural specs
// split the carrier by BinauralOffsetHz in each direction.
func (s Spec) Carriers() (left, right float64) {
	if s.Binaural {
		return s.CarrierHz - BinauralOffsetHz, s.CarrierHz + BinauralOffsetHz
	}
	return s.CarrierHz, s.CarrierHz
}

// Validate reports whether the spec can be synthesized at SampleRate.
func (s Spec) Validate() error {
	switch s.Waveform {
	case Continuous, Isochronic, Burst:
	default:
		return fmt.Errorf("%w: unknown waveform %d", ErrInvalidSpec, int(s.Waveform))
	}
	if !(s.CarrierHz > 0) {
		return fmt.Errorf("%w: carrier must be > 0, got %v", ErrInvalidSpec, s.CarrierHz)
	}
	if !(s.ModHz >= 0) {
		return fmt.Errorf("%w: mod must be >= 0, got %v", ErrInvalidSpec, s.ModHz)
	}
	if s.Waveform != Continuous && s.ModHz == 0 {
		return fmt.Errorf("%w: %s needs a mod frequency > 0", ErrInvalidSpec, s.Waveform)
	}

	left, right := s.Carriers()
	if left <= 0 {
		return fmt.Errorf("%w: binaural carrier %v leaves no room for a %v Hz split",
			ErrInvalidSpec, s.CarrierHz, BinauralOffsetHz)
	}
	if right >= SampleRate/2 || s.ModHz >= SampleRate/2 {
		return fmt.Errorf("%w: frequencies must stay below %d Hz", ErrInvalidSpec, SampleRate/2)
	}
	return nil
}
