package tone

import (
	"math"
	"time"
)

const (
	SampleRate = 44100
	FrameSize  = 1024 // samples per channel per frame

	// Amplitude leaves 30% headroom below full scale.
	Amplitude = 0.7 * math.MaxInt16

	BinauralOffsetHz = 2.0

	// IsochronicFloor is the gate level while the pulse is off. A small
	// floor instead of silence keeps the gate edges from clicking.
	IsochronicFloor = 0.05
)

// Generator turns a Spec into successive 16-bit PCM frames.
// It is owned by a single goroutine and is not safe for concurrent use.
type Generator struct {
	spec        Spec
	left, right float64
	n           uint64 // samples generated per channel
}

// NewGenerator validates spec and returns a generator positioned at t=0.
func NewGenerator(spec Spec) (*Generator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	left, right := spec.Carriers()
	return &Generator{spec: spec, left: left, right: right}, nil
}

// Spec returns the spec being synthesized.
func (g *Generator) Spec() Spec { return g.spec }

// Channels returns the number of interleaved channels in each frame.
func (g *Generator) Channels() int { return g.spec.Channels() }

// Carriers returns the carrier frequencies used for the left and right channel.
func (g *Generator) Carriers() (left, right float64) { return g.left, g.right }

// Phase returns the elapsed stage time in seconds.
func (g *Generator) Phase() float64 {
	return float64(g.n) / SampleRate
}

// Elapsed returns the elapsed stage time.
func (g *Generator) Elapsed() time.Duration {
	return time.Duration(g.n) * time.Second / SampleRate
}

// NextFrame returns a newly allocated frame of FrameSize samples per channel.
func (g *Generator) NextFrame() []int16 {
	return g.FrameInto(make([]int16, FrameSize*g.Channels()))
}

// FrameInto writes the next frame into dst, avoiding allocation.
// dst must have capacity >= FrameSize*Channels(). Returns the used portion.
func (g *Generator) FrameInto(dst []int16) []int16 {
	ch := g.Channels()
	dst = dst[:FrameSize*ch]
	for i := 0; i < FrameSize; i++ {
		env := g.envelope(g.n)
		if ch == 1 {
			dst[i] = saturate(Amplitude * env * sinAt(g.left, g.n))
		} else {
			dst[i*2] = saturate(Amplitude * env * sinAt(g.left, g.n))
			dst[i*2+1] = saturate(Amplitude * env * sinAt(g.right, g.n))
		}
		g.n++
	}
	return dst
}

func (g *Generator) envelope(n uint64) float64 {
	switch g.spec.Waveform {
	case Isochronic:
		if sinAt(g.spec.ModHz, n) > 0 {
			return 1.0
		}
		return IsochronicFloor
	case Burst:
		return 0.5 * (1 + sinAt(g.spec.ModHz, n))
	default:
		return 1.0
	}
}

// sinAt returns sin(2π·freq·t) at t = n/SampleRate. The argument is reduced
// to a single period first so precision does not degrade as n grows.
func sinAt(freq float64, n uint64) float64 {
	cycle := math.Mod(freq*float64(n), SampleRate) / SampleRate
	return math.Sin(2 * math.Pi * cycle)
}

func saturate(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
