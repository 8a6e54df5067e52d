package audio

import (
	"encoding/binary"
	"math"
)

// MonoToStereo duplicates each mono sample into a left/right pair.
func MonoToStereo(in []int16) []int16 {
	return MonoToStereoInto(in, make([]int16, len(in)*2))
}

// MonoToStereoInto writes interleaved stereo samples into dst, avoiding allocation.
// dst must have capacity >= len(in)*2. Returns the used portion.
func MonoToStereoInto(in []int16, dst []int16) []int16 {
	dst = dst[:len(in)*2]
	for i, s := range in {
		dst[i*2] = s
		dst[i*2+1] = s
	}
	return dst
}

// Int16ToBytes converts int16 samples to s16le byte slice.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Int16ToBytesInto writes s16le bytes into dst, avoiding allocation.
// dst must have capacity >= len(samples)*2. Returns the used portion.
func Int16ToBytesInto(samples []int16, dst []byte) []byte {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return dst[:len(samples)*2]
}

// BytesToInt16 converts s16le byte slice to int16 samples.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Resampler converts an interleaved int16 stream between sample rates with
// linear interpolation. State carries across calls so consecutive frames
// join without discontinuities. Not safe for concurrent use.
type Resampler struct {
	channels int
	step     float64 // input frames advanced per output frame
	pos      float64 // read position relative to the current input, >= -1
	prev     []int16 // last input frame of the previous call
}

// NewResampler creates a resampler from inRate to outRate.
func NewResampler(inRate, outRate, channels int) *Resampler {
	return &Resampler{
		channels: channels,
		step:     float64(inRate) / float64(outRate),
		prev:     make([]int16, channels),
	}
}

// Process appends the resampled form of in to dst and returns it.
func (r *Resampler) Process(in []int16, dst []int16) []int16 {
	ch := r.channels
	frames := len(in) / ch
	if frames == 0 {
		return dst
	}

	at := func(i, c int) float64 {
		if i < 0 {
			return float64(r.prev[c])
		}
		return float64(in[i*ch+c])
	}

	for r.pos < float64(frames-1) {
		i0 := int(math.Floor(r.pos))
		frac := r.pos - float64(i0)
		for c := 0; c < ch; c++ {
			v := at(i0, c)*(1-frac) + at(i0+1, c)*frac
			dst = append(dst, int16(math.Round(v)))
		}
		r.pos += r.step
	}

	r.pos -= float64(frames)
	copy(r.prev, in[(frames-1)*ch:frames*ch])
	return dst
}
