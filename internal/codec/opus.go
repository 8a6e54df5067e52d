// Package codec wraps the cgo Opus binding so packages that only route
// encoded audio do not need libopus to build or test.
package codec

import (
	"fmt"

	"github.com/hraban/opus"
)

// OpusEncoder converts 48kHz int16 PCM to Opus packets for WebRTC output.
type OpusEncoder struct {
	enc *opus.Encoder
}

// NewOpusEncoder creates an encoder tuned for music (tones, not speech).
// bitrate <= 0 keeps the libopus default.
func NewOpusEncoder(sampleRate, channels, bitrate int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if bitrate > 0 {
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("set opus bitrate: %w", err)
		}
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode converts one interleaved PCM frame into dst and returns the packet length.
func (e *OpusEncoder) Encode(pcm []int16, dst []byte) (int, error) {
	return e.enc.Encode(pcm, dst)
}
