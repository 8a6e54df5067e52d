package audio

import "sync"

// MaxPacketSize bounds a single encoded Opus packet.
const MaxPacketSize = 4000

// OutboundFrameBuffers holds pre-allocated buffers for the
// upmix→resample→encode pipeline feeding remote listeners.
// Used via sync.Pool to avoid per-frame allocations in the hot path.
type OutboundFrameBuffers struct {
	StereoBuf   []int16 // cap: 2048 (one 1024-sample frame, stereo)
	ResampleBuf []int16 // cap: 6144 (resampled output plus carry-over)
	PacketBuf   []byte  // cap: MaxPacketSize
}

var outboundPool = sync.Pool{
	New: func() interface{} {
		return &OutboundFrameBuffers{
			StereoBuf:   make([]int16, 0, 2048),
			ResampleBuf: make([]int16, 0, 6144),
			PacketBuf:   make([]byte, MaxPacketSize),
		}
	},
}

// AcquireOutboundBuffers gets a set of buffers from the pool.
func AcquireOutboundBuffers() *OutboundFrameBuffers {
	return outboundPool.Get().(*OutboundFrameBuffers)
}

// ReleaseOutboundBuffers returns buffers to the pool.
func ReleaseOutboundBuffers(b *OutboundFrameBuffers) {
	b.StereoBuf = b.StereoBuf[:0]
	b.ResampleBuf = b.ResampleBuf[:0]
	outboundPool.Put(b)
}
