//go:build soak

package gateway_test

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/audio"
	"github.com/RenatoCabral2022/hypnotone/internal/config"
	"github.com/RenatoCabral2022/hypnotone/internal/gateway"
	"github.com/RenatoCabral2022/hypnotone/internal/narration"
	"github.com/RenatoCabral2022/hypnotone/internal/playback"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
	"github.com/RenatoCabral2022/hypnotone/internal/testutil"
	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

const (
	soakDuration   = 2 * time.Minute
	soakStage      = 300 * time.Millisecond
	replayInterval = 700 * time.Millisecond
)

type nopEncoder struct{}

func (nopEncoder) Encode(pcm []int16, dst []byte) (int, error) {
	return copy(dst, []byte{0xfc}), nil
}

func soakSession(i int) session.Session {
	carrier := 150 + float64(i%10)*10
	return session.Session{
		ID:        fmt.Sprintf("soak-%d", i),
		Narration: "breathe",
		Stages: []session.Stage{
			{Name: session.SlotInduction, Tone: tone.Spec{Waveform: tone.Isochronic, CarrierHz: carrier, ModHz: 10}},
			{Name: session.SlotDeepening, Tone: tone.Spec{Waveform: tone.Continuous, CarrierHz: carrier, Binaural: true}},
			{Name: session.SlotReinforcement, Tone: tone.Spec{Waveform: tone.Burst, CarrierHz: carrier, ModHz: 4}},
			{Name: session.SlotExit, Tone: tone.Spec{Waveform: tone.Continuous, CarrierHz: 440}},
		},
	}
}

func TestSoakStability(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping soak test in short mode")
	}

	logger, _ := zap.NewDevelopment()

	// Record baseline
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	baselineGoroutines := runtime.NumGoroutine()
	t.Logf("baseline goroutines: %d", baselineGoroutines)

	cfg := &config.Config{MaxListeners: 5}
	gw := gateway.NewForTest(cfg, logger, func(int, int) (gateway.Encoder, error) {
		return nopEncoder{}, nil
	})
	ctrl := playback.NewController(audio.Fanout(audio.NullDevice{}, gw), logger)
	seq := playback.NewSequencer(ctrl, &narration.MockNarrator{Delay: 50 * time.Millisecond}, logger,
		playback.WithStageDuration(soakStage),
		playback.WithObserver(gw.Broadcast),
	)

	// Replay sessions on a fixed interval so runs are interrupted at
	// varying points, with an explicit stop every few cycles.
	deadline := time.Now().Add(soakDuration)
	var memSamples []uint64
	sampleTicker := time.NewTicker(15 * time.Second)
	defer sampleTicker.Stop()
	replayTicker := time.NewTicker(replayInterval)
	defer replayTicker.Stop()

	for i := 0; time.Now().Before(deadline); {
		select {
		case <-sampleTicker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			goroutines := runtime.NumGoroutine()
			memSamples = append(memSamples, ms.HeapInuse)
			t.Logf("goroutines=%d heapInuse=%dKB heapSys=%dKB",
				goroutines, ms.HeapInuse/1024, ms.HeapSys/1024)
		case <-replayTicker.C:
			if i%5 == 4 {
				seq.StopAudio()
			} else {
				seq.PlaySession(soakSession(i))
			}
			i++
		}
	}

	seq.StopAudio()
	gw.Shutdown()

	// Give narration goroutines time to drain
	time.Sleep(2 * time.Second)
	runtime.GC()
	time.Sleep(500 * time.Millisecond)

	testutil.AssertNoGoroutineLeaks(t, baselineGoroutines, 10)

	// Assert memory is not growing monotonically
	if len(memSamples) >= 4 {
		firstAvg := (memSamples[0] + memSamples[1]) / 2
		lastAvg := (memSamples[len(memSamples)-1] + memSamples[len(memSamples)-2]) / 2
		ratio := float64(lastAvg) / float64(firstAvg)
		t.Logf("memory ratio (last/first avg): %.2f", ratio)
		if ratio > 3.0 {
			t.Errorf("possible memory leak: first avg=%dKB, last avg=%dKB, ratio=%.2f",
				firstAvg/1024, lastAvg/1024, ratio)
		}
	}

	t.Log("soak test completed successfully")
}
