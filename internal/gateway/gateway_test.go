package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/audio"
	"github.com/RenatoCabral2022/hypnotone/internal/config"
	"github.com/RenatoCabral2022/hypnotone/internal/datachannel"
	"github.com/RenatoCabral2022/hypnotone/internal/playback"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

type fakeEncoder struct {
	mu      sync.Mutex
	lengths []int
}

func (e *fakeEncoder) Encode(pcm []int16, dst []byte) (int, error) {
	e.mu.Lock()
	e.lengths = append(e.lengths, len(pcm))
	e.mu.Unlock()
	return copy(dst, []byte{0xfc, 0xff, 0xfe}), nil
}

type fakeTrack struct {
	mu      sync.Mutex
	samples []media.Sample
}

func (t *fakeTrack) WriteSample(s media.Sample) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.Data = append([]byte(nil), s.Data...)
	t.samples = append(t.samples, s)
	return nil
}

func (t *fakeTrack) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

type fakeDC struct {
	mu   sync.Mutex
	msgs []datachannel.Envelope
}

func (d *fakeDC) SendText(s string) error {
	var env datachannel.Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return err
	}
	d.mu.Lock()
	d.msgs = append(d.msgs, env)
	d.mu.Unlock()
	return nil
}

func (d *fakeDC) all() []datachannel.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]datachannel.Envelope(nil), d.msgs...)
}

type fakeCommander struct {
	mu     sync.Mutex
	played []string
	stops  int
	known  map[string]bool
}

func (c *fakeCommander) Play(id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known[id] {
		return "", fmt.Errorf("%w: %s", session.ErrUnknownSession, id)
	}
	c.played = append(c.played, id)
	return "run-1", nil
}

func (c *fakeCommander) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

func newTestGateway(t *testing.T, maxListeners int) (*Gateway, *fakeEncoder) {
	t.Helper()
	enc := &fakeEncoder{}
	cfg := &config.Config{MaxListeners: maxListeners, STUNServers: []string{"stun:stun.example.org:3478"}}
	gw := NewForTest(cfg, zap.NewNop(), func(sampleRate, channels int) (Encoder, error) {
		if sampleRate != 48000 || channels != 2 {
			return nil, fmt.Errorf("unexpected layout %d/%d", sampleRate, channels)
		}
		return enc, nil
	})
	return gw, enc
}

func addTestListener(t *testing.T, gw *Gateway, id string) (*fakeTrack, *fakeDC) {
	t.Helper()
	track, dc := &fakeTrack{}, &fakeDC{}
	if err := gw.addListener(&listener{id: id, track: track, dc: dc, logger: zap.NewNop()}); err != nil {
		t.Fatalf("addListener: %v", err)
	}
	return track, dc
}

func TestSinkEncodesPacketsForEveryListener(t *testing.T) {
	gw, enc := newTestGateway(t, 4)
	a, _ := addTestListener(t, gw, "a")
	b, _ := addTestListener(t, gw, "b")

	s, err := gw.Open(audio.Format{SampleRate: tone.SampleRate, Channels: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.Channels() != 2 {
		t.Errorf("Channels() = %d, want 2", s.Channels())
	}

	gen, _ := tone.NewGenerator(tone.Spec{Waveform: tone.Continuous, CarrierHz: 440, Binaural: true})
	for i := 0; i < 10; i++ {
		if err := s.Write(context.Background(), gen.NextFrame()); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// 10 * 1024 frames at 44.1 kHz resample to ~11146 frames at 48 kHz,
	// which is 11 complete 960-frame packets.
	for _, tr := range []*fakeTrack{a, b} {
		if n := tr.count(); n != 11 {
			t.Errorf("listener got %d packets, want 11", n)
		}
		for _, smp := range tr.samples {
			if smp.Duration != 20*time.Millisecond || len(smp.Data) != 3 {
				t.Fatalf("sample = %v bytes / %v", len(smp.Data), smp.Duration)
			}
		}
	}
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if len(enc.lengths) != 11 {
		t.Errorf("encoded %d packets, want 11 (once per packet, not per listener)", len(enc.lengths))
	}
	for _, n := range enc.lengths {
		if n != 1920 {
			t.Fatalf("encoder got %d samples, want 1920", n)
		}
	}
}

func TestSinkPacesRealtime(t *testing.T) {
	gw, _ := newTestGateway(t, 1)
	s, err := gw.Open(audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	frame := make([]int16, 960*2)
	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := s.Write(context.Background(), frame); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("6 packets took %v, want roughly 120ms", elapsed)
	}
}

func TestSinkCancelAndClose(t *testing.T) {
	gw, _ := newTestGateway(t, 1)
	s, err := gw.Open(audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Write(ctx, make([]int16, 960*2*4)); !errors.Is(err, context.Canceled) {
		t.Errorf("Write with cancelled ctx = %v, want context.Canceled", err)
	}

	s.Close()
	s.Close()
	if err := s.Write(context.Background(), make([]int16, 960*2)); !errors.Is(err, audio.ErrSinkClosed) {
		t.Errorf("Write after Close = %v, want ErrSinkClosed", err)
	}
}

func TestSinkRejectsBadFormat(t *testing.T) {
	gw, _ := newTestGateway(t, 1)
	if _, err := gw.Open(audio.Format{SampleRate: 44100, Channels: 6}); err == nil {
		t.Error("expected error for 6 channels")
	}
	if _, err := gw.Open(audio.Format{SampleRate: 0, Channels: 2}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestListenerRegistry(t *testing.T) {
	gw, _ := newTestGateway(t, 1)
	addTestListener(t, gw, "a")

	if gw.ListenerCount() != 1 {
		t.Fatalf("ListenerCount = %d, want 1", gw.ListenerCount())
	}
	if _, err := gw.CreateListener("b"); !errors.Is(err, ErrTooManyListeners) {
		t.Errorf("CreateListener at cap = %v, want ErrTooManyListeners", err)
	}
	if _, err := gw.CreateListener("a"); !errors.Is(err, ErrListenerExists) {
		t.Errorf("CreateListener duplicate = %v, want ErrListenerExists", err)
	}
	if err := gw.SetAnswer("missing", "v=0"); !errors.Is(err, ErrListenerNotFound) {
		t.Errorf("SetAnswer unknown = %v, want ErrListenerNotFound", err)
	}
	if err := gw.DeleteListener("a"); err != nil {
		t.Errorf("DeleteListener: %v", err)
	}
	if err := gw.DeleteListener("a"); !errors.Is(err, ErrListenerNotFound) {
		t.Errorf("second DeleteListener = %v, want ErrListenerNotFound", err)
	}
	if gw.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d after delete", gw.ListenerCount())
	}

	servers := gw.ICEServers()
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.example.org:3478" {
		t.Errorf("ICEServers = %+v", servers)
	}
}

func TestShutdownRemovesListeners(t *testing.T) {
	gw, _ := newTestGateway(t, 3)
	addTestListener(t, gw, "a")
	addTestListener(t, gw, "b")
	gw.Shutdown()
	if gw.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d after Shutdown", gw.ListenerCount())
	}
}

func TestBroadcastEvents(t *testing.T) {
	gw, _ := newTestGateway(t, 2)
	_, dcA := addTestListener(t, gw, "a")
	_, dcB := addTestListener(t, gw, "b")

	spec := tone.Spec{Waveform: tone.Isochronic, CarrierHz: 200, ModHz: 10}
	gw.Broadcast(playback.Event{Type: playback.EventSessionStarted, RunID: "r1"})
	gw.Broadcast(playback.Event{Type: playback.EventStageStarted, RunID: "r1", SessionID: "s",
		Stage: "induction", Index: 0, Tone: &spec})
	gw.Broadcast(playback.Event{Type: playback.EventSessionFinished, RunID: "r1", SessionID: "s",
		Reason: playback.ReasonCompleted})

	for _, dc := range []*fakeDC{dcA, dcB} {
		msgs := dc.all()
		if len(msgs) != 2 {
			t.Fatalf("got %d messages, want 2", len(msgs))
		}
		if msgs[0].Type != datachannel.TypeStageStarted {
			t.Errorf("first type = %q", msgs[0].Type)
		}
		var st datachannel.EventStage
		if err := json.Unmarshal(msgs[0].Payload, &st); err != nil {
			t.Fatalf("unmarshal stage: %v", err)
		}
		if st.Stage != "induction" || st.Tone == nil || *st.Tone != spec {
			t.Errorf("stage payload = %+v", st)
		}
		if msgs[1].Type != datachannel.TypeSessionFinished {
			t.Errorf("second type = %q", msgs[1].Type)
		}
	}
}

func TestDataChannelCommands(t *testing.T) {
	gw, _ := newTestGateway(t, 1)
	_, dc := addTestListener(t, gw, "a")
	cmd := &fakeCommander{known: map[string]bool{"deep-relax": true}}

	// Without a commander the listener gets an error back.
	gw.dispatch("a", []byte(`{"type":"command.stop","actionId":"x0"}`))
	gw.SetCommander(cmd)

	gw.dispatch("a", []byte(`{"type":"command.play","actionId":"x1","payload":{"sessionId":"deep-relax"}}`))
	gw.dispatch("a", []byte(`{"type":"command.play","actionId":"x2","payload":{"sessionId":"nope"}}`))
	gw.dispatch("a", []byte(`{"type":"command.play","actionId":"x3","payload":{}}`))
	gw.dispatch("a", []byte(`{"type":"command.stop","actionId":"x4"}`))
	gw.dispatch("a", []byte(`{"type":"command.rewind","actionId":"x5"}`))

	if len(cmd.played) != 1 || cmd.played[0] != "deep-relax" {
		t.Errorf("played = %v", cmd.played)
	}
	if cmd.stops != 1 {
		t.Errorf("stops = %d, want 1", cmd.stops)
	}

	want := map[string]string{
		"x0": datachannel.CodeInternal,
		"x2": datachannel.CodeUnknownSession,
		"x3": datachannel.CodeBadRequest,
		"x5": datachannel.CodeUnknownCommand,
	}
	msgs := dc.all()
	if len(msgs) != len(want) {
		t.Fatalf("got %d error messages, want %d", len(msgs), len(want))
	}
	for _, m := range msgs {
		if m.Type != datachannel.TypeError {
			t.Errorf("type = %q, want error", m.Type)
			continue
		}
		var e datachannel.EventError
		if err := json.Unmarshal(m.Payload, &e); err != nil {
			t.Fatalf("unmarshal error payload: %v", err)
		}
		if e.Code != want[m.ActionID] {
			t.Errorf("action %s code = %q, want %q", m.ActionID, e.Code, want[m.ActionID])
		}
	}
}
