package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

const sampleCatalog = `{
  "schemaVersion": "1.0.0",
  "sessions": [
    {
      "id": "sleep",
      "title": "Deep Sleep",
      "suggestion": "relax",
      "induction": {"type": "isochronic", "carrier": 440, "mod": 8},
      "deepening": {"type": "burst", "carrier": 200, "mod": 4, "binaural": true},
      "exit": {"type": "continuous", "carrier": 528}
    },
    {
      "id": "focus",
      "title": "Focus",
      "reinforcement": {}
    }
  ]
}`

func TestLoadParsesStagesInSlotOrder(t *testing.T) {
	sessions, err := Load(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}

	s := sessions[0]
	if s.ID != "sleep" || s.Title != "Deep Sleep" || s.Narration != "relax" {
		t.Errorf("unexpected session header: %+v", s)
	}
	if !s.HasNarration() {
		t.Error("HasNarration() = false, want true")
	}
	names := []string{}
	for _, st := range s.Stages {
		names = append(names, st.Name)
	}
	if strings.Join(names, ",") != "induction,deepening,exit" {
		t.Errorf("stage order = %v", names)
	}

	deep := s.Stages[1].Tone
	want := tone.Spec{Waveform: tone.Burst, CarrierHz: 200, ModHz: 4, Binaural: true}
	if deep != want {
		t.Errorf("deepening = %+v, want %+v", deep, want)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	sessions, err := Load(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatal(err)
	}
	focus := sessions[1]
	if focus.HasNarration() {
		t.Error("focus should have no narration")
	}
	if len(focus.Stages) != 1 || focus.Stages[0].Name != SlotReinforcement {
		t.Fatalf("focus stages = %+v", focus.Stages)
	}
	want := tone.Spec{Waveform: tone.Isochronic, CarrierHz: 440.0, ModHz: 8.0, Binaural: false}
	if got := focus.Stages[0].Tone; got != want {
		t.Errorf("defaults = %+v, want %+v", got, want)
	}
}

func TestLoadErrorsReturnEmptyList(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"sessions": [`},
		{"no sessions", `{}`},
		{"unknown type", `{"sessions":[{"id":"a","induction":{"type":"sine"}}]}`},
		{"zero carrier", `{"sessions":[{"id":"a","induction":{"carrier":0}}]}`},
		{"missing id", `{"sessions":[{"title":"x"}]}`},
		{"duplicate id", `{"sessions":[{"id":"a"},{"id":"a"}]}`},
		{"future schema", `{"schemaVersion":"2.0.0","sessions":[]}`},
		{"bad schema", `{"schemaVersion":"latest","sessions":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := Load(strings.NewReader(tt.json))
			if err == nil {
				t.Fatal("expected error")
			}
			if sessions == nil || len(sessions) != 0 {
				t.Errorf("sessions = %v, want empty non-nil list", sessions)
			}
		})
	}
}

func TestLoadUnknownTypeIsInvalidSpec(t *testing.T) {
	_, err := Load(strings.NewReader(`{"sessions":[{"id":"a","exit":{"type":"noise"}}]}`))
	if !errors.Is(err, tone.ErrInvalidSpec) {
		t.Errorf("err = %v, want ErrInvalidSpec", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	sessions, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil || len(sessions) != 0 {
		t.Errorf("LoadFile(missing) = %v, %v", sessions, err)
	}
}

// --- Catalog ---

func writeCatalog(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCatalogReloadAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	writeCatalog(t, path, sampleCatalog)

	c := NewCatalog(path, zap.NewNop())
	if err := c.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := len(c.Sessions()); got != 2 {
		t.Errorf("Sessions() len = %d, want 2", got)
	}
	if _, err := c.Get("focus"); err != nil {
		t.Errorf("Get(focus): %v", err)
	}
	if _, err := c.Get("missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Get(missing) err = %v, want ErrUnknownSession", err)
	}

	writeCatalog(t, path, `not json`)
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if len(c.Sessions()) != 0 || c.LastError() == nil {
		t.Error("failed reload must empty the catalog and record the error")
	}
}

func TestCatalogWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	writeCatalog(t, path, `{"sessions":[{"id":"one"}]}`)

	c := NewCatalog(path, zap.NewNop())
	c.Reload()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Watch(ctx)
	time.Sleep(100 * time.Millisecond) // let the watcher register

	writeCatalog(t, path, sampleCatalog)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.Sessions()) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("catalog not reloaded, sessions = %d", len(c.Sessions()))
}
