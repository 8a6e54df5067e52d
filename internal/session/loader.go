package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

// Defaults for stage fields left out of the catalog.
const (
	DefaultType     = "isochronic"
	DefaultCarrier  = 440.0
	DefaultMod      = 8.0
	DefaultBinaural = false
)

// SupportedSchema is the catalog schemaVersion range this build reads.
const SupportedSchema = "^1"

var schemaConstraint = mustConstraint(SupportedSchema)

type catalogFile struct {
	SchemaVersion string            `json:"schemaVersion"`
	Sessions      []json.RawMessage `json:"sessions"`
}

type sessionRecord struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Suggestion *string `json:"suggestion"`
}

type stageRecord struct {
	Type     *string  `json:"type"`
	Carrier  *float64 `json:"carrier"`
	Mod      *float64 `json:"mod"`
	Binaural *bool    `json:"binaural"`
}

// LoadFile reads a session catalog from path. On any failure it returns an
// empty list together with the error.
func LoadFile(path string) ([]Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return []Session{}, fmt.Errorf("open session catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a session catalog. On any failure it returns an empty list
// together with the error; a partially valid catalog is never returned.
func Load(r io.Reader) ([]Session, error) {
	sessions, err := parse(r)
	if err != nil {
		return []Session{}, err
	}
	return sessions, nil
}

func parse(r io.Reader) ([]Session, error) {
	var file catalogFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode session catalog: %w", err)
	}
	if file.SchemaVersion != "" {
		v, err := semver.NewVersion(file.SchemaVersion)
		if err != nil {
			return nil, fmt.Errorf("schemaVersion %q: %w", file.SchemaVersion, err)
		}
		if !schemaConstraint.Check(v) {
			return nil, fmt.Errorf("schemaVersion %s not supported (want %s)", v, SupportedSchema)
		}
	}
	if file.Sessions == nil {
		return nil, fmt.Errorf("decode session catalog: missing \"sessions\" array")
	}

	out := make([]Session, 0, len(file.Sessions))
	seen := make(map[string]bool, len(file.Sessions))
	for i, raw := range file.Sessions {
		s, err := parseSession(raw)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("session %d: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, nil
}

func parseSession(raw json.RawMessage) (Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Session{}, err
	}
	if rec.ID == "" {
		return Session{}, fmt.Errorf("missing id")
	}

	// Stage slots are sibling keys of id/title, so read them by name.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Session{}, err
	}

	s := Session{ID: rec.ID, Title: rec.Title}
	if rec.Suggestion != nil {
		s.Narration = *rec.Suggestion
	}
	for _, slot := range Slots {
		stageRaw, ok := fields[slot]
		if !ok || string(stageRaw) == "null" {
			continue
		}
		spec, err := parseStage(stageRaw)
		if err != nil {
			return Session{}, fmt.Errorf("%s %s: %w", rec.ID, slot, err)
		}
		s.Stages = append(s.Stages, Stage{Name: slot, Tone: spec})
	}
	return s, nil
}

func parseStage(raw json.RawMessage) (tone.Spec, error) {
	var rec stageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return tone.Spec{}, err
	}

	typ := DefaultType
	if rec.Type != nil {
		typ = *rec.Type
	}
	w, err := tone.ParseWaveform(typ)
	if err != nil {
		return tone.Spec{}, err
	}

	spec := tone.Spec{
		Waveform:  w,
		CarrierHz: DefaultCarrier,
		ModHz:     DefaultMod,
		Binaural:  DefaultBinaural,
	}
	if rec.Carrier != nil {
		spec.CarrierHz = *rec.Carrier
	}
	if rec.Mod != nil {
		spec.ModHz = *rec.Mod
	}
	if rec.Binaural != nil {
		spec.Binaural = *rec.Binaural
	}
	if err := spec.Validate(); err != nil {
		return tone.Spec{}, err
	}
	return spec, nil
}

func mustConstraint(expr string) *semver.Constraints {
	c, err := semver.NewConstraint(expr)
	if err != nil {
		panic(err)
	}
	return c
}
