package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Audio output names accepted in AUDIO_OUTPUTS.
const (
	OutputSpeaker = "speaker"
	OutputWebRTC  = "webrtc"
	OutputNull    = "null"
)

type Config struct {
	ListenAddr       string
	SessionsFile     string
	SessionsWatch    bool
	AudioOutputs     []string
	StageDuration    time.Duration
	StopTimeout      time.Duration
	NarrationAddr    string
	NarrationTimeout time.Duration
	STUNServers      []string
	MaxListeners     int
	OpusBitrate      int
}

// Load reads the configuration from the environment. Malformed values are
// reported together rather than silently replaced by defaults.
func Load() (*Config, error) {
	var errs []error
	cfg := &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		SessionsFile:     getEnv("SESSIONS_FILE", "sessions.json"),
		SessionsWatch:    envBool("SESSIONS_WATCH", true, &errs),
		AudioOutputs:     envList("AUDIO_OUTPUTS", []string{OutputSpeaker}),
		StageDuration:    envDuration("STAGE_DURATION", 8*time.Second, &errs),
		StopTimeout:      envDuration("STOP_TIMEOUT", 200*time.Millisecond, &errs),
		NarrationAddr:    getEnv("NARRATION_ADDR", ""),
		NarrationTimeout: envDuration("NARRATION_TIMEOUT", 30*time.Second, &errs),
		STUNServers:      envList("STUN_SERVERS", []string{"stun:stun.l.google.com:19302"}),
		MaxListeners:     envInt("MAX_LISTENERS", 10, &errs),
		OpusBitrate:      envInt("OPUS_BITRATE", 64000, &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and output names.
func (c *Config) Validate() error {
	var errs []error
	if c.StageDuration <= 0 {
		errs = append(errs, fmt.Errorf("STAGE_DURATION must be > 0, got %v", c.StageDuration))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STOP_TIMEOUT must be > 0, got %v", c.StopTimeout))
	}
	if c.NarrationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("NARRATION_TIMEOUT must be > 0, got %v", c.NarrationTimeout))
	}
	if c.MaxListeners < 0 {
		errs = append(errs, fmt.Errorf("MAX_LISTENERS must be >= 0, got %d", c.MaxListeners))
	}
	if len(c.AudioOutputs) == 0 {
		errs = append(errs, errors.New("AUDIO_OUTPUTS must name at least one output"))
	}
	for _, o := range c.AudioOutputs {
		switch o {
		case OutputSpeaker, OutputWebRTC, OutputNull:
		default:
			errs = append(errs, fmt.Errorf("AUDIO_OUTPUTS: unknown output %q", o))
		}
	}
	return errors.Join(errs...)
}

// HasOutput reports whether name is among the configured audio outputs.
func (c *Config) HasOutput(name string) bool {
	for _, o := range c.AudioOutputs {
		if o == name {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func envBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

// envList splits a comma-separated value, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
