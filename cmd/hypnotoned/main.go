package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/api"
	"github.com/RenatoCabral2022/hypnotone/internal/audio"
	"github.com/RenatoCabral2022/hypnotone/internal/codec"
	"github.com/RenatoCabral2022/hypnotone/internal/config"
	"github.com/RenatoCabral2022/hypnotone/internal/gateway"
	"github.com/RenatoCabral2022/hypnotone/internal/narration"
	"github.com/RenatoCabral2022/hypnotone/internal/playback"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
	"github.com/RenatoCabral2022/hypnotone/internal/speaker"
	"github.com/RenatoCabral2022/hypnotone/internal/tone"
)

const speakerBuffer = 100 * time.Millisecond

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Info("hypnotoned starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("sessions", cfg.SessionsFile),
		zap.Strings("outputs", cfg.AudioOutputs),
		zap.Duration("stageDuration", cfg.StageDuration),
		zap.String("narration", cfg.NarrationAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog := session.NewCatalog(cfg.SessionsFile, logger)
	if err := catalog.Reload(); err != nil {
		// An unreadable catalog is served empty; a fixed file is picked up
		// by the watcher or POST /v1/sessions/reload.
		logger.Error("session catalog not loaded", zap.Error(err))
	}
	if cfg.SessionsWatch {
		go func() {
			if err := catalog.Watch(ctx); err != nil {
				logger.Error("session catalog watcher stopped", zap.Error(err))
			}
		}()
	}

	var (
		devices []audio.Device
		gw      *gateway.Gateway
	)
	for _, out := range cfg.AudioOutputs {
		switch out {
		case config.OutputSpeaker:
			devices = append(devices, speaker.New(tone.SampleRate, speakerBuffer, logger))
		case config.OutputNull:
			devices = append(devices, audio.NullDevice{})
		case config.OutputWebRTC:
			bitrate := cfg.OpusBitrate
			gw, err = gateway.New(cfg, logger, func(sampleRate, channels int) (gateway.Encoder, error) {
				enc, err := codec.NewOpusEncoder(sampleRate, channels, bitrate)
				if err != nil {
					return nil, err
				}
				return enc, nil
			})
			if err != nil {
				logger.Fatal("failed to create gateway", zap.Error(err))
			}
			devices = append(devices, gw)
		}
	}

	var narrator playback.Narrator = narration.LogNarrator{Logger: logger}
	if cfg.NarrationAddr != "" {
		client, err := narration.NewClient(cfg.NarrationAddr)
		if err != nil {
			logger.Fatal("failed to create narration client", zap.Error(err))
		}
		defer client.Close()
		narrator = client
	}

	ctrl := playback.NewController(audio.Fanout(devices...), logger,
		playback.WithStopTimeout(cfg.StopTimeout))
	seqOpts := []playback.SequencerOption{
		playback.WithStageDuration(cfg.StageDuration),
		playback.WithNarrationTimeout(cfg.NarrationTimeout),
	}
	if gw != nil {
		seqOpts = append(seqOpts, playback.WithObserver(gw.Broadcast))
	}
	seq := playback.NewSequencer(ctrl, narrator, logger, seqOpts...)

	var listeners api.Listeners
	if gw != nil {
		listeners = gw
	}
	h := api.NewHandlers(catalog, seq, listeners, logger)
	if gw != nil {
		gw.SetCommander(h.Player())
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewRouter(h, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP API failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	seq.StopAudio()
	if gw != nil {
		gw.Shutdown()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
