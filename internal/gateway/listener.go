package gateway

import (
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/datachannel"
	"github.com/RenatoCabral2022/hypnotone/internal/playback"
)

// SampleWriter accepts encoded media samples. Satisfied by
// *webrtc.TrackLocalStaticSample.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// TextSender delivers text messages. Satisfied by *webrtc.DataChannel.
type TextSender interface {
	SendText(s string) error
}

type listener struct {
	id     string
	pc     *webrtc.PeerConnection
	track  SampleWriter
	dc     TextSender
	logger *zap.Logger
}

func (l *listener) writeSample(s media.Sample) {
	if err := l.track.WriteSample(s); err != nil {
		l.logger.Debug("write sample", zap.Error(err))
	}
}

// send is best-effort: the data channel may not be open yet.
func (l *listener) send(msg []byte) {
	if l.dc == nil {
		return
	}
	if err := l.dc.SendText(string(msg)); err != nil {
		l.logger.Debug("send data channel message", zap.Error(err))
	}
}

func (l *listener) close() {
	if l.pc == nil {
		return
	}
	if err := l.pc.Close(); err != nil {
		l.logger.Warn("close peer connection", zap.Error(err))
	}
}

// Broadcast forwards a playback event to every listener's data channel.
// It is registered as a sequencer observer.
func (gw *Gateway) Broadcast(ev playback.Event) {
	msgType, payload, ok := envelopeFor(ev)
	if !ok {
		return
	}
	msg, err := datachannel.NewEnvelope(msgType, "", payload)
	if err != nil {
		gw.logger.Warn("marshal event", zap.Error(err))
		return
	}
	for _, l := range gw.snapshot() {
		l.send(msg)
	}
}

func envelopeFor(ev playback.Event) (string, interface{}, bool) {
	stage := datachannel.EventStage{
		RunID:     ev.RunID,
		SessionID: ev.SessionID,
		Stage:     ev.Stage,
		Index:     ev.Index,
		Tone:      ev.Tone,
		Reason:    ev.Reason,
		Error:     ev.Error,
	}
	switch ev.Type {
	case playback.EventStageStarted:
		return datachannel.TypeStageStarted, stage, true
	case playback.EventStageFinished:
		return datachannel.TypeStageFinished, stage, true
	case playback.EventStageFailed:
		return datachannel.TypeStageFailed, stage, true
	case playback.EventSessionFinished:
		return datachannel.TypeSessionFinished, datachannel.EventSessionFinished{
			RunID:     ev.RunID,
			SessionID: ev.SessionID,
			Reason:    ev.Reason,
		}, true
	default:
		return "", nil, false
	}
}
