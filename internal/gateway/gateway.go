package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/config"
	"github.com/RenatoCabral2022/hypnotone/internal/datachannel"
	"github.com/RenatoCabral2022/hypnotone/internal/metrics"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
)

const (
	iceGatherTimeout = 10 * time.Second

	// Outbound audio is always 48 kHz stereo Opus in 20 ms packets.
	opusSampleRate = 48000
	opusChannels   = 2
	packetDuration = 20 * time.Millisecond
	packetSamples  = opusSampleRate / 50 * opusChannels
)

var (
	ErrListenerNotFound = errors.New("listener not found")
	ErrTooManyListeners = errors.New("max listeners reached")
	ErrListenerExists   = errors.New("listener already exists")
	errNoCommander      = errors.New("playback commands unavailable")
)

// Encoder compresses one 20 ms stereo PCM packet.
type Encoder interface {
	Encode(pcm []int16, dst []byte) (int, error)
}

// EncoderFactory creates an Encoder for the given layout.
type EncoderFactory func(sampleRate, channels int) (Encoder, error)

// Commander starts and stops sessions on behalf of listeners.
type Commander interface {
	Play(sessionID string) (runID string, err error)
	Stop()
}

// Gateway manages WebRTC listeners. It is also an audio.Device: every
// frame written to a sink it opens is encoded once and sent to all
// connected listeners.
type Gateway struct {
	cfg        *config.Config
	api        *webrtc.API
	logger     *zap.Logger
	newEncoder EncoderFactory
	router     *datachannel.Router

	mu        sync.RWMutex
	listeners map[string]*listener
	commander Commander
}

// New creates a Gateway with Opus codecs registered and interceptors configured.
func New(cfg *config.Config, logger *zap.Logger, newEncoder EncoderFactory) (*Gateway, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   opusSampleRate,
			Channels:    opusChannels,
			SDPFmtpLine: "minptime=10;useinbandfec=1;stereo=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	// NACK responder so listeners on lossy links can request retransmits.
	ir := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	ir.Add(responder)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
	)
	return newGateway(cfg, api, logger, newEncoder), nil
}

// NewForTest creates a Gateway without a WebRTC API. Listeners are added
// directly by tests.
func NewForTest(cfg *config.Config, logger *zap.Logger, newEncoder EncoderFactory) *Gateway {
	return newGateway(cfg, nil, logger, newEncoder)
}

func newGateway(cfg *config.Config, api *webrtc.API, logger *zap.Logger, newEncoder EncoderFactory) *Gateway {
	gw := &Gateway{
		cfg:        cfg,
		api:        api,
		logger:     logger,
		newEncoder: newEncoder,
		listeners:  make(map[string]*listener),
	}
	gw.router = datachannel.NewRouter(logger)
	gw.router.Register(datachannel.TypeCommandPlay, gw.handlePlay)
	gw.router.Register(datachannel.TypeCommandStop, gw.handleStop)
	return gw
}

// SetCommander wires data channel commands to playback.
func (gw *Gateway) SetCommander(c Commander) {
	gw.mu.Lock()
	gw.commander = c
	gw.mu.Unlock()
}

// ListenerCount returns the current number of listeners.
func (gw *Gateway) ListenerCount() int {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return len(gw.listeners)
}

// ICEServers returns the configured STUN/TURN servers as WebRTC config objects.
func (gw *Gateway) ICEServers() []webrtc.ICEServer {
	if len(gw.cfg.STUNServers) == 0 {
		return nil
	}
	urls := make([]string, len(gw.cfg.STUNServers))
	copy(urls, gw.cfg.STUNServers)
	return []webrtc.ICEServer{{URLs: urls}}
}

// CreateListener sets up a PeerConnection with an outbound Opus track and
// a control data channel. Returns the SDP offer for the client to answer.
func (gw *Gateway) CreateListener(id string) (string, error) {
	gw.mu.RLock()
	_, exists := gw.listeners[id]
	count := len(gw.listeners)
	gw.mu.RUnlock()
	if exists {
		return "", fmt.Errorf("%w: %s", ErrListenerExists, id)
	}
	if count >= gw.cfg.MaxListeners {
		metrics.ListenersRejectedTotal.Inc()
		gw.logger.Warn("listener cap reached", zap.Int("current", count), zap.Int("max", gw.cfg.MaxListeners))
		return "", ErrTooManyListeners
	}

	logger := gw.logger.With(zap.String("listener", id))

	pc, err := gw.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: gw.ICEServers(),
	})
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: opusSampleRate,
			Channels:  opusChannels,
		},
		"audio",
		"hypnotone",
	)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return "", fmt.Errorf("add audio track: %w", err)
	}

	// Data channel must exist before CreateOffer so SCTP is in the SDP.
	ordered := true
	dc, err := pc.CreateDataChannel("control", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create data channel: %w", err)
	}
	dc.OnOpen(func() {
		logger.Info("data channel opened")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		gw.dispatch(id, msg.Data)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Info("ICE state", zap.String("state", state.String()))
		if state == webrtc.ICEConnectionStateFailed ||
			state == webrtc.ICEConnectionStateDisconnected ||
			state == webrtc.ICEConnectionStateClosed {
			go gw.DeleteListener(id)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}

	gatherDone := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherDone:
	case <-time.After(iceGatherTimeout):
		logger.Warn("ICE gathering timed out, proceeding with partial candidates")
	}

	sdp := pc.LocalDescription().SDP

	l := &listener{id: id, pc: pc, track: track, dc: dc, logger: logger}
	if err := gw.addListener(l); err != nil {
		pc.Close()
		return "", err
	}

	logger.Info("listener created", zap.Int("sdpLen", len(sdp)))
	return sdp, nil
}

func (gw *Gateway) addListener(l *listener) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if _, ok := gw.listeners[l.id]; ok {
		return fmt.Errorf("%w: %s", ErrListenerExists, l.id)
	}
	if len(gw.listeners) >= gw.cfg.MaxListeners {
		metrics.ListenersRejectedTotal.Inc()
		return ErrTooManyListeners
	}
	gw.listeners[l.id] = l
	metrics.ActiveListeners.Inc()
	return nil
}

// SetAnswer applies the client's SDP answer to the listener's PeerConnection.
func (gw *Gateway) SetAnswer(id, sdpAnswer string) error {
	gw.mu.RLock()
	l, ok := gw.listeners[id]
	gw.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrListenerNotFound, id)
	}
	if l.pc == nil {
		return nil
	}
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdpAnswer,
	})
}

// DeleteListener tears down a listener and removes it from the registry.
func (gw *Gateway) DeleteListener(id string) error {
	gw.mu.Lock()
	l, ok := gw.listeners[id]
	if ok {
		delete(gw.listeners, id)
	}
	gw.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrListenerNotFound, id)
	}
	l.close()
	metrics.ActiveListeners.Dec()
	gw.logger.Info("listener deleted", zap.String("listener", id))
	return nil
}

// Shutdown closes all listeners.
func (gw *Gateway) Shutdown() {
	gw.mu.Lock()
	listeners := make([]*listener, 0, len(gw.listeners))
	for _, l := range gw.listeners {
		listeners = append(listeners, l)
	}
	gw.listeners = make(map[string]*listener)
	gw.mu.Unlock()

	for _, l := range listeners {
		l.close()
	}
	metrics.ActiveListeners.Set(0)
	gw.logger.Info("gateway shutdown complete")
}

func (gw *Gateway) snapshot() []*listener {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	out := make([]*listener, 0, len(gw.listeners))
	for _, l := range gw.listeners {
		out = append(out, l)
	}
	return out
}

func (gw *Gateway) lookup(id string) *listener {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.listeners[id]
}

func (gw *Gateway) dispatch(listenerID string, raw []byte) {
	err := gw.router.Dispatch(listenerID, raw)
	if err == nil {
		return
	}
	gw.logger.Warn("dispatch error", zap.String("listener", listenerID), zap.Error(err))

	var env datachannel.Envelope
	_ = json.Unmarshal(raw, &env)
	code := datachannel.CodeBadRequest
	switch {
	case errors.Is(err, datachannel.ErrUnknownType):
		code = datachannel.CodeUnknownCommand
	case errors.Is(err, session.ErrUnknownSession):
		code = datachannel.CodeUnknownSession
	case errors.Is(err, errNoCommander):
		code = datachannel.CodeInternal
	}
	gw.sendError(listenerID, env.ActionID, code, err.Error())
}

func (gw *Gateway) handlePlay(listenerID, actionID string, payload json.RawMessage) error {
	var cmd datachannel.CommandPlay
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("invalid play payload: %w", err)
	}
	if cmd.SessionID == "" {
		return errors.New("sessionId required")
	}

	gw.mu.RLock()
	c := gw.commander
	gw.mu.RUnlock()
	if c == nil {
		return errNoCommander
	}

	runID, err := c.Play(cmd.SessionID)
	if err != nil {
		return err
	}
	gw.logger.Info("play command",
		zap.String("listener", listenerID),
		zap.String("action", actionID),
		zap.String("session", cmd.SessionID),
		zap.String("run", runID),
	)
	return nil
}

func (gw *Gateway) handleStop(listenerID, actionID string, _ json.RawMessage) error {
	gw.mu.RLock()
	c := gw.commander
	gw.mu.RUnlock()
	if c == nil {
		return errNoCommander
	}
	c.Stop()
	gw.logger.Info("stop command", zap.String("listener", listenerID), zap.String("action", actionID))
	return nil
}

// sendError sends an error event to a single listener.
func (gw *Gateway) sendError(listenerID, actionID, code, message string) {
	l := gw.lookup(listenerID)
	if l == nil {
		return
	}
	msg, err := datachannel.NewEnvelope(datachannel.TypeError, actionID, datachannel.EventError{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	l.send(msg)
}
