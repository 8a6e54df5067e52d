package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/playback"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
)

// Listeners manages remote WebRTC listeners.
type Listeners interface {
	CreateListener(id string) (string, error)
	SetAnswer(id, sdpAnswer string) error
	DeleteListener(id string) error
	ICEServers() []webrtc.ICEServer
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	catalog   *session.Catalog
	player    *Player
	sequencer *playback.Sequencer
	listeners Listeners // nil when the webrtc output is disabled
	logger    *zap.Logger
}

// NewHandlers creates the API handlers. listeners may be nil.
func NewHandlers(catalog *session.Catalog, seq *playback.Sequencer, listeners Listeners, logger *zap.Logger) *Handlers {
	return &Handlers{
		catalog:   catalog,
		player:    &Player{Catalog: catalog, Sequencer: seq},
		sequencer: seq,
		listeners: listeners,
		logger:    logger,
	}
}

// Player returns the play/stop adapter shared with data channel commands.
func (h *Handlers) Player() *Player { return h.player }

// NewRouter builds the HTTP router.
func NewRouter(h *Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/stop", h.Stop)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/reload", h.ReloadSessions)
			r.Post("/{sessionId}/play", h.PlaySession)
		})

		r.Route("/listeners", func(r chi.Router) {
			r.Post("/", h.CreateListener)
			r.Route("/{listenerId}", func(r chi.Router) {
				r.Delete("/", h.DeleteListener)
				r.Post("/answer", h.PostAnswer)
			})
		})
	})
	return r
}
