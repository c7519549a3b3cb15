package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/config"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/database"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/mqttclient"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/session"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewServer builds the status API: health, live transcripts, and metrics.
// Transcript reads are safe mid-session because the ordering invariant
// holds after every insert. db and mqtt may be nil when not configured.
func NewServer(cfg *config.Config, sess *session.Session, coord *session.Coordinator, db *database.DB, mqtt *mqttclient.Publisher, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))

	// Health and metrics — no auth
	health := NewHealthHandler(coord, db, mqtt, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Transcript reads
	th := NewTranscriptHandler(sess)
	ah := NewArchiveHandler(db)
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Get("/api/v1/transcript", th.Master)
		r.Get("/api/v1/users", th.Users)
		r.Get("/api/v1/users/{uid}/transcript", th.UserTranscript)
		r.Get("/api/v1/archive/{room}", ah.RoomFragments)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
