// Package api exposes the session registry over HTTP with echo.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/wa-rotator/backend/internal/session"
	"github.com/wa-rotator/backend/internal/storage"
	"github.com/wa-rotator/backend/internal/uploads"
	"github.com/wa-rotator/backend/internal/ws"
)

// Runner starts and stops sessions. *registry.Registry implements it.
type Runner interface {
	Start(ctx context.Context, s *session.Session) error
	Stop(ctx context.Context, id string) error
	Status(id string) (*session.Status, bool)
	List() []*session.Status
	Len() int
}

type Options struct {
	AuthToken string
	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64
	// Frontend serves everything outside /api and /ws when set.
	Frontend http.Handler
	Logger   zerolog.Logger
}

type Server struct {
	Echo *echo.Echo

	Runner      Runner
	Repo        storage.Repository
	Counter     storage.CounterStore
	Uploads     *uploads.Store
	Broadcaster *ws.Broadcaster
	Origins     *ws.OriginChecker

	opts      Options
	log       zerolog.Logger
	startedAt time.Time
}

func NewServer(runner Runner, repo storage.Repository, counter storage.CounterStore, up *uploads.Store,
	broadcaster *ws.Broadcaster, origins *ws.OriginChecker, opts Options) *Server {
	s := &Server{
		Runner:      runner,
		Repo:        repo,
		Counter:     counter,
		Uploads:     up,
		Broadcaster: broadcaster,
		Origins:     origins,
		opts:        opts,
		log:         opts.Logger.With().Str("component", "api").Logger(),
		startedAt:   time.Now(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s.log)
	e.Use(middleware.Recover())
	e.Use(requestLogger(s.log))
	e.Use(securityHeaders)

	s.Echo = e
	s.routes()
	return s
}

func (s *Server) routes() {
	limit := s.opts.MaxUploadBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	// Multipart framing adds a little on top of the file itself.
	bodyLimit := middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{Limit: strconv.FormatInt(limit+64<<10, 10) + "B"})

	s.Echo.GET("/api/health", s.getHealth)

	auth := authorize(s.opts.AuthToken)
	wa := s.Echo.Group("/api/whatsapp", auth)
	wa.POST("/session/start", s.postStartSession)
	wa.POST("/session/stop", s.postStopSession)
	wa.GET("/session/status", s.getSessionStatus)
	wa.GET("/sessions", s.getListSessions)
	wa.POST("/upload", s.postUpload, bodyLimit)
	wa.POST("/creds/upload", s.postCredsUpload, bodyLimit)

	if s.Broadcaster != nil {
		s.Echo.GET("/ws", s.getWS, auth)
	}
	if s.opts.Frontend != nil {
		s.Echo.GET("/*", echo.WrapHandler(s.opts.Frontend))
	}
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("server listening")
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server error")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
