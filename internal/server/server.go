// Package server exposes the news read API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
	"github.com/samvad-hq/samvad-news-feed/internal/refresh"
)

const gracefulShutdownTimeout = 10 * time.Second

// Reader is the part of the record store the handlers read.
type Reader interface {
	Query(ctx context.Context, f domain.Filter, limit int) ([]domain.ArticleRecord, error)
	Count(ctx context.Context, f domain.Filter) (int, error)
	MostRecentFetch(ctx context.Context, f domain.Filter) (time.Time, bool, error)
	Ping(ctx context.Context) error
}

// Refresher decides on and runs refreshes.
type Refresher interface {
	EnsureFresh(ctx context.Context, f domain.Filter) (refresh.Decision, error)
	RefreshNow(ctx context.Context, trigger string) (domain.RefreshStats, error)
	Snapshot() refresh.State
}

// Config carries listener and debug settings.
type Config struct {
	Addr        string
	CorsOrigins []string
	Categories  []string
	Countries   []string
	Environment Environment
}

// Environment is reported by the debug endpoint. It only carries presence flags.
type Environment struct {
	HasRapidAPIKey bool   `json:"hasRapidAPIKey"`
	StorageType    string `json:"storageType"`
	AppEnv         string `json:"appEnv"`
}

// Server owns the echo instance.
type Server struct {
	Echo *echo.Echo

	cfg       Config
	store     Reader
	refresher Refresher
	metrics   http.Handler
	log       logger.Logger
}

// New builds the server and binds routes. metricsHandler may be nil.
func New(cfg Config, store Reader, refresher Refresher, metricsHandler http.Handler, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:      e,
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		metrics:   metricsHandler,
		log:       logger.Ensure(log),
	}
	s.setupMiddlewares()
	s.bind()
	return s
}

func (s *Server) setupMiddlewares() {
	s.Echo.Use(RequestLogger(s.log))
	s.Echo.Use(middleware.Recover())
	if len(s.cfg.CorsOrigins) > 0 {
		s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.cfg.CorsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
		}))
	}
}

func (s *Server) bind() {
	api := s.Echo.Group("/api/news")
	api.GET("", s.listNews)
	api.GET("/fetch", s.fetchNews)
	api.POST("/fetch", s.fetchNews)
	api.GET("/debug", s.debug)

	s.Echo.GET("/healthz", s.health)
	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("http server listening", "addr", s.cfg.Addr)
		if err := s.Echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gracefulShutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.InfoObj("http server stopped", "addr", s.cfg.Addr)
	return nil
}
