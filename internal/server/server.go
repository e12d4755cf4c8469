// Package server exposes the vault, classification and schedule operations
// over HTTP. Routing and JSON marshaling live here; the core packages stay
// transport-free.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"chilivault/internal/classify"
	"chilivault/internal/schedule"
	"chilivault/internal/storage"
	"chilivault/internal/vault"
	logx "chilivault/pkg/logx"
)

type Config struct {
	Addr             string
	Origins          []string
	UploadRatePerSec int
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Alloc      *vault.Allocator
	Resolver   *vault.Resolver
	Filter     *vault.Filter
	Sweeper    *vault.Sweeper
	Rules      schedule.RuleSource
	Sched      *schedule.Service
	Store      storage.Store
	Runner     *classify.Runner
	TempDir    string
	MaxAgeDays int
}

type Server struct {
	e    *echo.Echo
	cfg  Config
	deps Deps
	log  logx.Logger

	uploadLim *rate.Limiter
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, deps: deps, log: log}

	if cfg.UploadRatePerSec > 0 {
		s.uploadLim = rate.NewLimiter(rate.Limit(cfg.UploadRatePerSec), cfg.UploadRatePerSec)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if len(cfg.Origins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Origins,
			AllowCredentials: true,
		}))
	}
	e.Use(s.requestLogger)

	s.e = e
	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.POST("/upload-image", s.handleUpload, s.uploadRateLimit)
	s.e.GET("/classify", s.handleClassify)
	s.e.GET("/move", s.handleMove)
	s.e.POST("/get-data", s.handleGetData)
	s.e.GET("/search", s.handleSearch)
	s.e.POST("/delete", s.handleDelete)
	s.e.GET("/clean-old-dirs", s.handleCleanOldDirs)
	s.e.POST("/delete-dir", s.handleDeleteDir)
	s.e.POST("/update-schedule", s.handleUpdateSchedule)
	s.e.GET("/check-schedule", s.handleCheckSchedule)
	s.e.POST("/filter-directories", s.handleFilterDirectories)
	s.e.POST("/get-full-image", s.handleGetFullImage)
}

// Start begins serving in the background; use Stop for a graceful shutdown.
func (s *Server) Start(ctx context.Context) {
	_ = ctx
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
		if err := s.e.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		s.log.Debug("request",
			logx.String("method", c.Request().Method),
			logx.String("path", c.Request().URL.Path),
			logx.Int("status", c.Response().Status))
		return err
	}
}

func (s *Server) uploadRateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.uploadLim != nil && !s.uploadLim.Allow() {
			return c.JSON(http.StatusTooManyRequests, errResp("upload rate exceeded"))
		}
		return next(c)
	}
}

func errResp(msg string) map[string]string {
	return map[string]string{"error": msg}
}
