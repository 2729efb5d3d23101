// Package server exposes the SoulNet HTTP API.
//
// All routes live under /api and require a bearer token except the health
// check. Handlers translate between wire DTOs and the domain services; they
// hold no business logic of their own.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/soulnet-ai/soulnet-go/pkg/achievement"
	"github.com/soulnet-ai/soulnet-go/pkg/analytics"
	"github.com/soulnet-ai/soulnet-go/pkg/auth"
	"github.com/soulnet-ai/soulnet-go/pkg/chat"
	"github.com/soulnet-ai/soulnet-go/pkg/config"
	"github.com/soulnet-ai/soulnet-go/pkg/memory"
	"github.com/soulnet-ai/soulnet-go/pkg/search"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Server is the SoulNet HTTP server.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger

	validator    auth.Validator
	memories     *memory.Service
	searcher     *search.Engine
	chat         *chat.Assembler
	achievements *achievement.Evaluator
	analytics    *analytics.Service
	interactions storage.InteractionStore
}

// Options collects the dependencies of a Server.
type Options struct {
	Config       *config.Config
	Validator    auth.Validator
	Memories     *memory.Service
	Searcher     *search.Engine
	Chat         *chat.Assembler
	Achievements *achievement.Evaluator
	Analytics    *analytics.Service
	Interactions storage.InteractionStore
	Logger       *slog.Logger
}

// New creates a Server with all middleware and routes registered.
func New(opts *Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:         e,
		addr:         opts.Config.Server.Addr,
		logger:       logger,
		validator:    opts.Validator,
		memories:     opts.Memories,
		searcher:     opts.Searcher,
		chat:         opts.Chat,
		achievements: opts.Achievements,
		analytics:    opts.Analytics,
		interactions: opts.Interactions,
	}

	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(s.requestLogger())

	api := e.Group("/api")
	api.GET("/health", s.handleHealth)

	limiter := newRateLimiter(opts.Config.Server.RateLimit, opts.Config.Server.RateBurst)
	protected := api.Group("", s.requireAuth(), s.rateLimit(limiter))

	protected.GET("/memories", s.handleListMemories)
	protected.POST("/memories", s.handleCreateMemory)
	protected.PUT("/memories/:id", s.handleUpdateMemory)
	protected.DELETE("/memories/:id", s.handleDeleteMemory)
	protected.POST("/memories/search", s.handleSearchMemories)
	protected.POST("/memories/generate-embeddings", s.handleGenerateEmbeddings)
	protected.POST("/chat", s.handleChat)
	protected.GET("/chat/history", s.handleChatHistory)
	protected.GET("/achievements", s.handleAchievements)
	protected.GET("/analytics", s.handleAnalytics)

	return s
}

// Handler exposes the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
