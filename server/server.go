package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/poiesic/ragline"
	"github.com/poiesic/ragline/config"
	"github.com/poiesic/ragline/extract"
	"golang.org/x/time/rate"
)

// HeaderUserID carries the caller's identity.
const HeaderUserID = "X-User-ID"

const (
	userKey         = "ragline.user"
	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP surface of an Engine.
type Server struct {
	echo   *echo.Echo
	engine *ragline.Engine
	config config.ServerConfig
	chat   config.ChatConfig
	types  *extract.Registry
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Server for engine using the engine's server and chat
// configuration.
func New(engine *ragline.Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}

	s := &Server{
		echo:   echo.New(),
		engine: engine,
		config: engine.Config().Server,
		chat:   engine.Config().Chat,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.types = extract.Default(s.logger)

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	e.Use(s.identify)
	e.Use(s.requestLog)
	if s.config.RateLimitPerMinute > 0 {
		e.Use(s.rateLimiter())
	}

	e.GET("/health", s.health)

	api := e.Group("/api/v1")
	api.POST("/chat", s.streamChat)

	api.POST("/documents", s.uploadDocument, requireUser)
	api.GET("/documents", s.listDocuments, requireUser)
	api.GET("/documents/:id", s.getDocument, requireUser)
	api.POST("/documents/:id/ingest", s.ingestDocument, requireUser)
	api.DELETE("/documents/:id", s.deleteDocument, requireUser)
	api.GET("/conversations", s.listConversations, requireUser)
	api.GET("/conversations/:id/messages", s.listMessages, requireUser)

	return s, nil
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.config.Addr)
	}()
	s.logger.Info("listening", "addr", s.config.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return s.echo.Shutdown(shutdownCtx)
}

// identify records the X-User-ID header, if any, on the request context.
func (s *Server) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(userKey, c.Request().Header.Get(HeaderUserID))
		return next(c)
	}
}

func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if userID(c) == "" {
			return errorJSON(c, ErrUserRequired)
		}
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Debug("request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"user", userID(c),
			"elapsed", time.Since(start))
		return nil
	}
}

// rateLimiter limits each caller, keyed by user id or remote address, to
// RateLimitPerMinute requests with a burst of the same size.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	perMinute := s.config.RateLimitPerMinute
	store := echoMiddleware.NewRateLimiterMemoryStoreWithConfig(echoMiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     perMinute,
		ExpiresIn: 3 * time.Minute,
	})
	return echoMiddleware.RateLimiterWithConfig(echoMiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if id := userID(c); id != "" {
				return "user:" + id, nil
			}
			return "ip:" + c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded"})
		},
	})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "healthy",
		"embedding_model": s.engine.Provider().Embedder().ModelName(),
		"chat_model":      s.engine.Provider().Generator().ModelName(),
	})
}
