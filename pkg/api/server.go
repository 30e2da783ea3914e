package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"leaderbus/pkg/api/middleware"
	"leaderbus/pkg/elector"
	"leaderbus/pkg/logger"
)

// Participant is the local election participant the API reports on.
type Participant interface {
	State() elector.State
	Close() error
}

// Server exposes health, metrics and the local elector state over HTTP.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	log        *zap.Logger

	participant Participant
	transport   string
	startedAt   time.Time
}

// Config holds API server configuration.
type Config struct {
	Port        string
	Participant Participant
	// Transport names the broadcast driver, reported by /health.
	Transport   string
	ServiceName string
	RateLimit   middleware.RateLimitConfig
	Logger      *zap.Logger
}

func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	log := cfg.Logger
	if log == nil {
		log = logger.Named("api")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "leaderbus"
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit = middleware.DefaultRateLimitConfig()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Tracing(cfg.ServiceName))
	router.Use(middleware.Metrics())
	router.Use(requestLogger(log))

	s := &Server{
		router:      router,
		log:         log,
		participant: cfg.Participant,
		transport:   cfg.Transport,
		startedAt:   time.Now(),
	}
	s.registerRoutes(cfg.RateLimit)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.log.Info("starting status api", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down status api")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(limit middleware.RateLimitConfig) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		el := v1.Group("/elector")
		{
			el.GET("", s.getElector)
			el.POST("/depart", middleware.RateLimit(limit), s.depart)
		}

		v1.GET("/log/level", s.getLogLevel)
		v1.PUT("/log/level", middleware.RateLimit(limit), s.setLogLevel)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		)
	}
}
