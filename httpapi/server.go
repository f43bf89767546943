// Package httpapi is the operator-facing HTTP surface: health, Prometheus
// metrics, the persisted trade state and manual command submission.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/command"
	"github.com/rustyeddy/tradeagent/metrics"
	"github.com/rustyeddy/tradeagent/state"
)

const DefaultAddr = ":8090"

// Status is what the health probe asks of the agent.
type Status interface {
	Running() bool
}

type Config struct {
	Addr    string
	State   *state.Repository
	Inbox   command.Inbox
	Metrics *metrics.Metrics
	Agent   Status
	Log     *zap.Logger
}

type Server struct {
	addr   string
	router *gin.Engine
	log    *zap.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.State == nil {
		return nil, errors.New("httpapi: state repository is required")
	}
	if cfg.Inbox == nil {
		return nil, errors.New("httpapi: command inbox is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Log))

	h := &handlers{repo: cfg.State, inbox: cfg.Inbox, metrics: cfg.Metrics, agent: cfg.Agent, log: cfg.Log}
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	api := router.Group("/api/agent")
	api.GET("/position", h.position)
	api.POST("/command", h.command)

	return &Server{addr: cfg.Addr, router: router, log: cfg.Log}, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("admin http listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return fmt.Errorf("httpapi: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("dur", time.Since(start)))
	}
}
