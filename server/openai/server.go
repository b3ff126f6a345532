// Package openai serves the Qianfan resources behind an OpenAI compatible
// HTTP API, so OpenAI clients can talk to Qianfan models unchanged.
//
//	srv := openai.New(openai.WithClientOptions(resources.WithConfig(cfg)))
//	err := srv.Run(ctx, ":8001")
//
// Routes: POST /v1/chat/completions, POST /v1/completions,
// POST /v1/embeddings, GET /v1/models, GET /metrics and GET /healthz.
package openai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leofalp/qianfan/resources"
)

const shutdownTimeout = 5 * time.Second

// Server translates OpenAI requests into resource calls.
type Server struct {
	chat        *resources.ChatCompletion
	completions *resources.Completions
	embedding   *resources.Embedding

	clientOpts []resources.Option
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	engine     *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithClientOptions is passed to every resource client the server builds.
func WithClientOptions(opts ...resources.Option) Option {
	return func(s *Server) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithGatherer sets what GET /metrics exposes. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the access logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the server and its routes.
func New(opts ...Option) *Server {
	s := &Server{
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chat = resources.NewChatCompletion(s.clientOpts...)
	s.completions = resources.NewCompletions(s.clientOpts...)
	s.embedding = resources.NewEmbedding(s.clientOpts...)

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.GET("/models", s.handleModels)
	v1.POST("/chat/completions", s.handleChat)
	v1.POST("/completions", s.handleCompletions)
	v1.POST("/embeddings", s.handleEmbeddings)

	s.engine = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine.Handler()
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("openai adapter listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.LogAttrs(c.Request.Context(), slog.LevelInfo, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
