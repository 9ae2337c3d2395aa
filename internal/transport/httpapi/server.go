// Package httpapi is the gin front door: push ingest, notification
// interactions, the quiet-hours configuration flow, client sessions and
// status.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pushgate/internal/clients"
	"pushgate/internal/storage"
	"pushgate/internal/transport"
	"pushgate/pkg/logx"
)

// Boundaries is the part of quiethours.Watcher the API needs.
type Boundaries interface {
	Reload(ctx context.Context) error
	Next(now time.Time) (start, end time.Time)
}

type Deps struct {
	Dispatcher transport.Dispatcher
	Store      storage.ScheduleStore
	Watcher    Boundaries
	Clients    *clients.Registry
	Location   *time.Location
	// Status renders GET /api/v1/status. Nil serves an empty object.
	Status func() any
}

type Config struct {
	Addr         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Pprof        bool
	PprofToken   string
}

type Server struct {
	cfg    Config
	log    logx.Logger
	engine *gin.Engine
	srv    *http.Server
}

func New(cfg Config, d Deps, log logx.Logger) *Server {
	log = log.With(logx.String("comp", "http"))
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	engine := NewRouter(cfg, d, log)
	return &Server{
		cfg:    cfg,
		log:    log,
		engine: engine,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			MaxHeaderBytes:    1 << 20,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			ReadHeaderTimeout: 3 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
	}
	<-errc
	return nil
}

// NewRouter builds the engine. Exposed for tests.
func NewRouter(cfg Config, d Deps, log logx.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h := &handler{d: d, log: log}

	api := router.Group("/api/v1")
	{
		api.POST("/push", h.push)
		api.POST("/interactions", h.interact)

		api.GET("/quiet-hours", h.getQuietHours)
		api.PUT("/quiet-hours", h.putQuietHours)

		api.POST("/clients", h.registerClient)
		api.GET("/clients", h.listClients)
		api.DELETE("/clients/:id", h.unregisterClient)

		api.GET("/status", h.status)
	}
	if cfg.Pprof {
		mountPprof(router, cfg.PprofToken)
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "pushgate",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	return router
}

func requestLogger(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", status),
			logx.Duration("took", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			log.Warn("http request", fields...)
			return
		}
		log.Debug("http request", fields...)
	}
}
