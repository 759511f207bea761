package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
	"github.com/muselink/muselink/internal/events"
	"github.com/muselink/muselink/internal/jobs"
	"github.com/muselink/muselink/internal/logger"
	"github.com/muselink/muselink/internal/scanner"
	"github.com/muselink/muselink/internal/smb"
	"github.com/muselink/muselink/internal/transcode"
)

// Server wires the HTTP surface to the catalog, the scanner, the job
// queue and the transcoder.
type Server struct {
	cfg      *config.Config
	repo     *database.TrackRepository
	dialer   smb.Dialer
	scans    *scanner.Service
	jobs     *jobs.Manager
	pipeline *transcode.Pipeline
	eventBus events.EventBus
	log      hclog.Logger

	// shares is swapped wholesale on config reload; readers take a copy.
	sharesMu sync.RWMutex
	shares   []config.ShareEndpoint

	httpServer *http.Server
}

func New(cfg *config.Config, repo *database.TrackRepository, dialer smb.Dialer,
	scans *scanner.Service, jobsMgr *jobs.Manager, pipeline *transcode.Pipeline,
	eventBus events.EventBus) *Server {
	return &Server{
		cfg:      cfg,
		repo:     repo,
		dialer:   dialer,
		scans:    scans,
		jobs:     jobsMgr,
		pipeline: pipeline,
		eventBus: eventBus,
		log:      logger.Named("server"),
		shares:   append([]config.ShareEndpoint(nil), cfg.Shares...),
	}
}

// UpdateShares replaces the endpoint set used for path resolution.
// Called from the config reload watcher; in-flight streams keep the
// endpoint they resolved against.
func (s *Server) UpdateShares(shares []config.ShareEndpoint) {
	s.sharesMu.Lock()
	s.shares = append([]config.ShareEndpoint(nil), shares...)
	s.sharesMu.Unlock()
}

func (s *Server) shareEndpoints() []config.ShareEndpoint {
	s.sharesMu.RLock()
	defer s.sharesMu.RUnlock()
	return s.shares
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))

	if s.cfg.Server.EnableCORS {
		r.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")

			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
		})
	}

	s.registerRoutes(r)
	return r
}

// Run serves until the context is canceled, then drains with a timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	// WriteTimeout stays at the configured value, zero by default,
	// because streaming responses can legitimately run for minutes.
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func requestLogger(log hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
