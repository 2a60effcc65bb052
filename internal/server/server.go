// Package server exposes a scanned hierarchy over HTTP for a web viewer.
package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mrsinham/dicomscope/internal/hierarchy"
	"github.com/mrsinham/dicomscope/internal/imagestore"
	"github.com/mrsinham/dicomscope/internal/scan"
)

// Options holds the dependencies of the API.
type Options struct {
	Builder *hierarchy.Builder
	Images  *imagestore.Store
	Scanner *scan.Scanner

	// FS and Root are rescanned by POST /api/v1/scan.
	FS   fs.FS
	Root string

	ThumbnailSize    int
	MaxThumbnailSize int
	Logger           *slog.Logger
}

// Handler serves the API routes.
type Handler struct {
	builder  *hierarchy.Builder
	images   *imagestore.Store
	scanner  *scan.Scanner
	fsys     fs.FS
	root     string
	thumb    int
	maxThumb int
	logger   *slog.Logger

	scanning sync.Mutex
}

// NewHandler returns a Handler for opts.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		builder:  opts.Builder,
		images:   opts.Images,
		scanner:  opts.Scanner,
		fsys:     opts.FS,
		root:     opts.Root,
		thumb:    opts.ThumbnailSize,
		maxThumb: opts.MaxThumbnailSize,
		logger:   opts.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.thumb <= 0 {
		h.thumb = 128
	}
	if h.maxThumb <= 0 {
		h.maxThumb = 1024
	}
	return h
}

// NewRouter returns a gin engine with recovery, request logging, CORS and
// every API route registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	RegisterRoutes(router, h)
	return router
}

// Run serves router on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
