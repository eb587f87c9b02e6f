// Package server exposes the resource redirect endpoint and the published
// resources over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/resource"
)

// Resolver makes a resource available locally.
type Resolver interface {
	Resolve(ctx context.Context, hash, filename string) (*os.File, error)
}

// Locator builds the static URI of a published resource.
type Locator interface {
	StaticURI(hash, filename string) string
}

// New builds the gin engine.
func New(resolver Resolver, locator Locator, publicPath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := &handler{resolver: resolver, locator: locator}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET(resource.RedirectPrefix+":hash/*filename", h.redirect)
	r.Static("/_Resources", filepath.Join(publicPath, "_Resources"))
	return r
}

type handler struct {
	resolver Resolver
	locator  Locator
}

func (h *handler) redirect(c *gin.Context) {
	hash := c.Param("hash")
	filename := strings.TrimPrefix(c.Param("filename"), "/")

	f, err := h.resolver.Resolve(c.Request.Context(), hash, filename)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, resource.ErrResourceNotFound) || errors.Is(err, resource.ErrInvalidHash) || errors.Is(err, resource.ErrInvalidFilename) {
			status = http.StatusNotFound
		}
		log.Component("server").Warn().Err(err).Str("hash", hash).Int("status", status).Msg("resolve failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	f.Close()
	c.Redirect(http.StatusFound, h.locator.StaticURI(hash, filename))
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Component("server").Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Msg("request")
	}
}

// Serve runs the engine on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
