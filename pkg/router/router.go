// Package router builds the gin engine shared by the HTTP entry points, with
// panic recovery, request IDs and zap request logging installed.
package router

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-customer-intel/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Router wraps a gin engine.
type Router struct {
	engine *gin.Engine
}

// New creates a router in the given gin mode (debug, release or test).
func New(mode string) *Router {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(Recovery(), RequestID(), RequestLogger())
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "route not found"}})
	})
	return &Router{engine: engine}
}

// Engine exposes the gin engine for route registration.
func (r *Router) Engine() *gin.Engine { return r.engine }

// Group returns a route group under prefix.
func (r *Router) Group(prefix string) *gin.RouterGroup { return r.engine.Group(prefix) }

func (r *Router) GET(path string, h ...gin.HandlerFunc)  { r.engine.GET(path, h...) }
func (r *Router) POST(path string, h ...gin.HandlerFunc) { r.engine.POST(path, h...) }

// Routes lists the registered routes.
func (r *Router) Routes() gin.RoutesInfo { return r.engine.Routes() }

// ServeHTTP makes the router usable with httptest.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (r *Router) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := logger.Named("http")

	errCh := make(chan error, 1)
	go func() {
		log.Infow("Server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// RequestID propagates or assigns an X-Request-Id header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// RequestLogger logs every request at a level chosen by its status class.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"client", c.ClientIP(),
			"request_id", c.GetString("request_id"),
		}

		log := logger.Named("http")
		switch {
		case status >= 500:
			log.Errorw("Request completed", fields...)
		case status >= 400:
			log.Warnw("Request completed", fields...)
		default:
			log.Infow("Request completed", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Named("http").Errorw("Panic recovered",
					"error", fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"code": "internal_error", "message": "internal server error"},
				})
			}
		}()
		c.Next()
	}
}
