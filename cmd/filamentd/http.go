package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// HTTP API
// ============================================================================
//   GET  /ws          frame stream (WebSocket)
//   GET  /api/state   StateSnapshot
//   POST /api/events  event envelope {"type": "...", "data": {...}}
//   GET  /healthz     liveness + subscriber count
// ============================================================================

const maxEventBodyBytes = 64 << 10

// newRouter builds the gin engine. mode is one of gin's modes ("" keeps the current one).
func newRouter(mode string, events chan<- Event, ws *StateServer, logger *slog.Logger) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	if ws != nil {
		r.GET("/ws", gin.WrapH(ws))
	}

	r.GET("/healthz", func(c *gin.Context) {
		clients := 0
		if ws != nil {
			clients = ws.Hub().ClientCount()
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"ws_clients": clients,
		})
	})

	api := r.Group("/api")

	api.GET("/state", func(c *gin.Context) {
		snap, err := requestSnapshot(c.Request.Context(), events)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, IPCResponse{Status: "error", Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.POST("/events", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBodyBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, IPCResponse{Status: "error", Error: fmt.Sprintf("read body: %v", err)})
			return
		}
		a, err := UnmarshalEvent(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)})
			return
		}
		if st, ok := a.(SetTarget); ok && st.Origin == "" {
			st.Origin = "http"
			a = st
		}

		select {
		case events <- a:
			c.JSON(http.StatusAccepted, IPCResponse{Status: "ok"})
		default:
			c.JSON(http.StatusServiceUnavailable, IPCResponse{Status: "error", Error: "event queue full"})
		}
	})

	return r
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// runHTTPServer serves the router until ctx is canceled, then shuts down gracefully.
func runHTTPServer(ctx context.Context, listen string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening", "addr", listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Debug("HTTP server stopped")
		return nil
	}
}
