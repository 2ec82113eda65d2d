// Package api exposes the dashboard HTTP surface: the history feed, the
// ingestion endpoints, the map view state and a WebSocket event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelops/sentinel-go/internal/conf"
	"github.com/sentinelops/sentinel-go/internal/geo"
	"github.com/sentinelops/sentinel-go/internal/history"
	"github.com/sentinelops/sentinel-go/internal/logging"
)

// Controller wires the HTTP routes to the history store and the map engine.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Store    *history.Store
	Engine   *geo.Engine
	Settings *conf.Settings

	logger      *slog.Logger
	loggerClose func() error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clientsMu sync.Mutex
	clients   map[string]*streamClient
}

// ErrorResponse is the JSON body returned for every handler failure. The
// correlation id ties the response to the server-side log line.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlationId"`
}

// New creates the controller and registers all routes on a fresh echo
// instance. Call Start to begin serving and Shutdown to stop.
func New(settings *conf.Settings, store *history.Store, engine *geo.Engine) *Controller {
	logger, closer, err := logging.NewFileLogger("logs/api.log", "api", slog.LevelInfo)
	if err != nil {
		logger = slog.Default().With("service", "api")
		closer = func() error { return nil }
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Echo:        e,
		Store:       store,
		Engine:      engine,
		Settings:    settings,
		logger:      logger,
		loggerClose: closer,
		ctx:         ctx,
		cancel:      cancel,
		clients:     make(map[string]*streamClient),
	}

	c.Group = e.Group("/api/v1")
	c.initHistoryRoutes()
	c.initIngestRoutes()
	c.initMapRoutes()
	c.initStreamRoutes()

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", c.Health)

	return c
}

// Start runs the HTTP server until Shutdown is called. It blocks.
func (c *Controller) Start() error {
	addr := fmt.Sprintf("%s:%d", c.Settings.Server.Host, c.Settings.Server.Port)
	c.logger.Info("starting API server", "addr", addr)
	if err := c.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, disconnects stream clients and closes the
// per-service log file.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.cancel()

	c.clientsMu.Lock()
	for _, client := range c.clients {
		client.close()
	}
	c.clientsMu.Unlock()

	err := c.Echo.Shutdown(ctx)
	c.wg.Wait()
	if c.loggerClose != nil {
		_ = c.loggerClose()
	}
	return err
}

// Health reports liveness plus whether the initial hydration has completed.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"hydrated": c.Store.Hydrated(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleError logs the failure under a correlation id and returns the JSON
// error body carrying the same id.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	correlationID := uuid.NewString()

	errStr := message
	if err != nil {
		errStr = err.Error()
	}
	c.logger.Error("request failed",
		"correlation_id", correlationID,
		"message", message,
		"error", errStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	return ctx.JSON(code, ErrorResponse{
		Error:         errStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	})
}
