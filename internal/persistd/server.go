package persistd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sentinelops/sentinel-go/internal/model"
)

// Server serves the daemon's REST surface over one DataStore.
type Server struct {
	Echo   *echo.Echo
	store  *DataStore
	logger *slog.Logger
	host   string
	port   int
}

// NewServer registers the six persistence routes on a fresh echo instance.
func NewServer(store *DataStore, host string, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("service", "persistd")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{Echo: e, store: store, logger: logger, host: host, port: port}

	e.GET("/analyses", s.GetAnalyses)
	e.POST("/analyses", s.CreateAnalysis)
	e.DELETE("/analyses/:id", s.DeleteAnalysis)
	e.DELETE("/analyses", s.DeleteAllAnalyses)
	e.GET("/activity-logs", s.GetActivityLogs)
	e.POST("/activity-logs", s.CreateActivityLog)

	return s
}

// Start runs the server until Shutdown. It blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("starting persistence daemon", "addr", addr)
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	if closeErr := s.store.Close(); err == nil {
		err = closeErr
	}
	return err
}

// GetAnalyses returns all stored records, newest first.
func (s *Server) GetAnalyses(ctx echo.Context) error {
	records, err := s.store.Analyses()
	if err != nil {
		return s.fail(ctx, err, "failed to load analyses")
	}
	return ctx.JSON(http.StatusOK, records)
}

// CreateAnalysis stores one record.
func (s *Server) CreateAnalysis(ctx echo.Context) error {
	var record model.AnalysisRecord
	if err := ctx.Bind(&record); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid analysis payload"})
	}
	// Only identity is enforced here. Video records carry caller-supplied
	// summary counts that need not match the flattened detection list, so
	// the daemon does not cross-check counts.
	if record.ID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "analysis id is required"})
	}
	if err := s.store.SaveAnalysis(&record); err != nil {
		return s.fail(ctx, err, "failed to store analysis")
	}
	return ctx.JSON(http.StatusCreated, record)
}

// DeleteAnalysis removes one record and its logs. Idempotent.
func (s *Server) DeleteAnalysis(ctx echo.Context) error {
	if err := s.store.DeleteAnalysis(ctx.Param("id")); err != nil {
		return s.fail(ctx, err, "failed to delete analysis")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// DeleteAllAnalyses empties the store.
func (s *Server) DeleteAllAnalyses(ctx echo.Context) error {
	if err := s.store.DeleteAllAnalyses(); err != nil {
		return s.fail(ctx, err, "failed to clear analyses")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetActivityLogs returns all stored entries, newest first.
func (s *Server) GetActivityLogs(ctx echo.Context) error {
	logs, err := s.store.ActivityLogs()
	if err != nil {
		return s.fail(ctx, err, "failed to load activity logs")
	}
	return ctx.JSON(http.StatusOK, logs)
}

// CreateActivityLog stores one entry.
func (s *Server) CreateActivityLog(ctx echo.Context) error {
	var entry model.ActivityLog
	if err := ctx.Bind(&entry); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid activity log payload"})
	}
	if entry.ID == "" || entry.Message == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "id and message are required"})
	}
	if err := s.store.SaveActivityLog(&entry); err != nil {
		return s.fail(ctx, err, "failed to store activity log")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (s *Server) fail(ctx echo.Context, err error, message string) error {
	s.logger.Error(message,
		"error", err,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method)
	return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": message})
}
