package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sentinelops/sentinel-go/internal/errors"
	"github.com/sentinelops/sentinel-go/internal/ingest"
)

func (c *Controller) initHistoryRoutes() {
	c.Group.GET("/analyses", c.GetAnalyses)
	c.Group.GET("/analyses/:id", c.GetAnalysis)
	c.Group.DELETE("/analyses/:id", c.DeleteAnalysis)
	c.Group.DELETE("/analyses", c.ClearHistory)
	c.Group.GET("/detections", c.GetDetections)
	c.Group.GET("/activity-logs", c.GetActivityLogs)
}

func (c *Controller) initIngestRoutes() {
	c.Group.POST("/ingest/image", c.IngestImage)
	c.Group.POST("/ingest/video", c.IngestVideo)
}

// GetAnalyses returns every analysis record, newest first.
func (c *Controller) GetAnalyses(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Store.Analyses())
}

// GetAnalysis returns one record by id.
func (c *Controller) GetAnalysis(ctx echo.Context) error {
	id := ctx.Param("id")
	record, ok := c.Store.Analysis(id)
	if !ok {
		return c.HandleError(ctx,
			errors.Newf("analysis %s not found", id).
				Component("api").
				Category(errors.CategoryNotFound).
				Context("analysis_id", id).
				Build(),
			"Analysis not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, record)
}

// DeleteAnalysis removes one record together with its detections and
// activity logs. Unknown ids succeed without side effects so deletes are
// idempotent for retrying clients.
func (c *Controller) DeleteAnalysis(ctx echo.Context) error {
	c.Store.RemoveAnalysis(ctx.Request().Context(), ctx.Param("id"))
	return ctx.NoContent(http.StatusNoContent)
}

// ClearHistory empties all three collections.
func (c *Controller) ClearHistory(ctx echo.Context) error {
	c.Store.ClearAll(ctx.Request().Context())
	return ctx.NoContent(http.StatusNoContent)
}

// GetDetections returns the flattened detection feed, newest first.
func (c *Controller) GetDetections(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Store.AllDetections())
}

// GetActivityLogs returns the activity feed, newest first.
func (c *Controller) GetActivityLogs(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Store.ActivityLogs())
}

// IngestImage accepts one image pipeline result and folds it into the
// history. Responds with the created record.
func (c *Controller) IngestImage(ctx echo.Context) error {
	var input ingest.ImageInput
	if err := ctx.Bind(&input); err != nil {
		return c.HandleError(ctx, err, "Invalid image ingestion payload", http.StatusBadRequest)
	}
	if input.ImageName == "" {
		return c.HandleError(ctx,
			errors.Newf("imageName is required").
				Component("api").
				Category(errors.CategoryValidation).
				Build(),
			"Invalid image ingestion payload", http.StatusBadRequest)
	}

	record := ingest.IngestImage(c.Store, c.Store, input)
	return ctx.JSON(http.StatusCreated, record)
}

// IngestVideo accepts one video pipeline result and folds it into the
// history. Responds with the created record.
func (c *Controller) IngestVideo(ctx echo.Context) error {
	var input ingest.VideoInput
	if err := ctx.Bind(&input); err != nil {
		return c.HandleError(ctx, err, "Invalid video ingestion payload", http.StatusBadRequest)
	}
	if input.VideoName == "" {
		return c.HandleError(ctx,
			errors.Newf("videoName is required").
				Component("api").
				Category(errors.CategoryValidation).
				Build(),
			"Invalid video ingestion payload", http.StatusBadRequest)
	}

	record := ingest.IngestVideo(c.Store, c.Store, input)
	return ctx.JSON(http.StatusCreated, record)
}
