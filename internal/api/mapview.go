package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (c *Controller) initMapRoutes() {
	mapGroup := c.Group.Group("/map")

	mapGroup.GET("/state", c.GetMapState)
	mapGroup.POST("/markers/:id/hover", c.HoverMarker)
	mapGroup.DELETE("/hover", c.ClearHover)
	mapGroup.POST("/markers/:id/click", c.ClickMarker)
	mapGroup.POST("/click", c.ClickMap)
	mapGroup.POST("/center/latest", c.CenterOnLatest)
	mapGroup.POST("/center/device", c.CenterOnDevice)
	mapGroup.DELETE("/selection", c.DeleteSelected)
}

// GetMapState returns the full renderable map view state.
func (c *Controller) GetMapState(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Engine.Snapshot())
}

// HoverMarker marks one marker hovered; any previous hover is cleared.
func (c *Controller) HoverMarker(ctx echo.Context) error {
	c.Engine.HoverMarker(ctx.Param("id"))
	return ctx.JSON(http.StatusOK, c.Engine.Snapshot())
}

// ClearHover returns the hovered marker to idle.
func (c *Controller) ClearHover(ctx echo.Context) error {
	c.Engine.ClearHover()
	return ctx.JSON(http.StatusOK, c.Engine.Snapshot())
}

// ClickMarker opens the detail popup for a marker.
func (c *Controller) ClickMarker(ctx echo.Context) error {
	c.Engine.ClickMarker(ctx.Param("id"))
	return ctx.JSON(http.StatusOK, c.Engine.Snapshot())
}

// ClickMap is the map background click: it hides the popup.
func (c *Controller) ClickMap(ctx echo.Context) error {
	c.Engine.ClickMap()
	return ctx.JSON(http.StatusOK, c.Engine.Snapshot())
}

// CenterOnLatest animates the camera to the newest geolocated record.
func (c *Controller) CenterOnLatest(ctx echo.Context) error {
	c.Engine.CenterOnLatest()
	return ctx.JSON(http.StatusOK, c.Engine.Snapshot())
}

// CenterOnDevice animates the camera to the device location. Fails with 409
// while the one-time location request is unresolved or after it failed.
func (c *Controller) CenterOnDevice(ctx echo.Context) error {
	if err := c.Engine.CenterOnDevice(); err != nil {
		return c.HandleError(ctx, err, "Device location not available", http.StatusConflict)
	}
	return ctx.JSON(http.StatusOK, c.Engine.Snapshot())
}

// DeleteSelected deletes the record behind the open popup. 404 when no popup
// is open.
func (c *Controller) DeleteSelected(ctx echo.Context) error {
	if !c.Engine.DeleteSelected(ctx.Request().Context()) {
		return ctx.NoContent(http.StatusNotFound)
	}
	return ctx.NoContent(http.StatusNoContent)
}
