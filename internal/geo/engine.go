// Package geo implements the map engine behind the dashboard's geospatial
// view. It keeps a marker per geolocated analysis record, tracks hover and
// popup interaction state, and frames the camera. The engine is headless:
// the frontend renders whatever Snapshot returns, and every store change
// triggers a full marker rebuild rather than an incremental diff, which is
// simpler to reason about at the collection sizes this dashboard sees.
package geo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelops/sentinel-go/internal/errors"
	"github.com/sentinelops/sentinel-go/internal/history"
	"github.com/sentinelops/sentinel-go/internal/model"
)

// HistoryStore is the slice of the history store the engine consumes.
type HistoryStore interface {
	Analyses() []model.AnalysisRecord
	Analysis(analysisID string) (model.AnalysisRecord, bool)
	RemoveAnalysis(ctx context.Context, analysisID string)
	Subscribe() (<-chan history.Event, context.Context)
	Unsubscribe(ch <-chan history.Event)
}

// DeviceLocator is the one-shot device location dependency.
type DeviceLocator interface {
	Locate(ctx context.Context) (*model.Coordinates, error)
}

// Config holds the camera framing parameters of the engine.
type Config struct {
	// DefaultCenter and DefaultZoom frame the global view shown before any
	// geolocated record exists or when geolocation fails.
	DefaultCenter model.Coordinates
	DefaultZoom   float64
	// FocusZoom is used when centering on an analysis record.
	FocusZoom float64
	// DeviceZoom is used when centering on the device location.
	DeviceZoom float64
	// AnimationDuration is how long camera moves take.
	AnimationDuration time.Duration
}

// DefaultConfig returns the camera defaults used when no settings are wired.
func DefaultConfig() Config {
	return Config{
		DefaultCenter:     model.Coordinates{Lat: 20, Lng: 0},
		DefaultZoom:       2,
		FocusZoom:         15,
		DeviceZoom:        13,
		AnimationDuration: 1500 * time.Millisecond,
	}
}

// ErrDeviceLocationUnavailable is returned by CenterOnDevice before the
// one-time device location request has resolved, or after it failed.
var ErrDeviceLocationUnavailable = errors.Newf("device location not available").
	Component("geo").
	Category(errors.CategoryGeolocation).
	Build()

// Engine owns the map view state. Safe for concurrent use; it treats the
// store as read-only except through RemoveAnalysis.
type Engine struct {
	store   HistoryStore
	locator DeviceLocator
	cfg     Config
	logger  *slog.Logger

	mu           sync.RWMutex
	markers      []Marker
	hoveredID    string
	popup        Popup
	camera       Camera
	deviceCoords *model.Coordinates

	events  <-chan history.Event
	stopped chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewEngine creates the engine in its default global view. Call Start to
// subscribe to the store and request the device location.
func NewEngine(store HistoryStore, locator DeviceLocator, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default().With("service", "geo")
	}
	return &Engine{
		store:   store,
		locator: locator,
		cfg:     cfg,
		logger:  logger,
		camera: Camera{
			Center:      cfg.DefaultCenter,
			Zoom:        cfg.DefaultZoom,
			AnimationMs: 0,
		},
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start performs the initial marker build, subscribes to store changes and
// fires the one-time device location request. Geolocation failure leaves the
// camera at the default view and the device-centering command disabled; it
// never blocks engine start.
func (e *Engine) Start(ctx context.Context) {
	e.Resync()

	events, _ := e.store.Subscribe()
	e.events = events
	go e.watch()

	go func() {
		coords, err := e.locator.Locate(ctx)
		if err != nil {
			e.logger.Warn("device location unavailable, center-on-device disabled",
				"error", err)
			return
		}
		e.mu.Lock()
		e.deviceCoords = coords
		e.mu.Unlock()
		e.logger.Info("device location resolved",
			"lat", coords.Lat,
			"lng", coords.Lng)
	}()
}

// Stop unsubscribes from the store and ends the watch goroutine.
func (e *Engine) Stop() {
	e.once.Do(func() {
		close(e.stopped)
		if e.events != nil {
			e.store.Unsubscribe(e.events)
			<-e.done
		}
	})
}

// watch rebuilds the marker set on every store mutation.
func (e *Engine) watch() {
	defer close(e.done)
	for {
		select {
		case <-e.stopped:
			return
		case _, ok := <-e.events:
			if !ok {
				return
			}
			e.Resync()
		}
	}
}

// Resync clears the marker set and rebuilds it from every record carrying
// coordinates. Records without coordinates stay visible in the feed but not
// on the map. If the newest record is geolocated the camera animates to it.
func (e *Engine) Resync() {
	analyses := e.store.Analyses()

	e.mu.Lock()

	e.markers = e.markers[:0]
	present := make(map[string]struct{}, len(analyses))
	for i := range analyses {
		record := &analyses[i]
		if !record.HasCoordinates() {
			continue
		}
		present[record.ID] = struct{}{}
		e.markers = append(e.markers, newMarker(record, record.ID == e.hoveredID))
	}

	// Interaction state anchored to vanished records is dropped.
	if _, ok := present[e.hoveredID]; !ok {
		e.clearHoverLocked()
	}
	if e.popup.Visible {
		if _, ok := present[e.popup.AnalysisID]; !ok {
			e.popup.Visible = false
		}
	}

	markerCount := len(e.markers)

	// Auto-center on the newest record when it is geolocated.
	if len(analyses) > 0 && analyses[0].HasCoordinates() {
		e.moveCameraLocked(*analyses[0].Coordinates, e.cfg.FocusZoom)
	}
	e.mu.Unlock()

	metricMarkerRebuilds.Inc()
	metricMarkers.Set(float64(markerCount))
}

// HoverMarker puts the identified marker into the hovered state. At most one
// marker is hovered at a time; hovering a different marker returns the
// previous one to idle. Unknown ids clear the hover.
func (e *Engine) HoverMarker(analysisID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clearHoverLocked()
	for i := range e.markers {
		if e.markers[i].AnalysisID == analysisID {
			e.markers[i].applyHover(true)
			e.hoveredID = analysisID
			return
		}
	}
}

// ClearHover returns the hovered marker, if any, to idle. Called when the
// pointer leaves a marker's hit area.
func (e *Engine) ClearHover() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearHoverLocked()
}

func (e *Engine) clearHoverLocked() {
	if e.hoveredID == "" {
		return
	}
	for i := range e.markers {
		if e.markers[i].AnalysisID == e.hoveredID {
			e.markers[i].applyHover(false)
			break
		}
	}
	e.hoveredID = ""
}

// ClickMarker opens the detail popup anchored to the identified marker.
// Clicking a marker with no backing record is ignored.
func (e *Engine) ClickMarker(analysisID string) {
	record, ok := e.store.Analysis(analysisID)
	if !ok || !record.HasCoordinates() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.popup = newPopup(&record)
}

// ClickMap hides the popup. It fires when the user clicks anywhere on the
// map that is not a marker; the popup is hidden, not destroyed.
func (e *Engine) ClickMap() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.popup.Visible = false
}

// CenterOnLatest re-runs the same centering as the automatic re-sync,
// usable after the user panned away. No-op when the newest record carries
// no coordinates.
func (e *Engine) CenterOnLatest() {
	analyses := e.store.Analyses()
	if len(analyses) == 0 || !analyses[0].HasCoordinates() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moveCameraLocked(*analyses[0].Coordinates, e.cfg.FocusZoom)
}

// CenterOnDevice animates the camera to the device coordinate. It is only
// available once the one-time location request has resolved.
func (e *Engine) CenterOnDevice() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deviceCoords == nil {
		return ErrDeviceLocationUnavailable
	}
	e.moveCameraLocked(*e.deviceCoords, e.cfg.DeviceZoom)
	return nil
}

// DeviceLocationAvailable reports whether CenterOnDevice is enabled.
func (e *Engine) DeviceLocationAvailable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deviceCoords != nil
}

// DeleteSelected removes the record behind the open popup through the same
// store operation the feed uses, then hides the popup since its anchor no
// longer exists. The confirmation step happens in the frontend before this
// is invoked. Returns false when no popup is open.
func (e *Engine) DeleteSelected(ctx context.Context) bool {
	e.mu.Lock()
	if !e.popup.Visible {
		e.mu.Unlock()
		return false
	}
	analysisID := e.popup.AnalysisID
	e.popup.Visible = false
	e.mu.Unlock()

	e.store.RemoveAnalysis(ctx, analysisID)
	return true
}

// moveCameraLocked animates the camera to a target. Callers hold e.mu.
func (e *Engine) moveCameraLocked(center model.Coordinates, zoom float64) {
	e.camera = Camera{
		Center:      center,
		Zoom:        zoom,
		AnimationMs: int(e.cfg.AnimationDuration.Milliseconds()),
	}
}

// Snapshot returns a copy of the complete map view state for rendering.
func (e *Engine) Snapshot() MapState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	markers := make([]Marker, len(e.markers))
	copy(markers, e.markers)

	return MapState{
		Markers:         markers,
		Camera:          e.camera,
		Popup:           e.popup,
		HoveredID:       e.hoveredID,
		DeviceAvailable: e.deviceCoords != nil,
	}
}
