package geo

import (
	"fmt"

	"github.com/sentinelops/sentinel-go/internal/model"
)

// Marker styling by interaction state. Hovered markers grow and get a
// heavier border so they read as the active target.
const (
	idleRadius    = 8.0
	hoverRadius   = 12.0
	idleBorderPx  = 2
	hoverBorderPx = 3
)

// Marker colors by derived record status.
var statusColors = map[model.DetectionStatus]string{
	model.StatusThreat:    "#ef4444",
	model.StatusVerified:  "#22c55e",
	model.StatusAnalyzing: "#eab308",
}

// Marker is the renderable state of one geolocated analysis record.
type Marker struct {
	AnalysisID  string                `json:"analysisId"`
	Coordinates model.Coordinates     `json:"coordinates"`
	Status      model.DetectionStatus `json:"status"`
	Color       string                `json:"color"`
	Radius      float64               `json:"radius"`
	BorderPx    int                   `json:"borderPx"`
	Hovered     bool                  `json:"hovered"`
}

// newMarker derives a marker from a record. The status is recomputed from
// the record's counts on every rebuild, never stored on the record.
func newMarker(record *model.AnalysisRecord, hovered bool) Marker {
	status := record.DerivedStatus()
	m := Marker{
		AnalysisID:  record.ID,
		Coordinates: *record.Coordinates,
		Status:      status,
		Color:       statusColors[status],
	}
	m.applyHover(hovered)
	return m
}

func (m *Marker) applyHover(hovered bool) {
	m.Hovered = hovered
	if hovered {
		m.Radius = hoverRadius
		m.BorderPx = hoverBorderPx
	} else {
		m.Radius = idleRadius
		m.BorderPx = idleBorderPx
	}
}

// Camera describes the requested map framing. AnimationMs is zero for the
// initial view and the configured duration for every later move.
type Camera struct {
	Center      model.Coordinates `json:"center"`
	Zoom        float64           `json:"zoom"`
	AnimationMs int               `json:"animationMs"`
}

// PopupDetection is one row of the popup's per-detection table.
type PopupDetection struct {
	ObjectName      string                `json:"objectName"`
	ConfidenceScore float64               `json:"confidenceScore"`
	Status          model.DetectionStatus `json:"status"`
}

// Popup is the detail overlay anchored to a clicked marker. Hidden popups
// keep their last content; only Visible toggles.
type Popup struct {
	Visible              bool              `json:"visible"`
	AnalysisID           string            `json:"analysisId"`
	Anchor               model.Coordinates `json:"anchor"`
	SourceName           string            `json:"sourceName"`
	Timestamp            string            `json:"timestamp"`
	AnnotatedImageBase64 string            `json:"annotatedImageBase64,omitempty"`
	HasPreview           bool              `json:"hasPreview"`
	TotalDetections      int               `json:"totalDetections"`
	Threats              int               `json:"threats"`
	Verified             int               `json:"verified"`
	ProcessingTimeMs     int               `json:"processingTimeMs"`
	Detections           []PopupDetection  `json:"detections"`
	CoordinateText       string            `json:"coordinateText"`
}

// newPopup builds the popup view model for a geolocated record.
func newPopup(record *model.AnalysisRecord) Popup {
	rows := make([]PopupDetection, 0, len(record.Detections))
	for i := range record.Detections {
		d := &record.Detections[i]
		rows = append(rows, PopupDetection{
			ObjectName:      d.ObjectName,
			ConfidenceScore: d.ConfidenceScore,
			Status:          d.Status,
		})
	}

	return Popup{
		Visible:              true,
		AnalysisID:           record.ID,
		Anchor:               *record.Coordinates,
		SourceName:           record.ImageName,
		Timestamp:            record.Timestamp,
		AnnotatedImageBase64: record.AnnotatedImageBase64,
		HasPreview:           record.AnnotatedImageBase64 != "",
		TotalDetections:      record.TotalDetections,
		Threats:              record.Threats,
		Verified:             record.Verified,
		ProcessingTimeMs:     record.ProcessingTimeMs,
		Detections:           rows,
		CoordinateText: fmt.Sprintf("%.6f, %.6f",
			record.Coordinates.Lat, record.Coordinates.Lng),
	}
}

// MapState is the full view state handed to the renderer.
type MapState struct {
	Markers         []Marker `json:"markers"`
	Camera          Camera   `json:"camera"`
	Popup           Popup    `json:"popup"`
	HoveredID       string   `json:"hoveredId,omitempty"`
	DeviceAvailable bool     `json:"deviceAvailable"`
}
