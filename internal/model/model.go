// Package model provides the domain entities shared by the dashboard backend:
// detections, analysis records and activity log entries. These models are the
// runtime representation; the persistence service owns the durable copy.
package model

import (
	"fmt"
	"strings"
)

// DetectionStatus classifies a detection on the dashboard.
type DetectionStatus string

const (
	// StatusThreat marks a detection requiring attention
	StatusThreat DetectionStatus = "threat"
	// StatusVerified marks a detection confirmed as benign
	StatusVerified DetectionStatus = "verified"
	// StatusAnalyzing marks a detection still being classified
	StatusAnalyzing DetectionStatus = "analyzing"
)

// LogType categorizes an activity log entry.
type LogType string

const (
	// LogAlert is used for threat-related entries
	LogAlert LogType = "alert"
	// LogSystem is used for pipeline and lifecycle entries
	LogSystem LogType = "system"
	// LogUser is used for operator-initiated entries
	LogUser LogType = "user"
)

// VideoPrefix decorates the ImageName of records produced from video input.
const VideoPrefix = "🎥 "

// Coordinates is a WGS84 position attached to detections and records.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Detection represents one identified object instance within an analyzed input.
type Detection struct {
	// ID is unique and monotonic per session, of the form "det-N".
	ID string `json:"id"`
	// ObjectName is the label assigned by the primary detector.
	ObjectName string `json:"objectName"`
	// Status classifies the detection for display.
	Status DetectionStatus `json:"status"`
	// ConfidenceScore is the detector confidence in percent (0-100).
	ConfidenceScore float64 `json:"confidenceScore"`
	// TimeDetected is the display timestamp shared by all detections of
	// one ingestion so they read as simultaneous.
	TimeDetected string `json:"timeDetected"`
	// Description is derived human-readable text about the classification.
	Description string `json:"description"`
	// AnalysisID references the owning AnalysisRecord.
	AnalysisID string `json:"analysisId"`
	// SourceImage is the display name of the originating input.
	SourceImage string `json:"sourceImage"`
	// Location is optional free-form location text.
	Location string `json:"location,omitempty"`
	// Coordinates is the optional geoposition of the detection.
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// AnalysisRecord is the aggregate result of one pipeline run over one input.
type AnalysisRecord struct {
	// ID is unique, derived from the creation instant.
	ID string `json:"id"`
	// ImageName is the display name of the source input. Records built
	// from video input carry VideoPrefix.
	ImageName string `json:"imageName"`
	// Timestamp is the ISO creation instant.
	Timestamp string `json:"timestamp"`
	// Aggregate counts over Detections. For the image ingestion path these
	// are recomputed locally; the video path trusts caller-supplied counts.
	TotalDetections int `json:"totalDetections"`
	Threats         int `json:"threats"`
	Verified        int `json:"verified"`
	Analyzing       int `json:"analyzing"`
	// ProcessingTimeMs is the total pipeline duration for this input.
	ProcessingTimeMs int `json:"processingTimeMs"`
	// Detections in pipeline emission order.
	Detections []Detection `json:"detections"`
	// AnnotatedImageBase64 is an optional encoded preview artifact.
	AnnotatedImageBase64 string `json:"annotatedImageBase64,omitempty"`
	// Coordinates is the optional geoposition of the analyzed input.
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// ActivityLog is a timestamped notification entry shown in the live feed.
type ActivityLog struct {
	// ID is unique and monotonic per session, of the form "log-N".
	ID string `json:"id"`
	// Message is the display text of the entry.
	Message string `json:"message"`
	// Timestamp is the display time string.
	Timestamp string `json:"timestamp"`
	// Type categorizes the entry.
	Type LogType `json:"type"`
	// AnalysisID optionally back-references the owning record; entries are
	// cascade-removed with it.
	AnalysisID string `json:"analysisId,omitempty"`
}

// StatusCounts is the partition of a detection list by status.
type StatusCounts struct {
	Threats   int
	Verified  int
	Analyzing int
}

// Total returns the sum of the partition.
func (c StatusCounts) Total() int {
	return c.Threats + c.Verified + c.Analyzing
}

// CountByStatus partitions detections by their status.
func CountByStatus(detections []Detection) StatusCounts {
	var counts StatusCounts
	for i := range detections {
		switch detections[i].Status {
		case StatusThreat:
			counts.Threats++
		case StatusVerified:
			counts.Verified++
		case StatusAnalyzing:
			counts.Analyzing++
		}
	}
	return counts
}

// DistinctObjectNames returns the unique object names of detections in first
// occurrence order.
func DistinctObjectNames(detections []Detection) []string {
	seen := make(map[string]struct{}, len(detections))
	names := make([]string, 0, len(detections))
	for i := range detections {
		name := detections[i].ObjectName
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Validate checks the structural invariants of a record: the detection count
// matches TotalDetections, the count partition sums to the total, and every
// detection references this record. The image ingestion path guarantees these
// hold; the video path may legitimately violate the partition recount, which
// Validate does not check.
func (r *AnalysisRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("analysis record has empty id")
	}
	if r.TotalDetections != len(r.Detections) {
		return fmt.Errorf("totalDetections %d does not match %d detections",
			r.TotalDetections, len(r.Detections))
	}
	if sum := r.Threats + r.Verified + r.Analyzing; sum != r.TotalDetections {
		return fmt.Errorf("status counts sum to %d, want %d", sum, r.TotalDetections)
	}
	for i := range r.Detections {
		if r.Detections[i].AnalysisID != r.ID {
			return fmt.Errorf("detection %s references analysis %q, want %q",
				r.Detections[i].ID, r.Detections[i].AnalysisID, r.ID)
		}
	}
	return nil
}

// IsVideo reports whether the record was produced from video input.
func (r *AnalysisRecord) IsVideo() bool {
	return strings.HasPrefix(r.ImageName, VideoPrefix)
}

// HasCoordinates reports whether the record can be placed on the map.
func (r *AnalysisRecord) HasCoordinates() bool {
	return r.Coordinates != nil
}

// DerivedStatus computes the map-display status of a record from its counts.
// It is recomputed on every marker rebuild, never stored.
func (r *AnalysisRecord) DerivedStatus() DetectionStatus {
	switch {
	case r.Threats > 0:
		return StatusThreat
	case r.Verified > 0:
		return StatusVerified
	default:
		return StatusAnalyzing
	}
}
