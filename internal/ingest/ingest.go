// Package ingest translates raw perception pipeline output into domain
// entities and feeds them to the history store. The adapters are pure
// translation: they perform no I/O of their own and leave persistence to the
// store they are handed.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentinelops/sentinel-go/internal/model"
)

// timeNow is stubbed in tests to pin the shared display timestamp.
var timeNow = time.Now

// IDSource issues session-monotonic entity ids. *history.Store satisfies it.
type IDSource interface {
	NextDetectionID() string
	NextActivityLogID() string
}

// Sink receives the translated entities. *history.Store satisfies it.
type Sink interface {
	AddAnalysis(record *model.AnalysisRecord)
	AddActivityLog(entry *model.ActivityLog)
}

// RawDetection is one per-object result as emitted by the perception
// pipeline. SecondaryLabel is empty when the secondary classifier did not run.
type RawDetection struct {
	ObjectName          string  `json:"objectName"`
	Status              string  `json:"status"`
	ConfidenceScore     float64 `json:"confidenceScore"`
	SecondaryLabel      string  `json:"secondaryLabel,omitempty"`
	SecondaryConfidence float64 `json:"secondaryConfidence,omitempty"`
}

// ImageInput is one completed pipeline run over a single image.
type ImageInput struct {
	ImageName            string             `json:"imageName"`
	Results              []RawDetection     `json:"results"`
	ProcessingTimeMs     int                `json:"processingTimeMs"`
	AnnotatedImageBase64 string             `json:"annotatedImageBase64,omitempty"`
	Location             string             `json:"location,omitempty"`
	Coordinates          *model.Coordinates `json:"coordinates,omitempty"`
}

// FrameResult is the pipeline output for one video frame.
type FrameResult struct {
	FrameIndex   int            `json:"frameIndex"`
	TimestampSec float64        `json:"timestampSec"`
	Results      []RawDetection `json:"results"`
}

// VideoSummary carries the caller-supplied aggregate counts for a video run.
// The video adapter trusts these counts as-is and never cross-checks them
// against the flattened per-frame detections; the image path recomputes its
// counts instead. The asymmetry is inherited behavior and deliberately
// preserved.
type VideoSummary struct {
	TotalDetections int `json:"totalDetections"`
	Threats         int `json:"threats"`
	Verified        int `json:"verified"`
	Analyzing       int `json:"analyzing"`
}

// VideoInput is one completed pipeline run over a video.
type VideoInput struct {
	VideoName            string             `json:"videoName"`
	Frames               []FrameResult      `json:"frames"`
	Summary              VideoSummary       `json:"summary"`
	ProcessingTimeMs     int                `json:"processingTimeMs"`
	AnnotatedImageBase64 string             `json:"annotatedImageBase64,omitempty"`
	Location             string             `json:"location,omitempty"`
	Coordinates          *model.Coordinates `json:"coordinates,omitempty"`
}

// IngestImage translates one image run into an AnalysisRecord plus its
// activity logs and adds them to the sink. The record is added before any
// log, and the summary log before the conditional threat log. Counts are
// recomputed locally from per-detection statuses. Returns the added record.
func IngestImage(ids IDSource, sink Sink, input ImageInput) *model.AnalysisRecord {
	now := timeNow()
	// One shared display timestamp so all entities of this ingestion read
	// as simultaneous.
	displayTime := now.Format("3:04:05 PM")
	analysisID := fmt.Sprintf("analysis-%d", now.UnixMilli())

	detections := make([]model.Detection, 0, len(input.Results))
	for i := range input.Results {
		raw := &input.Results[i]
		detections = append(detections, model.Detection{
			ID:              ids.NextDetectionID(),
			ObjectName:      raw.ObjectName,
			Status:          parseStatus(raw.Status),
			ConfidenceScore: raw.ConfidenceScore,
			TimeDetected:    displayTime,
			Description:     imageDescription(raw),
			AnalysisID:      analysisID,
			SourceImage:     input.ImageName,
			Location:        input.Location,
			Coordinates:     input.Coordinates,
		})
	}

	counts := model.CountByStatus(detections)
	record := &model.AnalysisRecord{
		ID:                   analysisID,
		ImageName:            input.ImageName,
		Timestamp:            now.UTC().Format(time.RFC3339),
		TotalDetections:      len(detections),
		Threats:              counts.Threats,
		Verified:             counts.Verified,
		Analyzing:            counts.Analyzing,
		ProcessingTimeMs:     input.ProcessingTimeMs,
		Detections:           detections,
		AnnotatedImageBase64: input.AnnotatedImageBase64,
		Coordinates:          input.Coordinates,
	}

	sink.AddAnalysis(record)
	addIngestionLogs(ids, sink, record, displayTime)
	return record
}

// IngestVideo flattens every frame's results into one detection list and
// translates the run into an AnalysisRecord. Unlike the image path, the
// record's counts come from the caller-supplied summary, not a local recount.
// Returns the added record.
func IngestVideo(ids IDSource, sink Sink, input VideoInput) *model.AnalysisRecord {
	now := timeNow()
	displayTime := now.Format("3:04:05 PM")
	analysisID := fmt.Sprintf("analysis-%d", now.UnixMilli())
	imageName := model.VideoPrefix + input.VideoName

	var detections []model.Detection
	for f := range input.Frames {
		frame := &input.Frames[f]
		for i := range frame.Results {
			raw := &frame.Results[i]
			detections = append(detections, model.Detection{
				ID:              ids.NextDetectionID(),
				ObjectName:      raw.ObjectName,
				Status:          parseStatus(raw.Status),
				ConfidenceScore: raw.ConfidenceScore,
				TimeDetected:    displayTime,
				Description:     videoDescription(frame),
				AnalysisID:      analysisID,
				SourceImage:     imageName,
				Location:        input.Location,
				Coordinates:     input.Coordinates,
			})
		}
	}

	record := &model.AnalysisRecord{
		ID:                   analysisID,
		ImageName:            imageName,
		Timestamp:            now.UTC().Format(time.RFC3339),
		TotalDetections:      input.Summary.TotalDetections,
		Threats:              input.Summary.Threats,
		Verified:             input.Summary.Verified,
		Analyzing:            input.Summary.Analyzing,
		ProcessingTimeMs:     input.ProcessingTimeMs,
		Detections:           detections,
		AnnotatedImageBase64: input.AnnotatedImageBase64,
		Coordinates:          input.Coordinates,
	}

	sink.AddAnalysis(record)
	addIngestionLogs(ids, sink, record, displayTime)
	return record
}

// addIngestionLogs adds the summary log and, when the record reports threats,
// the dedicated alert log. Ordering is part of the store contract: the record
// always exists before its logs.
func addIngestionLogs(ids IDSource, sink Sink, record *model.AnalysisRecord, displayTime string) {
	logType := model.LogSystem
	if record.Threats > 0 {
		logType = model.LogAlert
	}

	names := model.DistinctObjectNames(record.Detections)
	subject := "nothing of interest"
	if len(names) > 0 {
		subject = strings.Join(names, ", ")
	}

	sink.AddActivityLog(&model.ActivityLog{
		ID:        ids.NextActivityLogID(),
		Message:   fmt.Sprintf("Analysis of %s complete: detected %s in %dms", record.ImageName, subject, record.ProcessingTimeMs),
		Timestamp: displayTime,
		Type:      logType,
		AnalysisID: record.ID,
	})

	if record.Threats > 0 {
		sink.AddActivityLog(&model.ActivityLog{
			ID:         ids.NextActivityLogID(),
			Message:    fmt.Sprintf("%d threat(s) identified in %s - review required", record.Threats, record.ImageName),
			Timestamp:  displayTime,
			Type:       model.LogAlert,
			AnalysisID: record.ID,
		})
	}
}

// imageDescription derives the human-readable classification text for one
// image-path detection.
func imageDescription(raw *RawDetection) string {
	if raw.SecondaryLabel != "" {
		return fmt.Sprintf("Classified as %s (%.0f%% confidence) via secondary pipeline.",
			raw.SecondaryLabel, raw.SecondaryConfidence)
	}
	return fmt.Sprintf("Detected as %s by primary detector.", raw.ObjectName)
}

// videoDescription cites the originating frame instead of classifier output.
func videoDescription(frame *FrameResult) string {
	return fmt.Sprintf("Detected in frame %d at %.1fs into the video.",
		frame.FrameIndex, frame.TimestampSec)
}

// parseStatus maps a raw pipeline status string onto the domain status.
// Unknown statuses fall back to analyzing rather than failing ingestion.
func parseStatus(status string) model.DetectionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(model.StatusThreat):
		return model.StatusThreat
	case string(model.StatusVerified):
		return model.StatusVerified
	default:
		return model.StatusAnalyzing
	}
}
