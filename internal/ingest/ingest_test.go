package ingest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/sentinel-go/internal/model"
)

// fakeIDs issues deterministic ids without a store.
type fakeIDs struct {
	det int
	log int
}

func (f *fakeIDs) NextDetectionID() string {
	f.det++
	return fmt.Sprintf("det-%d", f.det)
}

func (f *fakeIDs) NextActivityLogID() string {
	f.log++
	return fmt.Sprintf("log-%d", f.log)
}

// captureSink records the order of additions.
type captureSink struct {
	records []*model.AnalysisRecord
	logs    []*model.ActivityLog
	order   []string
}

func (c *captureSink) AddAnalysis(record *model.AnalysisRecord) {
	c.records = append(c.records, record)
	c.order = append(c.order, "analysis")
}

func (c *captureSink) AddActivityLog(entry *model.ActivityLog) {
	c.logs = append(c.logs, entry)
	c.order = append(c.order, "log")
}

func pinTime(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = time.Now })
	return fixed
}

func TestIngestImageScenario(t *testing.T) {
	// Scenario: two detections, one threat and one verified, 120ms.
	fixed := pinTime(t)
	ids := &fakeIDs{}
	sink := &captureSink{}

	record := IngestImage(ids, sink, ImageInput{
		ImageName:        "gate-cam-04.jpg",
		ProcessingTimeMs: 120,
		Results: []RawDetection{
			{ObjectName: "person", Status: "threat", ConfidenceScore: 91},
			{ObjectName: "vehicle", Status: "verified", ConfidenceScore: 88},
		},
	})

	require.NotNil(t, record)
	assert.Equal(t, 2, record.TotalDetections)
	assert.Equal(t, 1, record.Threats)
	assert.Equal(t, 1, record.Verified)
	assert.Equal(t, 0, record.Analyzing)
	assert.Equal(t, 120, record.ProcessingTimeMs)
	assert.NoError(t, record.Validate())
	assert.Equal(t, fmt.Sprintf("analysis-%d", fixed.UnixMilli()), record.ID)

	// Exactly two activity logs, summary first, then the threat alert.
	require.Len(t, sink.logs, 2)
	assert.Equal(t, model.LogAlert, sink.logs[0].Type)
	assert.Contains(t, sink.logs[0].Message, "person, vehicle")
	assert.Contains(t, sink.logs[0].Message, "120ms")
	assert.True(t, strings.HasPrefix(sink.logs[1].Message, "1 threat(s) identified"))
	assert.Equal(t, model.LogAlert, sink.logs[1].Type)

	// Record is added before any log.
	assert.Equal(t, []string{"analysis", "log", "log"}, sink.order)
}

func TestIngestImageNoThreats(t *testing.T) {
	pinTime(t)
	ids := &fakeIDs{}
	sink := &captureSink{}

	record := IngestImage(ids, sink, ImageInput{
		ImageName: "lobby.jpg",
		Results: []RawDetection{
			{ObjectName: "person", Status: "verified", ConfidenceScore: 97},
		},
	})

	assert.Equal(t, 0, record.Threats)
	require.Len(t, sink.logs, 1)
	assert.Equal(t, model.LogSystem, sink.logs[0].Type)
}

func TestIngestImageRecomputesCounts(t *testing.T) {
	pinTime(t)
	ids := &fakeIDs{}
	sink := &captureSink{}

	record := IngestImage(ids, sink, ImageInput{
		ImageName: "yard.jpg",
		Results: []RawDetection{
			{ObjectName: "a", Status: "threat"},
			{ObjectName: "b", Status: "threat"},
			{ObjectName: "c", Status: "unrecognized-status"},
		},
	})

	// Adapter trusts per-object statuses, unknown ones become analyzing.
	assert.Equal(t, 2, record.Threats)
	assert.Equal(t, 0, record.Verified)
	assert.Equal(t, 1, record.Analyzing)
	recount := model.CountByStatus(record.Detections)
	assert.Equal(t, record.Threats, recount.Threats)
	assert.Equal(t, record.Analyzing, recount.Analyzing)
}

func TestIngestImageDescriptions(t *testing.T) {
	pinTime(t)
	ids := &fakeIDs{}
	sink := &captureSink{}

	record := IngestImage(ids, sink, ImageInput{
		ImageName: "dock.jpg",
		Results: []RawDetection{
			{ObjectName: "vehicle", Status: "verified", SecondaryLabel: "delivery truck", SecondaryConfidence: 83},
			{ObjectName: "person", Status: "verified"},
		},
	})

	assert.Equal(t, "Classified as delivery truck (83% confidence) via secondary pipeline.",
		record.Detections[0].Description)
	assert.Equal(t, "Detected as person by primary detector.",
		record.Detections[1].Description)
}

func TestIngestImageSharedDisplayTimestamp(t *testing.T) {
	fixed := pinTime(t)
	ids := &fakeIDs{}
	sink := &captureSink{}

	record := IngestImage(ids, sink, ImageInput{
		ImageName: "fence.jpg",
		Results: []RawDetection{
			{ObjectName: "a", Status: "threat"},
			{ObjectName: "b", Status: "verified"},
		},
	})

	want := fixed.Format("3:04:05 PM")
	for i := range record.Detections {
		assert.Equal(t, want, record.Detections[i].TimeDetected)
	}
	for _, entry := range sink.logs {
		assert.Equal(t, want, entry.Timestamp)
	}
}

func TestIngestVideoScenario(t *testing.T) {
	// Scenario: 3 frames, frame 2 holds the only threat detection, but the
	// caller-supplied summary is authoritative for the record counts.
	pinTime(t)
	ids := &fakeIDs{}
	sink := &captureSink{}

	record := IngestVideo(ids, sink, VideoInput{
		VideoName:        "perimeter-night.mp4",
		ProcessingTimeMs: 4200,
		Frames: []FrameResult{
			{FrameIndex: 1, TimestampSec: 0.5},
			{FrameIndex: 2, TimestampSec: 1.0, Results: []RawDetection{
				{ObjectName: "person", Status: "threat", ConfidenceScore: 76},
			}},
			{FrameIndex: 3, TimestampSec: 1.5},
		},
		Summary: VideoSummary{TotalDetections: 3, Threats: 1, Verified: 0, Analyzing: 2},
	})

	// Summary counts are used verbatim even though recounting the flattened
	// detections by status would differ.
	assert.Equal(t, 3, record.TotalDetections)
	assert.Equal(t, 1, record.Threats)
	assert.Equal(t, 0, record.Verified)
	assert.Equal(t, 2, record.Analyzing)
	require.Len(t, record.Detections, 1)
	recount := model.CountByStatus(record.Detections)
	assert.NotEqual(t, record.TotalDetections, recount.Total())

	assert.True(t, record.IsVideo())
	assert.Equal(t, model.VideoPrefix+"perimeter-night.mp4", record.ImageName)
	assert.Equal(t, "Detected in frame 2 at 1.0s into the video.", record.Detections[0].Description)

	// Threat log still derives from the summary counts.
	require.Len(t, sink.logs, 2)
	assert.True(t, strings.HasPrefix(sink.logs[1].Message, "1 threat(s) identified"))
}

func TestIngestVideoFlattensFramesInOrder(t *testing.T) {
	pinTime(t)
	ids := &fakeIDs{}
	sink := &captureSink{}

	record := IngestVideo(ids, sink, VideoInput{
		VideoName: "drone-sweep.mp4",
		Frames: []FrameResult{
			{FrameIndex: 1, TimestampSec: 0.0, Results: []RawDetection{
				{ObjectName: "drone", Status: "verified"},
				{ObjectName: "bird", Status: "verified"},
			}},
			{FrameIndex: 2, TimestampSec: 0.4, Results: []RawDetection{
				{ObjectName: "drone", Status: "verified"},
			}},
		},
		Summary: VideoSummary{TotalDetections: 3, Verified: 3},
	})

	require.Len(t, record.Detections, 3)
	assert.Equal(t, []string{"det-1", "det-2", "det-3"}, []string{
		record.Detections[0].ID, record.Detections[1].ID, record.Detections[2].ID,
	})
	assert.Contains(t, record.Detections[0].Description, "frame 1")
	assert.Contains(t, record.Detections[2].Description, "frame 2")
}
