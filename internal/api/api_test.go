package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/sentinel-go/internal/conf"
	"github.com/sentinelops/sentinel-go/internal/geo"
	"github.com/sentinelops/sentinel-go/internal/history"
	"github.com/sentinelops/sentinel-go/internal/model"
)

type nopPersistence struct{}

func (nopPersistence) FetchAnalyses(context.Context) ([]model.AnalysisRecord, error) {
	return nil, nil
}
func (nopPersistence) FetchActivityLogs(context.Context) ([]model.ActivityLog, error) {
	return nil, nil
}
func (nopPersistence) CreateAnalysis(context.Context, *model.AnalysisRecord) error  { return nil }
func (nopPersistence) CreateActivityLog(context.Context, *model.ActivityLog) error { return nil }
func (nopPersistence) DeleteAnalysis(context.Context, string) error                { return nil }
func (nopPersistence) DeleteAllAnalyses(context.Context) error                     { return nil }

type noLocator struct{}

func (noLocator) Locate(context.Context) (*model.Coordinates, error) {
	return nil, context.DeadlineExceeded
}

func newTestController(t *testing.T) *Controller {
	t.Helper()

	settings := &conf.Settings{}
	store := history.NewStore(nopPersistence{}, nil)
	t.Cleanup(store.Stop)

	engine := geo.NewEngine(store, noLocator{}, geo.DefaultConfig(), nil)
	controller := New(settings, store, engine)
	t.Cleanup(func() {
		_ = controller.Shutdown(context.Background())
	})
	return controller
}

func doRequest(c *Controller, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echoHeaderContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	rec := doRequest(c, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["hydrated"])
}

func TestIngestImageCreatesRecordAndLogs(t *testing.T) {
	t.Parallel()

	c := newTestController(t)

	payload := `{
		"imageName": "gate-04.jpg",
		"processingTimeMs": 150,
		"results": [
			{"objectName": "person", "status": "threat", "confidenceScore": 92},
			{"objectName": "vehicle", "status": "verified", "confidenceScore": 81}
		]
	}`
	rec := doRequest(c, http.MethodPost, "/api/v1/ingest/image", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	var record model.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "gate-04.jpg", record.ImageName)
	assert.Equal(t, 2, record.TotalDetections)
	assert.Equal(t, 1, record.Threats)
	assert.Equal(t, 1, record.Verified)

	assert.Len(t, c.Store.Analyses(), 1)
	assert.Len(t, c.Store.AllDetections(), 2)
	// Summary log plus threat alert.
	assert.Len(t, c.Store.ActivityLogs(), 2)
}

func TestIngestImageRejectsMissingName(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	rec := doRequest(c, http.MethodPost, "/api/v1/ingest/image", `{"results": []}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.CorrelationID)
	assert.Equal(t, http.StatusBadRequest, body.Code)
}

func TestIngestVideoTrustsSummaryCounts(t *testing.T) {
	t.Parallel()

	c := newTestController(t)

	payload := `{
		"videoName": "perimeter.mp4",
		"frames": [
			{"frameIndex": 3, "timestampSec": 1.5, "results": [
				{"objectName": "person", "status": "analyzing", "confidenceScore": 55}
			]}
		],
		"summary": {"totalDetections": 9, "threats": 4, "verified": 3, "analyzing": 2},
		"processingTimeMs": 900
	}`
	rec := doRequest(c, http.MethodPost, "/api/v1/ingest/video", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	var record model.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, model.VideoPrefix+"perimeter.mp4", record.ImageName)
	// Counts come from the summary even though only one detection flattened.
	assert.Equal(t, 9, record.TotalDetections)
	assert.Equal(t, 4, record.Threats)
	assert.Len(t, record.Detections, 1)
}

func TestGetAnalysesNewestFirst(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	c.Store.AddAnalysis(&model.AnalysisRecord{ID: "analysis-1", ImageName: "a.jpg"})
	c.Store.AddAnalysis(&model.AnalysisRecord{ID: "analysis-2", ImageName: "b.jpg"})

	rec := doRequest(c, http.MethodGet, "/api/v1/analyses", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []model.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "analysis-2", records[0].ID)
	assert.Equal(t, "analysis-1", records[1].ID)
}

func TestGetAnalysisNotFound(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	rec := doRequest(c, http.MethodGet, "/api/v1/analyses/analysis-404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAnalysisIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	c.Store.AddAnalysis(&model.AnalysisRecord{ID: "analysis-1", ImageName: "a.jpg"})

	rec := doRequest(c, http.MethodDelete, "/api/v1/analyses/analysis-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, c.Store.Analyses())

	rec = doRequest(c, http.MethodDelete, "/api/v1/analyses/analysis-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClearHistory(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	c.Store.AddAnalysis(&model.AnalysisRecord{ID: "analysis-1", ImageName: "a.jpg"})
	c.Store.AddActivityLog(&model.ActivityLog{ID: "log-1", Message: "m"})

	rec := doRequest(c, http.MethodDelete, "/api/v1/analyses", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, c.Store.Analyses())
	assert.Empty(t, c.Store.ActivityLogs())
	assert.Empty(t, c.Store.AllDetections())
}

func TestMapStateAndInteractions(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	c.Store.AddAnalysis(&model.AnalysisRecord{
		ID:          "analysis-1",
		ImageName:   "a.jpg",
		Coordinates: &model.Coordinates{Lat: 60.17, Lng: 24.94},
	})
	c.Engine.Resync()

	rec := doRequest(c, http.MethodGet, "/api/v1/map/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state geo.MapState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Len(t, state.Markers, 1)

	rec = doRequest(c, http.MethodPost, "/api/v1/map/markers/analysis-1/hover", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "analysis-1", state.HoveredID)

	rec = doRequest(c, http.MethodPost, "/api/v1/map/markers/analysis-1/click", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Popup.Visible)

	rec = doRequest(c, http.MethodDelete, "/api/v1/map/selection", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, c.Store.Analyses())

	// Nothing selected anymore.
	rec = doRequest(c, http.MethodDelete, "/api/v1/map/selection", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCenterOnDeviceUnavailable(t *testing.T) {
	t.Parallel()

	c := newTestController(t)
	rec := doRequest(c, http.MethodPost, "/api/v1/map/center/device", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
