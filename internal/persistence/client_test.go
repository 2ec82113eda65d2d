package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/sentinel-go/internal/errors"
	"github.com/sentinelops/sentinel-go/internal/history"
	"github.com/sentinelops/sentinel-go/internal/model"
)

const testBaseURL = "http://persistence.test"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	transport := httpmock.NewMockTransport()
	t.Cleanup(transport.Reset)
	return New(Config{BaseURL: testBaseURL, Transport: transport})
}

func transportOf(c *Client) *httpmock.MockTransport {
	return c.client.Transport.(*httpmock.MockTransport)
}

func TestFetchAnalyses(t *testing.T) {
	t.Parallel()

	client := newMockedClient(t)
	transportOf(client).RegisterResponder(http.MethodGet, testBaseURL+"/analyses",
		httpmock.NewJsonResponderOrPanic(200, []model.AnalysisRecord{
			{ID: "analysis-1", ImageName: "a.jpg", TotalDetections: 1, Threats: 1,
				Detections: []model.Detection{{ID: "det-1", AnalysisID: "analysis-1"}}},
			{ID: "analysis-2", ImageName: "b.jpg"},
		}))

	records, err := client.FetchAnalyses(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "analysis-1", records[0].ID)
	assert.Equal(t, "det-1", records[0].Detections[0].ID)
}

func TestFetchActivityLogs(t *testing.T) {
	t.Parallel()

	client := newMockedClient(t)
	transportOf(client).RegisterResponder(http.MethodGet, testBaseURL+"/activity-logs",
		httpmock.NewJsonResponderOrPanic(200, []model.ActivityLog{
			{ID: "log-1", Message: "Analysis complete", Type: model.LogSystem},
		}))

	logs, err := client.FetchActivityLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogSystem, logs[0].Type)
}

func TestCreateAnalysisPostsJSONBody(t *testing.T) {
	t.Parallel()

	client := newMockedClient(t)
	var received model.AnalysisRecord
	transportOf(client).RegisterResponder(http.MethodPost, testBaseURL+"/analyses",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
				return httpmock.NewStringResponse(400, "bad body"), nil
			}
			return httpmock.NewStringResponse(201, ""), nil
		})

	record := &model.AnalysisRecord{ID: "analysis-9", ImageName: "dock.jpg", Threats: 2, TotalDetections: 2}
	require.NoError(t, client.CreateAnalysis(context.Background(), record))
	assert.Equal(t, "analysis-9", received.ID)
	assert.Equal(t, 2, received.Threats)
}

func TestDeleteAnalysisTargetsRecordPath(t *testing.T) {
	t.Parallel()

	client := newMockedClient(t)
	transportOf(client).RegisterResponder(http.MethodDelete, testBaseURL+"/analyses/analysis-3",
		httpmock.NewStringResponder(204, ""))

	require.NoError(t, client.DeleteAnalysis(context.Background(), "analysis-3"))
	info := transportOf(client).GetCallCountInfo()
	assert.Equal(t, 1, info["DELETE "+testBaseURL+"/analyses/analysis-3"])
}

func TestDeleteAllAnalyses(t *testing.T) {
	t.Parallel()

	client := newMockedClient(t)
	transportOf(client).RegisterResponder(http.MethodDelete, testBaseURL+"/analyses",
		httpmock.NewStringResponder(200, ""))

	require.NoError(t, client.DeleteAllAnalyses(context.Background()))
}

func TestErrorStatusBecomesEnhancedError(t *testing.T) {
	t.Parallel()

	client := newMockedClient(t)
	transportOf(client).RegisterResponder(http.MethodGet, testBaseURL+"/analyses",
		httpmock.NewStringResponder(500, "boom"))

	_, err := client.FetchAnalyses(context.Background())
	require.Error(t, err)

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "persistence", ee.GetComponent())
	assert.Equal(t, string(errors.CategoryHTTP), ee.GetCategory())
	assert.Equal(t, 500, ee.GetContext()["status_code"])
}

func TestMalformedHydrationBodyFails(t *testing.T) {
	t.Parallel()

	client := newMockedClient(t)
	transportOf(client).RegisterResponder(http.MethodGet, testBaseURL+"/activity-logs",
		httpmock.NewStringResponder(200, "{not json"))

	_, err := client.FetchActivityLogs(context.Background())
	assert.Error(t, err)
}

// Compile-time check that the client satisfies the store contract.
var _ history.PersistenceClient = (*Client)(nil)
