package geoloc

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "http://location.test/json"

func TestLocate(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testEndpoint,
		httpmock.NewStringResponder(200, `{"latitude": 60.1699, "longitude": 24.9384}`))

	locator := New(Config{Endpoint: testEndpoint, Transport: transport})

	coords, err := locator.Locate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 60.1699, coords.Lat, 0.0001)
	assert.InDelta(t, 24.9384, coords.Lng, 0.0001)
}

func TestLocateCachesResult(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testEndpoint,
		func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return httpmock.NewStringResponse(200, `{"latitude": 1, "longitude": 2}`), nil
		})

	locator := New(Config{Endpoint: testEndpoint, Transport: transport})

	for i := 0; i < 3; i++ {
		_, err := locator.Locate(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocateTimeout(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testEndpoint,
		func(req *http.Request) (*http.Response, error) {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(5 * time.Second):
				return httpmock.NewStringResponse(200, `{}`), nil
			}
		})

	locator := New(Config{Endpoint: testEndpoint, Timeout: 50 * time.Millisecond, Transport: transport})

	start := time.Now()
	_, err := locator.Locate(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLocateServiceError(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testEndpoint,
		httpmock.NewStringResponder(429, "rate limited"))

	locator := New(Config{Endpoint: testEndpoint, Transport: transport})

	_, err := locator.Locate(context.Background())
	assert.Error(t, err)
}
