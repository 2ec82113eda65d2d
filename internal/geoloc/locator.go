// Package geoloc resolves the device's coordinate with a single bounded
// request. The result is cached so repeated map mounts within a session do
// not re-query the location service; a failed or timed-out lookup simply
// leaves location-dependent features disabled, never fatal.
package geoloc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sentinelops/sentinel-go/internal/errors"
	"github.com/sentinelops/sentinel-go/internal/model"
)

const (
	defaultEndpoint = "https://ipapi.co/json/"
	defaultTimeout  = 10 * time.Second

	cacheKey      = "device-location"
	cacheTTL      = 5 * time.Minute
	cacheJanitorT = 10 * time.Minute
)

// Locator resolves a device coordinate. The geo engine and the ingestion
// wiring both consume this interface.
type Locator interface {
	Locate(ctx context.Context) (*model.Coordinates, error)
}

// HTTPLocator queries an IP geolocation endpoint returning a JSON body with
// latitude/longitude fields.
type HTTPLocator struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	cache    *gocache.Cache
}

// Config holds configuration for creating an HTTPLocator.
type Config struct {
	// Endpoint of the location service. Empty means defaultEndpoint.
	Endpoint string
	// Timeout bounds the one-shot request. Zero means defaultTimeout.
	Timeout time.Duration
	// Transport overrides the HTTP transport, used by tests.
	Transport http.RoundTripper
}

// New creates a locator with its own result cache.
func New(cfg Config) *HTTPLocator {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{}
	if cfg.Transport != nil {
		client.Transport = cfg.Transport
	}
	return &HTTPLocator{
		endpoint: endpoint,
		timeout:  timeout,
		client:   client,
		cache:    gocache.New(cacheTTL, cacheJanitorT),
	}
}

// locationResponse matches the subset of the endpoint's JSON body we consume.
type locationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Locate returns the device coordinate, serving the cached result when one
// is still fresh. The request is bounded by the configured timeout on top of
// any caller deadline.
func (l *HTTPLocator) Locate(ctx context.Context) (*model.Coordinates, error) {
	if cached, ok := l.cache.Get(cacheKey); ok {
		coords := cached.(model.Coordinates)
		return &coords, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, http.NoBody)
	if err != nil {
		return nil, errors.New(err).Component("geoloc").Category(errors.CategoryGeolocation).Build()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("geoloc").
			Category(errors.CategoryTimeout).
			Context("endpoint", l.endpoint).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("location service returned %d", resp.StatusCode).
			Component("geoloc").
			Category(errors.CategoryGeolocation).
			Build()
	}

	var body locationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.New(err).Component("geoloc").Category(errors.CategoryGeolocation).Build()
	}

	coords := model.Coordinates{Lat: body.Latitude, Lng: body.Longitude}
	l.cache.Set(cacheKey, coords, gocache.DefaultExpiration)
	return &coords, nil
}
