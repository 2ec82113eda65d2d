// Package persistence implements the REST client for the remote persistence
// service. The store consumes it through the history.PersistenceClient
// interface; beyond the two hydration reads, response bodies are ignored and
// only success or failure matters.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sentinelops/sentinel-go/internal/errors"
	"github.com/sentinelops/sentinel-go/internal/model"
)

const (
	defaultTimeout = 15 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 30 * time.Second

	userAgent = "Sentinel-Go"

	analysesPath     = "/analyses"
	activityLogsPath = "/activity-logs"
)

// Client talks to the persistence service. Thread-safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds configuration for creating a persistence client.
type Config struct {
	// BaseURL is the root of the persistence service, without trailing slash.
	BaseURL string
	// Timeout bounds every request. Zero means defaultTimeout.
	Timeout time.Duration
	// Transport overrides the HTTP transport, used by tests (httpmock).
	Transport http.RoundTripper
}

// New creates a persistence client with pooled connections and sane timeouts.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   defaultDialTimeout,
				KeepAlive: defaultDialTimeout,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
			TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		}
	}

	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// FetchAnalyses retrieves the full remote analysis collection.
func (c *Client) FetchAnalyses(ctx context.Context) ([]model.AnalysisRecord, error) {
	var records []model.AnalysisRecord
	if err := c.getJSON(ctx, analysesPath, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchActivityLogs retrieves the full remote activity log collection.
func (c *Client) FetchActivityLogs(ctx context.Context) ([]model.ActivityLog, error) {
	var logs []model.ActivityLog
	if err := c.getJSON(ctx, activityLogsPath, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// CreateAnalysis persists one analysis record.
func (c *Client) CreateAnalysis(ctx context.Context, record *model.AnalysisRecord) error {
	return c.postJSON(ctx, analysesPath, record)
}

// CreateActivityLog persists one activity log entry.
func (c *Client) CreateActivityLog(ctx context.Context, entry *model.ActivityLog) error {
	return c.postJSON(ctx, activityLogsPath, entry)
}

// DeleteAnalysis removes one analysis record from the remote store.
func (c *Client) DeleteAnalysis(ctx context.Context, analysisID string) error {
	return c.delete(ctx, analysesPath+"/"+analysisID)
}

// DeleteAllAnalyses removes every analysis record from the remote store.
func (c *Client) DeleteAllAnalyses(ctx context.Context) error {
	return c.delete(ctx, analysesPath)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return errors.New(err).Component("persistence").Category(errors.CategoryHTTP).Build()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("persistence").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(fmt.Errorf("decoding %s response: %w", path, err)).
			Component("persistence").
			Category(errors.CategoryHTTP).
			Build()
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(fmt.Errorf("encoding %s request: %w", path, err)).
			Component("persistence").
			Category(errors.CategoryHTTP).
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.New(err).Component("persistence").Category(errors.CategoryHTTP).Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("persistence").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError(path, resp.StatusCode)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, http.NoBody)
	if err != nil {
		return errors.New(err).Component("persistence").Category(errors.CategoryHTTP).Build()
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("persistence").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(path, resp.StatusCode)
	}
	return nil
}

func statusError(path string, status int) error {
	return errors.Newf("persistence service returned %d for %s", status, path).
		Component("persistence").
		Category(errors.CategoryHTTP).
		Context("status_code", status).
		Build()
}

// closeBody drains and closes a response body so the connection can be
// reused by the pool.
func closeBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
