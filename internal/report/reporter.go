// Package report pushes zone lists and occupancy snapshots to the persistence
// endpoints, either over HTTP or straight into the local store.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"zonecounter/internal/dto"
	"zonecounter/internal/httputil"
)

const (
	SaveZonesPath = "/save_zones"
	LogCountsPath = "/log_counts"
)

// Reporter is implemented by every push transport.
type Reporter interface {
	SaveZones(ctx context.Context, req dto.SaveZonesRequest) error
	LogCounts(ctx context.Context, req dto.LogCountsRequest) error
}

// HTTPReporter posts JSON to a remote instance of the persistence endpoints.
type HTTPReporter struct {
	baseURL string
	token   string
	client  httputil.HTTPClient
}

// NewHTTPReporter creates a reporter for baseURL. A nil client uses a
// 5 second timeout client.
func NewHTTPReporter(baseURL string, client httputil.HTTPClient) *HTTPReporter {
	if client == nil {
		client = httputil.NewStandardClient(0)
	}
	return &HTTPReporter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// WithToken sets the shared push token sent with every request.
func (r *HTTPReporter) WithToken(token string) *HTTPReporter {
	r.token = token
	return r
}

// SaveZones posts the zone list to /save_zones.
func (r *HTTPReporter) SaveZones(ctx context.Context, req dto.SaveZonesRequest) error {
	return r.post(ctx, SaveZonesPath, req)
}

// LogCounts posts the occupancy snapshot to /log_counts.
func (r *HTTPReporter) LogCounts(ctx context.Context, req dto.LogCountsRequest) error {
	return r.post(ctx, LogCountsPath, req)
}

func (r *HTTPReporter) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set(httputil.PushTokenHeader, r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// Store is the local persistence sink behind the /save_zones and /log_counts handlers.
type Store interface {
	SaveZones(ctx context.Context, req dto.SaveZonesRequest) (dto.SaveZonesResponse, error)
	LogCounts(ctx context.Context, req dto.LogCountsRequest) (dto.LogCountsResponse, error)
}

// Local hands pushes straight to a Store in the same process.
type Local struct {
	store Store
}

// NewLocal wraps store as a Reporter.
func NewLocal(store Store) *Local {
	return &Local{store: store}
}

// SaveZones implements Reporter.
func (l *Local) SaveZones(ctx context.Context, req dto.SaveZonesRequest) error {
	_, err := l.store.SaveZones(ctx, req)
	return err
}

// LogCounts implements Reporter.
func (l *Local) LogCounts(ctx context.Context, req dto.LogCountsRequest) error {
	_, err := l.store.LogCounts(ctx, req)
	return err
}
