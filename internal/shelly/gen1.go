package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultHTTPTimeout bounds a single REST request when the caller's context
// carries no deadline of its own.
const defaultHTTPTimeout = 10 * time.Second

// Gen1Client talks to a block (gen1) Shelly device over its HTTP REST API.
//
// The client is stateless; every operation is a fresh HTTP request.
// It implements the BlockDevice interface.
type Gen1Client struct {
	host string
	http *http.Client
}

// compile-time interface check
var _ BlockDevice = (*Gen1Client)(nil)

// NewGen1Client creates a REST client for a block device.
//
// Parameters:
//   - host: Device IP address or hostname
//   - timeout: Per-request HTTP timeout (0 uses the default)
//
// Returns:
//   - *Gen1Client: Client ready for use
func NewGen1Client(host string, timeout time.Duration) *Gen1Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Gen1Client{
		host: host,
		http: &http.Client{Timeout: timeout},
	}
}

// Host returns the device's IP address or hostname.
func (c *Gen1Client) Host() string {
	return c.host
}

// Fetch retrieves the full settings+status snapshot.
//
// Two REST endpoints are hit in sequence: /settings, then /status.
// The caller's context bounds the combined operation.
func (c *Gen1Client) Fetch(ctx context.Context) (*BlockSnapshot, error) {
	var settings BlockSettings
	if err := c.getJSON(ctx, "/settings", &settings); err != nil {
		return nil, fmt.Errorf("fetching settings: %w", err)
	}

	var status BlockStatus
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return nil, fmt.Errorf("fetching status: %w", err)
	}

	return &BlockSnapshot{
		Settings: settings,
		Status:   status,
	}, nil
}

// FetchStatus retrieves only the /status payload.
func (c *Gen1Client) FetchStatus(ctx context.Context) (*BlockStatus, error) {
	var status BlockStatus
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return nil, fmt.Errorf("fetching status: %w", err)
	}
	return &status, nil
}

// TriggerOTAUpdate asks the device to start a firmware update via /ota.
//
// The device begins downloading immediately; progress is visible in
// subsequent status fetches (update.status == "updating").
func (c *Gen1Client) TriggerOTAUpdate(ctx context.Context, beta bool) error {
	query := "update=true"
	if beta {
		query = "beta=true"
	}

	var result UpdateInfo
	if err := c.getJSON(ctx, "/ota?"+query, &result); err != nil {
		return fmt.Errorf("triggering ota update: %w", err)
	}
	return nil
}

// getJSON performs a GET request against the device and decodes the JSON
// response body into v.
func (c *Gen1Client) getJSON(ctx context.Context, path string, v any) error {
	u := url.URL{Scheme: "http", Host: c.host, Path: path}
	// Path may carry a query string (e.g. "/ota?update=true").
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u.Path = path[:i]
		u.RawQuery = path[i+1:]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort close on read path

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrHTTPStatus, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
