// Package fdsn talks to FDSN web services: dataselect for waveform
// windows, station for channel inventories, and event for earthquake
// catalogs. Responses come back as domain values; failures are
// classified so callers can tell a dead network from an empty archive.
package fdsn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// queryTimeLayout is the timestamp format FDSN services accept.
const queryTimeLayout = "2006-01-02T15:04:05.000000"

// Client is an FDSN web service client with retries and exponential
// backoff. Only transport and timeout failures are retried.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	creds       *CredentialResolver
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithCredentials sets the credential resolver for restricted streams.
func WithCredentials(r *CredentialResolver) ClientOption {
	return func(c *Client) {
		c.creds = r
	}
}

// NewClient creates an FDSN client for the datacenter at endpoint,
// e.g. "https://service.iris.edu".
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a GET with retries and exponential backoff, returning
// the response body. Only retryable error kinds are attempted again.
func (c *Client) get(ctx context.Context, rawURL string, cred *domain.Credential) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if cred != nil {
			req.SetBasicAuth(cred.Username, cred.Password)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &FetchError{Kind: KindTransport, Message: "http request", Err: err}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &FetchError{Kind: KindTransport, Message: "read response", Err: err}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			ferr := &FetchError{
				Kind:    classifyStatus(resp.StatusCode),
				Status:  resp.StatusCode,
				Message: strings.TrimSpace(firstLine(string(body))),
			}
			if !ferr.Retryable() {
				return nil, ferr
			}
			lastErr = ferr
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// FetchWaveform requests the samples for one stream over one window.
// Restricted streams go through queryauth with HTTP basic auth when a
// credential resolves for the key. The result holds one chunk per
// contiguous block the service returned; a datacenter-side outage in
// the middle of the window yields several chunks.
func (c *Client) FetchWaveform(ctx context.Context, key domain.StreamKey, span domain.TimeSpan) ([]*domain.SeriesChunk, error) {
	if err := key.Validate(); err != nil {
		return nil, &FetchError{Kind: KindMalformed, Message: "invalid stream key", Err: err}
	}
	if !span.Valid() {
		return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("invalid window %s", span)}
	}

	loc := key.Location
	if loc == "" {
		loc = "--"
	}

	q := url.Values{}
	q.Set("network", key.Network)
	q.Set("station", key.Station)
	q.Set("location", loc)
	q.Set("channel", key.Channel)
	q.Set("starttime", span.Start.UTC().Format(queryTimeLayout))
	q.Set("endtime", span.End.UTC().Format(queryTimeLayout))
	q.Set("format", "slist")

	path := "/fdsnws/dataselect/1/query"
	var cred *domain.Credential
	if c.creds != nil {
		if cr, ok := c.creds.Resolve(key); ok {
			path = "/fdsnws/dataselect/1/queryauth"
			cred = &cr
		}
	}

	started := time.Now()
	body, err := c.get(ctx, c.endpoint+path+"?"+q.Encode(), cred)
	observability.RecordFetchLatency(c.endpoint, time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}

	chunks, err := parseSLIST(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, &FetchError{Kind: KindNoData, Message: fmt.Sprintf("empty response for %s %s", key, span)}
	}
	return chunks, nil
}

// StationQuery selects stations for an inventory request. Either the
// bounding box or the radius filter may be set, not both.
type StationQuery struct {
	Networks []string
	Stations []string

	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64

	Latitude  float64
	Longitude float64
	MaxRadius float64 // degrees; 0 disables the radius filter

	Window domain.TimeSpan
}

// FetchStationInventory requests channel-level inventory in FDSN text
// format and returns one entry per channel epoch.
func (c *Client) FetchStationInventory(ctx context.Context, query StationQuery) ([]domain.ChannelEntry, error) {
	q := url.Values{}
	q.Set("level", "channel")
	q.Set("format", "text")
	if len(query.Networks) > 0 {
		q.Set("network", strings.Join(query.Networks, ","))
	}
	if len(query.Stations) > 0 {
		q.Set("station", strings.Join(query.Stations, ","))
	}
	if query.MaxRadius > 0 {
		q.Set("latitude", fmt.Sprintf("%g", query.Latitude))
		q.Set("longitude", fmt.Sprintf("%g", query.Longitude))
		q.Set("maxradius", fmt.Sprintf("%g", query.MaxRadius))
	} else if query.MinLatitude != 0 || query.MaxLatitude != 0 || query.MinLongitude != 0 || query.MaxLongitude != 0 {
		q.Set("minlatitude", fmt.Sprintf("%g", query.MinLatitude))
		q.Set("maxlatitude", fmt.Sprintf("%g", query.MaxLatitude))
		q.Set("minlongitude", fmt.Sprintf("%g", query.MinLongitude))
		q.Set("maxlongitude", fmt.Sprintf("%g", query.MaxLongitude))
	}
	if query.Window.Valid() {
		q.Set("starttime", query.Window.Start.UTC().Format(queryTimeLayout))
		q.Set("endtime", query.Window.End.UTC().Format(queryTimeLayout))
	}

	body, err := c.get(ctx, c.endpoint+"/fdsnws/station/1/query?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return parseStationText(string(body))
}

// EventQuery selects events from a catalog service.
type EventQuery struct {
	Window       domain.TimeSpan
	MinMagnitude float64

	Latitude  float64
	Longitude float64
	MinRadius float64 // degrees
	MaxRadius float64 // degrees; 0 disables the radius filter
}

// FetchEventCatalog requests events in FDSN text format.
func (c *Client) FetchEventCatalog(ctx context.Context, query EventQuery) ([]domain.EventAnchor, error) {
	q := url.Values{}
	q.Set("format", "text")
	if query.Window.Valid() {
		q.Set("starttime", query.Window.Start.UTC().Format(queryTimeLayout))
		q.Set("endtime", query.Window.End.UTC().Format(queryTimeLayout))
	}
	if query.MinMagnitude > 0 {
		q.Set("minmagnitude", fmt.Sprintf("%g", query.MinMagnitude))
	}
	if query.MaxRadius > 0 {
		q.Set("latitude", fmt.Sprintf("%g", query.Latitude))
		q.Set("longitude", fmt.Sprintf("%g", query.Longitude))
		if query.MinRadius > 0 {
			q.Set("minradius", fmt.Sprintf("%g", query.MinRadius))
		}
		q.Set("maxradius", fmt.Sprintf("%g", query.MaxRadius))
	}

	body, err := c.get(ctx, c.endpoint+"/fdsnws/event/1/query?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return parseEventText(string(body))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
