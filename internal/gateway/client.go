package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// DefaultRequestTimeout bounds a single HTTP exchange when the config leaves
// the timeout unset. Per-call contexts impose the tighter attempt bounds.
const DefaultRequestTimeout = 30 * time.Second

// defaultPort is the gateway's local API port.
const defaultPort = 80

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds the gateway connection settings.
type Config struct {
	// Host is the gateway's address. Required.
	Host string

	// Port of the local API. Zero selects the default.
	Port int

	// Token authenticates every request as a bearer token. Required.
	Token string

	// RequestTimeout bounds a single HTTP exchange. Zero selects
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Client talks to one iT600 gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     Logger

	polls    atomic.Uint64
	reads    atomic.Uint64
	commands atomic.Uint64
	errCount atomic.Uint64
	lastPoll atomic.Int64 // unix nanos of the last successful poll
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the URL derived from host and port. Tests point this
// at an httptest server.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("gateway: host is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("gateway: token is required")
	}

	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", cfg.Host, port),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// PollStatus instructs the gateway to refresh its own device table. The
// gateway polls its radio network lazily; calling this before reading
// devices is what makes a read current.
func (c *Client) PollStatus(ctx context.Context) error {
	c.polls.Add(1)
	if err := c.do(ctx, http.MethodPost, "/refresh", nil, nil); err != nil {
		c.errCount.Add(1)
		return fmt.Errorf("gateway: poll status: %w", err)
	}
	c.lastPoll.Store(time.Now().UnixNano())
	return nil
}

// Devices reads the device states for one category. Each decoded entry is
// validated at the boundary; malformed entries are skipped with a warn log.
// Availability flags pass through untouched.
func (c *Client) Devices(ctx context.Context, category device.Category) ([]device.State, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("gateway: %w: %q", device.ErrInvalidCategory, category)
	}

	c.reads.Add(1)
	var payload devicesResponse
	path := "/devices?category=" + url.QueryEscape(string(category))
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		c.errCount.Add(1)
		return nil, fmt.Errorf("gateway: read devices: %w", err)
	}

	states := make([]device.State, 0, len(payload.Devices))
	for i := range payload.Devices {
		s := payload.Devices[i]
		if err := s.Validate(); err != nil {
			c.logWarn("skipping malformed device entry",
				"device_id", s.Info.ID,
				"category", category,
				"error", err,
			)
			continue
		}
		if s.Category != category {
			c.logWarn("skipping device from wrong category",
				"device_id", s.Info.ID,
				"got", s.Category,
				"want", category,
			)
			continue
		}
		states = append(states, s)
	}

	c.logDebug("devices read", "category", category, "total", len(payload.Devices), "valid", len(states))
	return states, nil
}

// SetDeviceProperty writes one property on one device.
func (c *Client) SetDeviceProperty(ctx context.Context, deviceID, property string, value any) error {
	if deviceID == "" {
		return fmt.Errorf("gateway: device id is required")
	}
	if property == "" {
		return fmt.Errorf("gateway: property is required")
	}

	c.commands.Add(1)
	path := "/devices/" + url.PathEscape(deviceID) + "/properties/" + url.PathEscape(property)
	if err := c.do(ctx, http.MethodPut, path, propertyUpdate{Value: value}, nil); err != nil {
		c.errCount.Add(1)
		return fmt.Errorf("gateway: set %s on %s: %w", property, deviceID, err)
	}
	return nil
}

// SetTemperature sets a climate device's target temperature.
func (c *Client) SetTemperature(ctx context.Context, deviceID string, temperature float64) error {
	return c.SetDeviceProperty(ctx, deviceID, PropertyTargetTemperature, temperature)
}

// SetHVACMode sets a climate device's HVAC mode.
func (c *Client) SetHVACMode(ctx context.Context, deviceID string, mode device.HVACMode) error {
	if !mode.Valid() {
		return fmt.Errorf("gateway: invalid hvac mode %q", mode)
	}
	return c.SetDeviceProperty(ctx, deviceID, PropertyHVACMode, string(mode))
}

// SetFanMode sets a climate device's fan mode.
func (c *Client) SetFanMode(ctx context.Context, deviceID, mode string) error {
	if mode == "" {
		return fmt.Errorf("gateway: fan mode is required")
	}
	return c.SetDeviceProperty(ctx, deviceID, PropertyFanMode, mode)
}

// SetPresetMode sets a climate device's preset.
func (c *Client) SetPresetMode(ctx context.Context, deviceID, preset string) error {
	if preset == "" {
		return fmt.Errorf("gateway: preset mode is required")
	}
	return c.SetDeviceProperty(ctx, deviceID, PropertyPresetMode, preset)
}

// HealthCheck probes the gateway's status endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/status", nil, nil); err != nil {
		return fmt.Errorf("gateway: health check: %w", err)
	}
	return nil
}

// Stats is a point-in-time summary of the client's request counters.
type Stats struct {
	Polls    uint64
	Reads    uint64
	Commands uint64
	Errors   uint64
	LastPoll time.Time
}

// Stats returns the client's request statistics.
func (c *Client) Stats() Stats {
	var last time.Time
	if ns := c.lastPoll.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		Polls:    c.polls.Load(),
		Reads:    c.reads.Load(),
		Commands: c.commands.Load(),
		Errors:   c.errCount.Load(),
		LastPoll: last,
	}
}

// do runs one HTTP exchange: marshal body, send with auth headers, map the
// status, decode out. Context errors pass through unwrapped by sentinels so
// callers can classify timeouts.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrBadPayload, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("request: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrBadPayload, err)
		}
	}
	return nil
}

// errorFromResponse maps a non-2xx reply onto the package sentinels,
// carrying the gateway's message when it sends one.
func (c *Client) errorFromResponse(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	//nolint:errcheck // body message is best-effort detail on an error path
	json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)

	detail := payload.Message
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, detail)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrBadPayload, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, detail)
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}
