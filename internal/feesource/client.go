package feesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "feebot/pkg/logx"
)

// DefaultURL is mempool.space's recommended-fees endpoint.
const DefaultURL = "https://mempool.space/api/v1/fees/recommended"

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

var (
	ErrBadStatus = errors.New("fee source: unexpected http status")
	ErrMalformed = errors.New("fee source: malformed response")
)

// Snapshot is one fee estimate in sat/vByte. Only FastestFee drives classification.
type Snapshot struct {
	FastestFee  float64
	HalfHourFee float64
	HourFee     float64
	EconomyFee  float64
	MinimumFee  float64
	FetchedAt   time.Time
}

// Fetcher is the contract consumers depend on.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// Client fetches fee estimates over HTTP.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
	log        logx.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = strings.TrimSpace(ua) }
}

// New creates a client for url; an empty url means DefaultURL.
func New(url string, opts ...Option) *Client {
	if strings.TrimSpace(url) == "" {
		url = DefaultURL
	}
	c := &Client{
		url:        strings.TrimSpace(url),
		userAgent:  "feebot/1",
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        logx.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

// wire format; pointers detect missing fields
type recommendedFees struct {
	FastestFee  *float64 `json:"fastestFee"`
	HalfHourFee *float64 `json:"halfHourFee"`
	HourFee     *float64 `json:"hourFee"`
	EconomyFee  *float64 `json:"economyFee"`
	MinimumFee  *float64 `json:"minimumFee"`
}

// Fetch performs one GET and returns the current snapshot. Failures are logged and
// returned; they are never fatal.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	start := c.now()
	snap, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn("fee fetch failed", logx.String("url", c.url), logx.Duration("took", c.now().Sub(start)), logx.Err(err))
		return Snapshot{}, err
	}
	c.log.Debug("fee fetched", logx.Float64("fastest", snap.FastestFee), logx.Duration("took", c.now().Sub(start)))
	return snap, nil
}

func (c *Client) fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Snapshot{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var doc recommendedFees
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&doc); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.FastestFee == nil {
		return Snapshot{}, fmt.Errorf("%w: missing fastestFee", ErrMalformed)
	}

	return Snapshot{
		FastestFee:  *doc.FastestFee,
		HalfHourFee: deref(doc.HalfHourFee),
		HourFee:     deref(doc.HourFee),
		EconomyFee:  deref(doc.EconomyFee),
		MinimumFee:  deref(doc.MinimumFee),
		FetchedAt:   c.now(),
	}, nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
