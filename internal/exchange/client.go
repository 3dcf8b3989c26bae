// Package exchange is a signed client for the Binance spot REST API (v3).
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/gridbot/pkg/cache"
	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
)

// Default endpoints.
const (
	TestnetBaseURL = "https://testnet.binance.vision"
	LiveBaseURL    = "https://api.binance.com"
)

const (
	defaultRecvWindow     = 5 * time.Second
	defaultRequestTimeout = 20 * time.Second
	defaultRateLimitWait  = 1 * time.Second
	defaultIPBanWait      = 2 * time.Minute
)

// Client talks to one symbol on one Binance environment.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	symbol     string
	baseAsset  string
	quoteAsset string
	recvWindow time.Duration

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffMult    float64

	cache     cache.Cache
	filterTTL time.Duration
	priceTTL  time.Duration

	httpClient *http.Client
	logger     *zap.Logger

	mu            sync.Mutex
	timeOffset    int64 // server time - local time, milliseconds
	lastTimestamp int64
	backoffUntil  time.Time
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	RecvWindow time.Duration

	RequestTimeout    time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Cache is optional; without it filters and prices are fetched on every call.
	Cache     cache.Cache
	FilterTTL time.Duration
	PriceTTL  time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New creates a new exchange client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}

	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = defaultRecvWindow
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	mult := cfg.BackoffMultiplier
	if mult < 1 {
		mult = 2.0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		secretKey:      cfg.SecretKey,
		symbol:         cfg.Symbol,
		baseAsset:      cfg.BaseAsset,
		quoteAsset:     cfg.QuoteAsset,
		recvWindow:     recvWindow,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		backoffMult:    mult,
		cache:          cfg.Cache,
		filterTTL:      cfg.FilterTTL,
		priceTTL:       cfg.PriceTTL,
		httpClient:     httpClient,
		logger:         cfg.Logger,
	}, nil
}

// Symbol returns the traded symbol.
func (c *Client) Symbol() string {
	return c.symbol
}

type request struct {
	op     string
	method string
	path   string
	params url.Values
	signed bool
}

// retryable reports whether the request may be re-sent after a transient
// failure. Order placement is never re-sent.
func (r *request) retryable() bool {
	return r.method == http.MethodGet || r.method == http.MethodDelete
}

// mutating reports whether the request changes exchange state.
func (r *request) mutating() bool {
	return r.method != http.MethodGet
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) do(ctx context.Context, req *request, out interface{}) error {
	if wait := c.rateLimitRemaining(); wait > 0 {
		RateLimitedTotal.WithLabelValues(req.op).Inc()
		return &types.RateLimitError{Op: req.op, Status: http.StatusTooManyRequests, RetryAfter: wait}
	}

	if req.mutating() {
		// Once sent, a mutating call must run to completion regardless of
		// what happens to the caller.
		ctx = context.WithoutCancel(ctx)
	}

	reauthed := false
	attempt := 0
	for {
		body, err := c.send(ctx, req)
		if err == nil {
			if out == nil {
				return nil
			}
			err = json.Unmarshal(body, out)
			if err != nil {
				return fmt.Errorf("%s: decode response: %w", req.op, err)
			}
			return nil
		}

		var authErr *types.AuthenticationError
		if errors.As(err, &authErr) && !reauthed {
			reauthed = true
			ReauthTotal.Inc()
			c.logger.Warn("exchange-reauthenticating",
				zap.String("op", req.op),
				zap.Int("code", authErr.Code),
				zap.String("message", authErr.Message))

			syncErr := c.SyncTime(ctx)
			if syncErr != nil {
				c.logger.Warn("exchange-time-sync-failed", zap.Error(syncErr))
			}
			continue
		}

		var transient *types.TransientError
		if errors.As(err, &transient) && req.retryable() && attempt < c.maxRetries {
			delay := c.backoffDelay(attempt)
			attempt++
			RetriesTotal.WithLabelValues(req.op).Inc()
			c.logger.Debug("exchange-request-retrying",
				zap.String("op", req.op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))

			sleepErr := sleepContext(ctx, delay)
			if sleepErr != nil {
				return err
			}
			continue
		}

		return err
	}
}

// send performs one HTTP round trip and maps failures onto the error taxonomy.
func (c *Client) send(ctx context.Context, req *request) ([]byte, error) {
	params := url.Values{}
	for k, v := range req.params {
		params[k] = v
	}

	query := ""
	if req.signed {
		params.Set("timestamp", strconv.FormatInt(c.nextTimestamp(), 10))
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		query = params.Encode()
		query += "&signature=" + sign(c.secretKey, query)
	} else {
		query = params.Encode()
	}

	endpoint := c.baseURL + req.path
	if query != "" {
		endpoint += "?" + query
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", req.op, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	RequestDuration.WithLabelValues(req.op).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(req.op, "error").Inc()
		return nil, &types.TransientError{Op: req.op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		RequestsTotal.WithLabelValues(req.op, "error").Inc()
		return nil, &types.TransientError{Op: req.op, Err: fmt.Errorf("read response: %w", err)}
	}

	RequestsTotal.WithLabelValues(req.op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	return nil, c.classify(req.op, resp, body)
}

func (c *Client) classify(op string, resp *http.Response, body []byte) error {
	status := resp.StatusCode

	if status == http.StatusTooManyRequests || status == http.StatusTeapot {
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		if wait <= 0 {
			wait = defaultRateLimitWait
			if status == http.StatusTeapot {
				wait = defaultIPBanWait
			}
		}
		c.enterBackoff(wait)
		RateLimitedTotal.WithLabelValues(op).Inc()
		c.logger.Warn("exchange-rate-limited",
			zap.String("op", op),
			zap.Int("status", status),
			zap.Duration("retry-after", wait))
		return &types.RateLimitError{Op: op, Status: status, RetryAfter: wait}
	}

	if status >= 500 {
		return &types.TransientError{Op: op, Err: fmt.Errorf("status %d: %s", status, truncate(body))}
	}

	var apiErr apiError
	decodeErr := json.Unmarshal(body, &apiErr)
	if decodeErr != nil {
		apiErr = apiError{Msg: truncate(body)}
	}

	if status == http.StatusUnauthorized ||
		apiErr.Code == types.CodeTimestampOutsideRecvWindow ||
		apiErr.Code == types.CodeInvalidSignature {
		return &types.AuthenticationError{Op: op, Status: status, Code: apiErr.Code, Message: apiErr.Msg}
	}

	return &types.RejectionError{Op: op, Status: status, Code: apiErr.Code, Message: apiErr.Msg}
}

// nextTimestamp returns a server-corrected millisecond timestamp that is
// strictly greater than any previously issued one.
func (c *Client) nextTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := time.Now().UnixMilli() + c.timeOffset
	if ts <= c.lastTimestamp {
		ts = c.lastTimestamp + 1
	}
	c.lastTimestamp = ts
	return ts
}

// SyncTime measures the offset between the exchange clock and ours.
func (c *Client) SyncTime(ctx context.Context) error {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}

	sent := time.Now()
	_, err := c.sendAndDecode(ctx, &request{op: "server-time", method: http.MethodGet, path: "/api/v3/time"}, &resp)
	if err != nil {
		return err
	}
	received := time.Now()

	midpoint := sent.UnixMilli() + received.Sub(sent).Milliseconds()/2
	offset := resp.ServerTime - midpoint

	c.mu.Lock()
	c.timeOffset = offset
	c.mu.Unlock()

	c.logger.Info("exchange-time-synced", zap.Int64("offset-ms", offset))
	return nil
}

// sendAndDecode is a single attempt without retries or re-authentication.
func (c *Client) sendAndDecode(ctx context.Context, req *request, out interface{}) ([]byte, error) {
	body, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(body, out)
	if err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", req.op, err)
	}
	return body, nil
}

func (c *Client) rateLimitRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Until(c.backoffUntil)
}

func (c *Client) enterBackoff(wait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	until := time.Now().Add(wait)
	if until.After(c.backoffUntil) {
		c.backoffUntil = until
	}
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := float64(c.initialBackoff) * math.Pow(c.backoffMult, float64(attempt))
	if c.maxBackoff > 0 && delay > float64(c.maxBackoff) {
		return c.maxBackoff
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
