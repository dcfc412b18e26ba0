package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/couchjs/internal/config"
	"github.com/GriffinCanCode/couchjs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/couchjs/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/couchjs/internal/textenc"
)

// Options configures the HTTP client.
type Options struct {
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	// RateLimit is requests per second across all connections; zero is unlimited.
	RateLimit float64
	UserAgent string
	// BreakerThreshold is the number of consecutive transport failures that
	// opens the circuit; zero disables it.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// OptionsFromConfig builds client options from the HTTP config section.
func OptionsFromConfig(cfg config.HTTPConfig) Options {
	return Options{
		Timeout:          cfg.Timeout(),
		Retries:          cfg.Retries,
		RetryWait:        cfg.RetryWait(),
		RateLimit:        cfg.RateLimit,
		UserAgent:        cfg.UserAgent,
		BreakerThreshold: 5,
		BreakerCooldown:  10 * time.Second,
	}
}

// Client is a Transport backed by resty. Each Conn gets its own connection
// pool and cookie jar; the rate limiter and circuit breaker are shared.
type Client struct {
	opts    Options
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewClient creates an HTTP transport.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	breaker := resilience.New("couchhttp", resilience.Settings{
		Threshold: opts.BreakerThreshold,
		Cooldown:  opts.BreakerCooldown,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("transport circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		opts:    opts,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Breaker returns the circuit breaker shared by all connections.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Open creates a connection with its own pool and cookie jar.
func (c *Client) Open() (Conn, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	pool, ok := retryClient.HTTPClient.Transport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("unexpected transport type %T", retryClient.HTTPClient.Transport)
	}

	restyClient := resty.New().
		SetTransport(pool).
		SetCookieJar(jar).
		SetAllowGetMethodPayload(true).
		SetRetryCount(c.opts.Retries).
		SetRetryWaitTime(c.opts.RetryWait)
	if c.opts.Timeout > 0 {
		restyClient.SetTimeout(c.opts.Timeout)
	}
	if c.opts.UserAgent != "" {
		restyClient.SetHeader("User-Agent", c.opts.UserAgent)
	}

	return &conn{client: c, resty: restyClient, pool: pool}, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

type conn struct {
	client *Client
	resty  *resty.Client
	pool   *http.Transport

	mu     sync.Mutex
	closed bool
}

func (cn *conn) Send(ctx context.Context, req *Request) (*Response, error) {
	cn.mu.Lock()
	closed := cn.closed
	cn.mu.Unlock()
	if closed {
		return nil, ErrConnClosed
	}

	c := cn.client
	start := time.Now()
	var raw *resty.Response

	err := c.breaker.Do(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}

		r := cn.resty.R().SetContext(ctx)
		if len(req.Header) > 0 {
			r.SetHeaderMultiValues(req.Header)
		}
		if req.Body != "" {
			r.SetBody(req.Body)
		}

		var err error
		raw, err = r.Execute(req.Method, req.URL)
		return err
	})

	status := 0
	if err == nil {
		status = raw.StatusCode()
	}
	if c.metrics != nil {
		c.metrics.RecordHTTPRequest(req.Method, status, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}

	header := raw.Header().Clone()
	body, err := decodeBody(raw.Body(), header)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}

	c.logger.Debug("http request complete",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)))

	return &Response{Status: status, Header: header, Body: body}, nil
}

func (cn *conn) Close() error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return ErrConnClosed
	}
	cn.closed = true
	cn.pool.CloseIdleConnections()
	return nil
}

// decodeBody removes a content encoding still present on the body, then
// converts it to UTF-8. resty inflates gzip itself but keeps the header, so
// gzip is only decoded when the magic bytes are present.
func decodeBody(data []byte, header http.Header) (string, error) {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Encoding"))) {
	case "gzip":
		if !bytes.HasPrefix(data, gzipMagic) {
			header.Del("Content-Encoding")
			break
		}
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to decode gzip body: %w", err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return "", fmt.Errorf("failed to decode gzip body: %w", err)
		}
		header.Del("Content-Encoding")
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to decode zstd body: %w", err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return "", fmt.Errorf("failed to decode zstd body: %w", err)
		}
		header.Del("Content-Encoding")
	}

	label := textenc.CharsetFromContentType(header.Get("Content-Type"))
	body, err := textenc.ToUTF8(data, label)
	if err != nil {
		// an unknown label is not fatal; the bytes are passed through
		return string(data), nil
	}
	return body, nil
}
