package shopee

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shopee-dash/internal/metrics"
)

const (
	// DefaultStatusURL answers the login status of the cookie owner as JSON.
	DefaultStatusURL = "https://shopee.co.th/api/v2/user/login_status"
	// DefaultPageURL is the creator page embedding the nickname.
	DefaultPageURL = "https://creator.shopee.co.th/insight/live/list"

	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "th-TH,th;q=0.9,en-US;q=0.8,en;q=0.7"
	acceptHTML            = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	acceptJSON            = "application/json, text/plain, */*"
	maxBodyBytes          = 4 << 20
)

var (
	// ErrBlocked marks probe failures where the upstream could not be reached
	// from here at all (transport failure, 403, 451). These trigger the relay.
	ErrBlocked = errors.New("upstream blocked")
	// ErrUpstream marks any other non-2xx answer.
	ErrUpstream = errors.New("upstream error")
)

// Config holds identity probe configuration.
type Config struct {
	StatusURL      string
	PageURL        string
	RelayURL       string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// Client performs cookie-authenticated requests against Shopee hosts.
type Client struct {
	logger         *slog.Logger
	http           *http.Client
	metrics        *metrics.Metrics
	userAgent      string
	acceptLanguage string
}

// NewClient creates a probe client.
func NewClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	lang := strings.TrimSpace(cfg.AcceptLanguage)
	if lang == "" {
		lang = defaultAcceptLanguage
	}
	return &Client{
		logger:         logger.With("component", "shopee"),
		http:           &http.Client{Timeout: timeout},
		metrics:        m,
		userAgent:      ua,
		acceptLanguage: lang,
	}
}

type request struct {
	stage       string
	method      string
	url         string
	cookie      string
	accept      string
	contentType string
	body        []byte
}

// do sends the request and returns the body of a 2xx answer.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	if r.cookie != "" {
		req.Header.Set("Cookie", r.cookie)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	accept := r.accept
	if accept == "" {
		accept = acceptJSON
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", c.acceptLanguage)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(r.stage, "error", start)
		return nil, fmt.Errorf("%w: %s request: %w", ErrBlocked, r.stage, err)
	}
	defer res.Body.Close()
	c.observe(r.stage, fmt.Sprintf("%d", res.StatusCode), start)

	bodyBytes, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= 300 {
		return nil, classifyHTTPError(res.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}

func (c *Client) observe(stage, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProbeLatency.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}

func classifyHTTPError(status int, body string) error {
	snippet := strings.TrimSpace(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch status {
	case http.StatusForbidden, http.StatusUnavailableForLegalReasons:
		return fmt.Errorf("%w: status=%d body=%s", ErrBlocked, status, snippet)
	default:
		return fmt.Errorf("%w: status=%d body=%s", ErrUpstream, status, snippet)
	}
}
