package shopee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoName means a probe answered but carried no usable name.
var ErrNoName = errors.New("name not found")

// Step is one stage of the name lookup chain.
type Step interface {
	Stage() string
	Lookup(ctx context.Context, p *Probe) (string, error)
}

// Probe carries the cookie through one resolution and memoizes page fetches
// so stages reading the same page share a single request.
type Probe struct {
	Cookie string
	pages  map[string]pageResult
}

type pageResult struct {
	body []byte
	err  error
}

// NewProbe starts a lookup for cookie.
func NewProbe(cookie string) *Probe {
	return &Probe{Cookie: cookie, pages: map[string]pageResult{}}
}

func (p *Probe) page(ctx context.Context, c *Client, stage, url string) ([]byte, error) {
	if res, ok := p.pages[url]; ok {
		return res.body, res.err
	}
	body, err := c.do(ctx, request{
		stage:  stage,
		method: http.MethodGet,
		url:    url,
		cookie: p.Cookie,
		accept: acceptHTML,
	})
	p.pages[url] = pageResult{body: body, err: err}
	return body, err
}

// StatusStep asks the login status endpoint who owns the cookie.
type StatusStep struct {
	client *Client
	url    string
}

// NewStatusStep builds the status probe.
func NewStatusStep(client *Client, url string) *StatusStep {
	return &StatusStep{client: client, url: url}
}

func (s *StatusStep) Stage() string { return "status" }

func (s *StatusStep) Lookup(ctx context.Context, p *Probe) (string, error) {
	body, err := s.client.do(ctx, request{
		stage:  s.Stage(),
		method: http.MethodGet,
		url:    s.url,
		cookie: p.Cookie,
	})
	if err != nil {
		return "", err
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decode status: %w", ErrNoName, err)
	}
	if name := firstString(payload, []string{"data", "username"}, []string{"data", "user", "username"}, []string{"username"}); name != "" {
		return name, nil
	}
	return "", ErrNoName
}

// PageStep fetches a page and applies extractors in order.
type PageStep struct {
	client     *Client
	stage      string
	url        string
	extractors []NameExtractor
}

// NewPageStep builds a page scrape stage.
func NewPageStep(client *Client, stage, url string, extractors ...NameExtractor) *PageStep {
	return &PageStep{client: client, stage: stage, url: url, extractors: extractors}
}

func (s *PageStep) Stage() string { return s.stage }

func (s *PageStep) Lookup(ctx context.Context, p *Probe) (string, error) {
	body, err := p.page(ctx, s.client, s.stage, s.url)
	if err != nil {
		return "", err
	}
	for _, ex := range s.extractors {
		if name, ok := ex.Extract(body); ok {
			return name, nil
		}
	}
	return "", ErrNoName
}

// RelayStep forwards the cookie to a relay that runs the direct stages from
// another network location.
type RelayStep struct {
	client *Client
	url    string
}

// NewRelayStep builds the relay stage.
func NewRelayStep(client *Client, url string) *RelayStep {
	return &RelayStep{client: client, url: url}
}

func (s *RelayStep) Stage() string { return "relay" }

func (s *RelayStep) Lookup(ctx context.Context, p *Probe) (string, error) {
	payload, err := json.Marshal(relayRequest{Cookie: p.Cookie})
	if err != nil {
		return "", fmt.Errorf("marshal relay request: %w", err)
	}
	body, err := s.client.do(ctx, request{
		stage:       s.Stage(),
		method:      http.MethodPost,
		url:         s.url,
		contentType: "application/json",
		body:        payload,
	})
	if err != nil {
		return "", err
	}

	var res relayResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("%w: decode relay: %w", ErrNoName, err)
	}
	name := strings.TrimSpace(res.Username)
	if !res.Success || name == "" {
		if res.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrNoName, res.Message)
		}
		return "", ErrNoName
	}
	return name, nil
}

type relayRequest struct {
	Cookie string `json:"cookie"`
}

type relayResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

func firstString(payload map[string]any, paths ...[]string) string {
	for _, path := range paths {
		var cur any = payload
		for _, key := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = m[key]
		}
		if s, ok := cur.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
