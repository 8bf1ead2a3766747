package shopee

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"shopee-dash/internal/metrics"
	"shopee-dash/internal/repo"
)

// ErrMissingIdentityKey is the only failure Resolve reports.
var ErrMissingIdentityKey = errors.New("identity key is empty")

// Kind classifies a display name.
type Kind int

const (
	KindPending Kind = iota
	KindConfirmed
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindConfirmed:
		return "confirmed"
	case KindFallback:
		return "fallback"
	default:
		return "pending"
	}
}

// MarshalText renders the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ResolvedName is the outcome of a lookup.
type ResolvedName struct {
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
}

// Classify reconstructs the kind of a stored account's username.
func Classify(a repo.Account) ResolvedName {
	switch {
	case a.IsPending():
		return ResolvedName{Kind: KindPending, Name: a.Username}
	case a.IsFallback():
		return ResolvedName{Kind: KindFallback, Name: a.Username}
	default:
		return ResolvedName{Kind: KindConfirmed, Name: a.Username}
	}
}

// Attempt is the result of the direct stages alone.
type Attempt struct {
	Name   string
	Source string
	// Blocked is set when any stage was blocked; Reached when any stage got an answer.
	Blocked bool
	Reached bool
}

// Resolver turns a cookie into a display name through an ordered chain of
// stages. The relay stage runs only after a direct stage was blocked.
type Resolver struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	direct  []Step
	relay   Step
}

// New builds the default chain: status endpoint, nickname element, embedded
// page state, and the relay when cfg.RelayURL is set.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	client := NewClient(cfg, logger, m)
	statusURL := strings.TrimSpace(cfg.StatusURL)
	if statusURL == "" {
		statusURL = DefaultStatusURL
	}
	pageURL := strings.TrimSpace(cfg.PageURL)
	if pageURL == "" {
		pageURL = DefaultPageURL
	}

	direct := []Step{
		NewStatusStep(client, statusURL),
		NewPageStep(client, "page_element", pageURL, PrimaryExtractors()...),
		NewPageStep(client, "page_state", pageURL, SecondaryExtractors()...),
	}
	var relay Step
	if url := strings.TrimSpace(cfg.RelayURL); url != "" {
		relay = NewRelayStep(client, url)
	}
	return NewChain(direct, relay, logger, m)
}

// NewChain builds a resolver from explicit stages. relay may be nil.
func NewChain(direct []Step, relay Step, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		logger:  logger.With("component", "resolver"),
		metrics: m,
		direct:  direct,
		relay:   relay,
	}
}

// Resolve never fails for a non-empty key: when every stage misses it
// returns the fallback name for key.
func (r *Resolver) Resolve(ctx context.Context, cookie, key string) (ResolvedName, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return ResolvedName{}, ErrMissingIdentityKey
	}

	probe := NewProbe(cookie)
	attempt := r.run(ctx, probe, r.direct)
	if attempt.Name != "" {
		return r.finish(ResolvedName{Kind: KindConfirmed, Name: attempt.Name, Source: attempt.Source}, key), nil
	}

	if r.relay != nil && attempt.Blocked {
		relayed := r.run(ctx, probe, []Step{r.relay})
		if relayed.Name != "" {
			return r.finish(ResolvedName{Kind: KindConfirmed, Name: relayed.Name, Source: relayed.Source}, key), nil
		}
	}

	return r.finish(ResolvedName{Kind: KindFallback, Name: repo.FallbackUsername(key)}, key), nil
}

// ResolveDirect runs only the direct stages. The relay endpoint serves it.
func (r *Resolver) ResolveDirect(ctx context.Context, cookie string) Attempt {
	return r.run(ctx, NewProbe(cookie), r.direct)
}

func (r *Resolver) run(ctx context.Context, probe *Probe, steps []Step) Attempt {
	var out Attempt
	for _, step := range steps {
		name, err := step.Lookup(ctx, probe)
		switch {
		case err == nil && name != "":
			r.count(step.Stage(), "found")
			out.Name = name
			out.Source = step.Stage()
			return out
		case errors.Is(err, ErrBlocked):
			r.count(step.Stage(), "blocked")
			out.Blocked = true
			r.logger.Debug("probe blocked", "stage", step.Stage(), "error", err)
		case err == nil, errors.Is(err, ErrNoName):
			out.Reached = true
			r.count(step.Stage(), "miss")
			r.logger.Debug("probe found no name", "stage", step.Stage(), "error", err)
		default:
			out.Reached = true
			r.count(step.Stage(), "error")
			r.logger.Debug("probe failed", "stage", step.Stage(), "error", err)
		}
	}
	return out
}

func (r *Resolver) finish(res ResolvedName, key string) ResolvedName {
	if r.metrics != nil {
		r.metrics.Resolutions.WithLabelValues(res.Kind.String()).Inc()
	}
	r.logger.Info("username resolved", "key", key, "kind", res.Kind.String(), "source", res.Source)
	return res
}

func (r *Resolver) count(stage, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ProbeRequests.WithLabelValues(stage, outcome).Inc()
}
