package shopee

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"shopee-dash/internal/metrics"
)

const maxRelayBody = 64 << 10

// RelayHandler answers identity lookups for resolvers that cannot reach
// Shopee themselves. It runs the direct stages only.
type RelayHandler struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	resolver *Resolver
}

// NewRelayHandler creates the relay endpoint.
func NewRelayHandler(resolver *Resolver, logger *slog.Logger, m *metrics.Metrics) *RelayHandler {
	return &RelayHandler{
		logger:   logger.With("component", "shopee_relay"),
		metrics:  m,
		resolver: resolver,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeRelayJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRelayBody))
	defer r.Body.Close()
	if err != nil {
		h.countError()
		writeRelayJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	var req relayRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.countError()
			writeRelayJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	if strings.TrimSpace(req.Cookie) == "" {
		writeRelayJSON(w, http.StatusBadRequest, map[string]string{"error": "cookie is required"})
		return
	}

	attempt := h.resolver.ResolveDirect(r.Context(), req.Cookie)
	switch {
	case attempt.Name != "":
		h.logger.Info("relay resolved name", "source", attempt.Source)
		writeRelayJSON(w, http.StatusOK, relayResponse{Success: true, Username: attempt.Name})
	case attempt.Blocked && !attempt.Reached:
		h.countError()
		h.logger.Warn("relay could not reach shopee")
		writeRelayJSON(w, http.StatusBadGateway, relayResponse{Message: "shopee is unreachable from the relay"})
	default:
		writeRelayJSON(w, http.StatusOK, relayResponse{Message: "nickname not found; the cookie may be expired or the page layout changed"})
	}
}

func (h *RelayHandler) countError() {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues("shopee_relay").Inc()
	}
}

func writeRelayJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
