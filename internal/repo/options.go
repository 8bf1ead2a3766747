package repo

import (
	"time"

	"shopee-dash/internal/metrics"
)

// Option customises a store backend.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the clock used for creation and update timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics records store operations on the given collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func (o options) observe(backend, op string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		o.metrics.Errors.WithLabelValues("store_" + backend).Inc()
	}
	o.metrics.StoreOps.WithLabelValues(backend, op, status).Inc()
	o.metrics.StoreLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
