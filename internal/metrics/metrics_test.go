package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnregisteredIsIsolated(t *testing.T) {
	a := NewUnregistered("t")
	b := NewUnregistered("t")

	a.Resolutions.WithLabelValues("confirmed").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Resolutions.WithLabelValues("confirmed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Resolutions.WithLabelValues("confirmed")))
}

func TestCollectorsRegisterOnFreshRegistry(t *testing.T) {
	m := NewUnregistered("shopee_dash")
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.Accounts.Set(3)
	m.ProbeRequests.WithLabelValues("status", "found").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shopee_dash_accounts"])
	assert.True(t, names["shopee_dash_identity_probe_requests_total"])
}
