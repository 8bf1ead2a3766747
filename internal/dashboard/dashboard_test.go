package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopee-dash/internal/repo"
)

func accounts() []repo.Account {
	level := "Lv 3 • Gold"
	return []repo.Account{
		{ID: "2", Note: "Shop2", Level: &level},
		{ID: "1", Note: "Shop1"},
	}
}

func TestBuildLive(t *testing.T) {
	live := BuildLive(accounts())

	assert.Equal(t, "0 / 2", live.Sessions)
	assert.Zero(t, live.TotalOrders)
	assert.Zero(t, live.TotalSales)
	require.Len(t, live.Rows, 2)
	assert.Equal(t, 1, live.Rows[0].Index)
	assert.Equal(t, "Shop2 (r0)", live.Rows[0].Label)
	assert.Equal(t, "Lv 3 • Gold", live.Rows[0].Level)
	assert.Equal(t, "Lv ? • N/A", live.Rows[1].Level)
	assert.Equal(t, "OFFLINE", live.Rows[1].Status)
}

func TestBuildLiveEmpty(t *testing.T) {
	live := BuildLive(nil)
	assert.Equal(t, "0 / 0", live.Sessions)
	assert.NotNil(t, live.Rows)
	assert.Empty(t, live.Rows)
}

func TestBuildAffiliate(t *testing.T) {
	aff := BuildAffiliate(accounts())

	assert.Equal(t, "1 / 2", aff.Channels)
	assert.Equal(t, 1, aff.TotalOrders)
	assert.InDelta(t, 77.00, aff.TotalSales, 1e-9)
	assert.InDelta(t, 7.70, aff.TotalCommission, 1e-9)
	require.Len(t, aff.Rows, 2)
	assert.Equal(t, "Shop1 (r0)", aff.Rows[1].Label)
}

func TestBuildAffiliateEmpty(t *testing.T) {
	aff := BuildAffiliate(nil)
	assert.Equal(t, "0 / 0", aff.Channels)
	assert.Zero(t, aff.TotalOrders)
	assert.Zero(t, aff.TotalSales)
	assert.Zero(t, aff.TotalCommission)
	assert.Empty(t, aff.Rows)
}
