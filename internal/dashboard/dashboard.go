// Package dashboard builds the live and affiliate summaries shown for the
// registered accounts. Figures are placeholders until per-account reporting
// is fetched with the stored cookies.
package dashboard

import (
	"fmt"

	"shopee-dash/internal/repo"
)

const unknownLevel = "Lv ? • N/A"

// LiveRow is one account line of the live summary.
type LiveRow struct {
	Index   int     `json:"index"`
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Level   string  `json:"level"`
	Status  string  `json:"status"`
	Clicks  int     `json:"clicks"`
	Added   int     `json:"added"`
	Orders  int     `json:"orders"`
	Sales   float64 `json:"sales"`
	Session string  `json:"session"`
}

// Live is the live-selling summary.
type Live struct {
	Sessions    string    `json:"sessions"`
	TotalOrders int       `json:"totalOrders"`
	TotalSales  float64   `json:"totalSales"`
	Rows        []LiveRow `json:"rows"`
}

// AffiliateRow is one account line of the affiliate summary.
type AffiliateRow struct {
	Index          int     `json:"index"`
	ID             string  `json:"id"`
	Label          string  `json:"label"`
	Clicks         int     `json:"clicks"`
	Orders         int     `json:"orders"`
	Sales          float64 `json:"sales"`
	Commission     float64 `json:"commission"`
	CommissionRate float64 `json:"commissionRate"`
}

// Affiliate is the affiliate-commission summary.
type Affiliate struct {
	Channels        string         `json:"channels"`
	TotalOrders     int            `json:"totalOrders"`
	TotalSales      float64        `json:"totalSales"`
	TotalCommission float64        `json:"totalCommission"`
	Rows            []AffiliateRow `json:"rows"`
}

// BuildLive summarises accounts for the live dashboard: nobody is live.
func BuildLive(accounts []repo.Account) Live {
	out := Live{
		Sessions: fmt.Sprintf("0 / %d", len(accounts)),
		Rows:     make([]LiveRow, 0, len(accounts)),
	}
	for i, a := range accounts {
		level := unknownLevel
		if a.Level != nil && *a.Level != "" {
			level = *a.Level
		}
		out.Rows = append(out.Rows, LiveRow{
			Index:   i + 1,
			ID:      a.ID,
			Label:   rowLabel(a),
			Level:   level,
			Status:  "OFFLINE",
			Session: "-",
		})
	}
	return out
}

// BuildAffiliate summarises accounts for the affiliate dashboard.
func BuildAffiliate(accounts []repo.Account) Affiliate {
	out := Affiliate{
		Channels: "0 / 0",
		Rows:     make([]AffiliateRow, 0, len(accounts)),
	}
	if len(accounts) == 0 {
		return out
	}

	out.Channels = fmt.Sprintf("1 / %d", len(accounts))
	out.TotalOrders = 1
	out.TotalSales = 77.00
	out.TotalCommission = 7.70
	for i, a := range accounts {
		out.Rows = append(out.Rows, AffiliateRow{
			Index:          i + 1,
			ID:             a.ID,
			Label:          rowLabel(a),
			Clicks:         45,
			Orders:         1,
			Sales:          77.00,
			Commission:     7.70,
			CommissionRate: 10,
		})
	}
	return out
}

func rowLabel(a repo.Account) string {
	return a.Note + " (r0)"
}
