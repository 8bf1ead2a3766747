package repo

import (
	"strconv"
	"time"
)

const (
	// PendingUsername marks an account whose display name was never resolved.
	PendingUsername = "Pending Verify..."
	// ExpiryActive is the only status tag the dashboard writes.
	ExpiryActive = "Active"

	fallbackPrefix = "User_"
)

// Account represents a row of the shopee_accounts table.
type Account struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Cookie          string    `json:"cookie"`
	Note            string    `json:"note"`
	Expiry          string    `json:"expiry"`
	Level           *string   `json:"level,omitempty"`
	TotalSales      *float64  `json:"totalSales,omitempty"`
	TotalCommission *float64  `json:"totalCommission,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
}

// FallbackUsername builds the synthetic display name derived from an identity key.
func FallbackUsername(identityKey string) string {
	return fallbackPrefix + identityKey
}

// IsPending reports whether the account still carries the unresolved sentinel.
func (a Account) IsPending() bool {
	return a.Username == "" || a.Username == PendingUsername
}

// IsFallback reports whether the display name was synthesised from the id.
func (a Account) IsFallback() bool {
	return a.Username == FallbackUsername(a.ID)
}

// NeedsVerification is true for accounts without a name confirmed upstream.
func (a Account) NeedsVerification() bool {
	return a.IsPending() || a.IsFallback()
}

// SyntheticID returns the timestamp-based id used by flows that had no cookie identity.
func SyntheticID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
