// Package cookie reads the few fields the dashboard needs out of a raw
// browser cookie header. The cookie itself is treated as an opaque blob.
package cookie

import (
	"errors"
	"fmt"
	"strings"
)

// IdentityField is the cookie field carrying the Shopee user id.
const IdentityField = "SPC_U"

// ErrIdentityKeyNotFound is wrapped by callers that reject a cookie without an identity key.
var ErrIdentityKeyNotFound = errors.New("identity key not found in cookie")

// Pair is a single name=value entry of a cookie header.
type Pair struct {
	Name  string
	Value string
}

// Pairs splits a raw cookie header into its name=value entries.
// Segments without a name or without '=' are skipped.
func Pairs(raw string) []Pair {
	segments := strings.Split(raw, ";")
	pairs := make([]Pair, 0, len(segments))
	for _, segment := range segments {
		name, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		pairs = append(pairs, Pair{Name: name, Value: strings.TrimSpace(value)})
	}
	return pairs
}

// ExtractIdentityKey returns the SPC_U value of the cookie. The second result
// is false when the field is absent, empty, or its value spans a line break.
// The first SPC_U occurrence wins.
func ExtractIdentityKey(raw string) (string, bool) {
	for _, pair := range Pairs(raw) {
		if pair.Name != IdentityField {
			continue
		}
		if pair.Value == "" || strings.ContainsAny(pair.Value, "\r\n") {
			return "", false
		}
		return pair.Value, true
	}
	return "", false
}

// Redact describes a cookie without exposing any value, for logs.
func Redact(raw string) string {
	pairs := Pairs(raw)
	names := make([]string, 0, len(pairs))
	for _, p := range pairs {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("fields=[%s] len=%d", strings.Join(names, ","), len(raw))
}
