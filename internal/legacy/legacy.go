// Package legacy imports account exports produced before the account store
// existed (spreadsheet dumps of the dashboard's first account list).
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"shopee-dash/internal/cookie"
	"shopee-dash/internal/repo"
)

// Record is one exported row. Ids may be numbers or strings.
type Record struct {
	ID       flexString `json:"id"`
	Username string     `json:"username"`
	Cookie   string     `json:"cookie"`
	Note     string     `json:"note"`
	Expiry   string     `json:"expiry"`
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// Load reads a JSON array of records from a file path or an http(s) URL.
func Load(ctx context.Context, source string) ([]Record, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return records, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch export: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch export: status=%d", res.StatusCode)
	}
	return body, nil
}

// Normalize converts records into accounts. The id is the cookie's SPC_U
// value when present, else the exported id, else a synthetic timestamp id.
// Records without a name are marked pending.
func Normalize(records []Record, now time.Time) []repo.Account {
	out := make([]repo.Account, 0, len(records))
	seq := now
	for _, rec := range records {
		id, ok := cookie.ExtractIdentityKey(rec.Cookie)
		if !ok {
			id = strings.TrimSpace(string(rec.ID))
		}
		if id == "" {
			id = repo.SyntheticID(seq)
			seq = seq.Add(time.Millisecond)
		}

		username := strings.TrimSpace(rec.Username)
		if username == "" {
			username = repo.PendingUsername
		}
		expiry := strings.TrimSpace(rec.Expiry)
		if expiry == "" {
			expiry = repo.ExpiryActive
		}

		out = append(out, repo.Account{
			ID:       id,
			Username: username,
			Cookie:   rec.Cookie,
			Note:     strings.TrimSpace(rec.Note),
			Expiry:   expiry,
		})
	}
	return out
}

// Result counts the outcome of an import.
type Result struct {
	Imported int
	Failed   int
}

// Import upserts every account, continuing past individual failures.
func Import(ctx context.Context, store repo.Store, accounts []repo.Account, logger *slog.Logger) Result {
	var res Result
	for _, a := range accounts {
		if err := store.Upsert(ctx, a); err != nil {
			res.Failed++
			logger.Error("import account failed", "id", a.ID, "cookie", cookie.Redact(a.Cookie), "error", err)
			continue
		}
		res.Imported++
	}
	return res
}
