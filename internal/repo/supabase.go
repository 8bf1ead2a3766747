package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	backendSupabase = "supabase"

	// DefaultTable is the table holding accounts.
	DefaultTable = "shopee_accounts"
)

// SupabaseConfig holds the PostgREST connection parameters.
type SupabaseConfig struct {
	URL     string
	APIKey  string
	Table   string
	Timeout time.Duration
}

// SupabaseStore talks to the accounts table through Supabase's REST interface.
type SupabaseStore struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
	opts     options
}

// supabaseRow mirrors the column names of shopee_accounts.
type supabaseRow struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Cookie          string     `json:"cookie"`
	Note            string     `json:"note"`
	Expiry          string     `json:"expiry"`
	Level           *string    `json:"level"`
	TotalSales      *float64   `json:"total_sales"`
	TotalCommission *float64   `json:"total_commission"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// NewSupabase validates the configuration and returns a REST-backed store.
// Missing URL or key yields an error wrapping ErrNotConfigured.
func NewSupabase(cfg SupabaseConfig, logger *slog.Logger, opts ...Option) (*SupabaseStore, error) {
	var missing []string
	if strings.TrimSpace(cfg.URL) == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "SUPABASE_KEY")
	}
	if len(missing) > 0 {
		return nil, Unconfigured{Missing: missing}.err()
	}

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = DefaultTable
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &SupabaseStore{
		endpoint: tableEndpoint(cfg.URL, table),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "repo_supabase"),
		opts:     buildOptions(opts),
	}, nil
}

// tableEndpoint accepts either the project URL or a full /rest/v1/<table> URL.
func tableEndpoint(base, table string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasSuffix(base, "/rest/v1/"+table):
		return base
	case strings.HasSuffix(base, "/rest/v1"):
		return base + "/" + table
	default:
		return base + "/rest/v1/" + table
	}
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (s *SupabaseStore) Close() {}

// Ping issues a minimal select to verify reachability and credentials.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	return s.do(ctx, http.MethodGet, q, nil, nil, nil)
}

// Upsert posts the row with merge-duplicates resolution on the id column.
func (s *SupabaseStore) Upsert(ctx context.Context, account Account) (err error) {
	defer func(start time.Time) { s.opts.observe(backendSupabase, "upsert", start, err) }(time.Now())

	if err := validateAccount(account); err != nil {
		return err
	}
	now := s.opts.now().UTC()
	row := supabaseRow{
		ID:              account.ID,
		Username:        account.Username,
		Cookie:          account.Cookie,
		Note:            account.Note,
		Expiry:          account.Expiry,
		Level:           account.Level,
		TotalSales:      account.TotalSales,
		TotalCommission: account.TotalCommission,
		UpdatedAt:       &now,
	}
	body, err := json.Marshal([]supabaseRow{row})
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	q := url.Values{}
	q.Set("on_conflict", "id")
	headers := http.Header{}
	headers.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	if err := s.do(ctx, http.MethodPost, q, headers, bytes.NewReader(body), nil); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// List selects all rows ordered by creation time, newest first.
func (s *SupabaseStore) List(ctx context.Context) (accounts []Account, err error) {
	defer func(start time.Time) { s.opts.observe(backendSupabase, "list", start, err) }(time.Now())

	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc,id.asc")

	var rows []supabaseRow
	if err := s.do(ctx, http.MethodGet, q, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	accounts = make([]Account, 0, len(rows))
	for _, row := range rows {
		a := Account{
			ID:              row.ID,
			Username:        row.Username,
			Cookie:          row.Cookie,
			Note:            row.Note,
			Expiry:          row.Expiry,
			Level:           row.Level,
			TotalSales:      row.TotalSales,
			TotalCommission: row.TotalCommission,
		}
		if row.CreatedAt != nil {
			a.CreatedAt = row.CreatedAt.UTC()
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// Remove deletes by id. PostgREST answers 204 whether or not a row matched.
func (s *SupabaseStore) Remove(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.opts.observe(backendSupabase, "remove", start, err) }(time.Now())

	q := url.Values{}
	q.Set("id", "eq."+id)
	if err := s.do(ctx, http.MethodDelete, q, nil, nil, nil); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	return nil
}

func (s *SupabaseStore) do(ctx context.Context, method string, query url.Values, headers http.Header, body io.Reader, dest any) error {
	reqURL := s.endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, vals := range headers {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	res, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= 400 {
		return classifyHTTPError(res.StatusCode, string(bodyBytes))
	}

	if dest == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyHTTPError(status int, body string) error {
	snippet := strings.TrimSpace(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status=%d body=%s", ErrUnauthorized, status, snippet)
	case status >= 500:
		return fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, status, snippet)
	default:
		return fmt.Errorf("supabase error: status=%d body=%s", status, snippet)
	}
}
