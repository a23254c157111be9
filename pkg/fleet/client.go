// Package fleet is the HTTP client for the remote fleet-management API.
//
// The API exchanges client credentials for an access token and answers
// GraphQL requests for listing, looking up and deleting computers.
package fleet

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"batch-delete/pkg/model"
)

// ErrNoToken is returned when the token endpoint answers without an access token.
var ErrNoToken = errors.New("no access token returned")

// API is the fleet contract consumed by the batch engine.
type API interface {
	Authenticate(ctx context.Context) (Token, int, error)
	FindBySerial(ctx context.Context, token Token, serial string) ([]model.Computer, int, error)
	DeleteByID(ctx context.Context, token Token, uuid string) (int, error)
	ListRecent(ctx context.Context, token Token, since time.Time) ([]model.Computer, error)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	ClientID string
	Password string

	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client
	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64
	// PageSize bounds each listComputers page; zero means 100.
	PageSize int
	Logger   *slog.Logger
}

// Client talks to one fleet API tenant.
type Client struct {
	baseURL  string
	clientID string
	password string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
	log      *slog.Logger
	now      func() time.Time
}

var _ API = (*Client)(nil)

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("fleet base URL is required")
	}
	if !strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
		return nil, fmt.Errorf("fleet base URL %q must start with http:// or https://", base)
	}
	c := &Client{
		baseURL:  base,
		clientID: opts.ClientID,
		password: opts.Password,
		http:     opts.HTTPClient,
		pageSize: opts.PageSize,
		log:      opts.Logger,
		now:      time.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// BuildHTTPClient returns an HTTP client trusting caFile in addition to the
// system roots. insecure disables certificate verification.
func BuildHTTPClient(caFile string, insecure bool, timeout time.Duration) (*http.Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: insecure, MinVersion: tls.VersionTLS12} //nolint:gosec
	if caFile != "" {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		caData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		if !pool.AppendCertsFromPEM(caData) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		tlsConfig.RootCAs = pool
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

type tokenRequest struct {
	ClientID string `json:"client_id"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Authenticate exchanges the client credentials for an access token.
func (c *Client) Authenticate(ctx context.Context) (Token, int, error) {
	status, body, err := c.post(ctx, "/token", "", tokenRequest{ClientID: c.clientID, Password: c.password})
	if err != nil {
		return Token{}, status, fmt.Errorf("token request: %w", err)
	}
	if status != http.StatusOK {
		return Token{}, status, fmt.Errorf("token request returned HTTP %d", status)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, status, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return Token{}, status, ErrNoToken
	}
	tok := newToken(tr.AccessToken, tr.ExpiresIn, c.now())
	c.log.Info("authenticated to fleet API", "base_url", c.baseURL, "expires_at", tok.ExpiresAt)
	return tok, status, nil
}

// FindBySerial looks up computers whose serial equals serial.
func (c *Client) FindBySerial(ctx context.Context, token Token, serial string) ([]model.Computer, int, error) {
	vars := map[string]any{
		"pageSize": c.pageSize,
		"filter":   map[string]any{"serial": map[string]any{"equals": serial}},
	}
	page, status, err := c.listPage(ctx, token, vars)
	if err != nil {
		return nil, status, err
	}
	return page.Items, status, nil
}

// DeleteByID deletes the computer identified by uuid and returns the HTTP
// status. A non-nil error means no response was received.
func (c *Client) DeleteByID(ctx context.Context, token Token, uuid string) (int, error) {
	status, _, err := c.graphql(ctx, token, deleteComputerMutation, map[string]any{"uuid": uuid})
	if err != nil {
		return 0, err
	}
	return status, nil
}

// ListRecent returns every computer whose last check-in precedes since. A
// zero since lists all computers.
func (c *Client) ListRecent(ctx context.Context, token Token, since time.Time) ([]model.Computer, error) {
	vars := map[string]any{"pageSize": c.pageSize}
	if !since.IsZero() {
		vars["filter"] = map[string]any{"checkin": map[string]any{"lessThan": FormatTimestamp(since)}}
	}
	var out []model.Computer
	seen := map[string]struct{}{}
	for {
		page, status, err := c.listPage(ctx, token, vars)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("list computers returned HTTP %d", status)
		}
		out = append(out, page.Items...)
		if page.PageInfo.Next == nil || *page.PageInfo.Next == "" {
			break
		}
		next := *page.PageInfo.Next
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("list computers: page cursor %q repeated", next)
		}
		seen[next] = struct{}{}
		vars["next"] = next
	}
	c.log.Info("listed computers", "count", len(out), "since", since)
	return out, nil
}

func (c *Client) listPage(ctx context.Context, token Token, vars map[string]any) (computerPage, int, error) {
	status, body, err := c.graphql(ctx, token, listComputersQuery, vars)
	if err != nil {
		return computerPage{}, status, err
	}
	if status != http.StatusOK {
		return computerPage{}, status, nil
	}
	var resp listComputersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return computerPage{}, status, fmt.Errorf("decode listComputers: %w", err)
	}
	if len(resp.Errors) > 0 {
		return computerPage{}, status, fmt.Errorf("listComputers: %s", resp.Errors[0].Message)
	}
	return resp.Data.ListComputers, status, nil
}

func (c *Client) graphql(ctx context.Context, token Token, query string, vars map[string]any) (int, []byte, error) {
	return c.post(ctx, "/graphql", token.AccessToken, graphqlRequest{Query: query, Variables: vars})
}

func (c *Client) post(ctx context.Context, path, token string, payload any) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// FormatTimestamp renders t as ISO-8601 UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
