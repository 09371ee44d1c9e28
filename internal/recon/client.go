package recon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vibedispatch/internal/logging"
)

const userAgent = "VibeDispatch-Go/0.1.0"

// ErrNotConfigured is returned by write operations when no aggregator URL is set.
var ErrNotConfigured = errors.New("aggregator not configured")

// Client talks to the recon aggregator API. A client without a base URL is
// disabled: reads return empty results and writes return ErrNotConfigured.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New builds a client for baseURL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "recon"),
	}
}

// Enabled reports whether an aggregator URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Watchlist returns the aggregator's watched slugs.
func (c *Client) Watchlist(ctx context.Context) ([]string, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var resp struct {
		Slugs []string `json:"slugs"`
	}
	if err := c.do(ctx, http.MethodGet, "/recon/watchlist", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Slugs, nil
}

// AddWatch adds slug to the aggregator watchlist.
func (c *Client) AddWatch(ctx context.Context, slug string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	return c.do(ctx, http.MethodPost, "/recon/watchlist/add", map[string]string{"slug": slug}, nil)
}

// RemoveWatch removes slug from the aggregator watchlist.
func (c *Client) RemoveWatch(ctx context.Context, slug string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	return c.do(ctx, http.MethodPost, "/recon/watchlist/remove", map[string]string{"slug": slug}, nil)
}

// Refresh asks the aggregator to re-scrape slug.
func (c *Client) Refresh(ctx context.Context, slug string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	return c.do(ctx, http.MethodPost, "/recon/"+url.PathEscape(slug)+"/refresh", nil, nil)
}

// Health returns the viability breakdown for slug, or nil when unavailable.
func (c *Client) Health(ctx context.Context, slug string) (*Health, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var health Health
	if err := c.do(ctx, http.MethodGet, "/recon/"+url.PathEscape(slug)+"/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ScoredIssues returns scored issues for slug, or across all watched
// repositories when slug is empty.
func (c *Client) ScoredIssues(ctx context.Context, slug string) ([]ScoredIssue, error) {
	if !c.Enabled() {
		return nil, nil
	}
	path := "/recon/all-scored-issues"
	if slug = strings.TrimSpace(slug); slug != "" {
		path = "/recon/" + url.PathEscape(slug) + "/scored-issues"
	}
	var issues []ScoredIssue
	if err := c.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// Dossier returns the contribution dossier for slug, or nil when unavailable.
func (c *Client) Dossier(ctx context.Context, slug string) (*Dossier, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var dossier *Dossier
	if err := c.do(ctx, http.MethodGet, "/recon/"+url.PathEscape(slug)+"/dossier", nil, &dossier); err != nil {
		return nil, err
	}
	return dossier, nil
}

// Claim reports that claimedBy is working on issueID. originSlug is the
// owner/repo form; the aggregator keys repositories by owner-repo.
func (c *Client) Claim(ctx context.Context, originSlug, issueID, claimedBy, forkIssueURL string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	body := map[string]string{
		"issueId":      issueID,
		"claimedBy":    claimedBy,
		"forkIssueUrl": forkIssueURL,
	}
	return c.do(ctx, http.MethodPost, "/recon/"+url.PathEscape(hyphenate(originSlug))+"/claim", body, nil)
}

// Unclaim releases a previously reported claim.
func (c *Client) Unclaim(ctx context.Context, originSlug, issueID string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	body := map[string]string{"issueId": issueID}
	return c.do(ctx, http.MethodPost, "/recon/"+url.PathEscape(hyphenate(originSlug))+"/unclaim", body, nil)
}

// IssueID builds the aggregator identifier for an upstream issue.
func IssueID(originSlug string, number int) string {
	return fmt.Sprintf("github-%s-%d", hyphenate(originSlug), number)
}

func hyphenate(slug string) string {
	return strings.ReplaceAll(strings.TrimSpace(slug), "/", "-")
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call aggregator %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("aggregator %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode aggregator %s response: %w", path, err)
	}
	c.logger.Debug("aggregator call complete", logging.String("path", path), logging.Int("status", resp.StatusCode))
	return nil
}
