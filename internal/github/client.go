package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"vibedispatch/internal/config"
	"vibedispatch/internal/logging"
)

// Cache is the TTL response cache backing read-heavy gh list calls.
// *ledger.Store satisfies it.
type Cache interface {
	CacheGet(ctx context.Context, key string) ([]byte, bool, error)
	CachePut(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	CacheClear(ctx context.Context, prefix string) (int64, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithCache enables response caching through cache.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "github")
	}
}

// Client wraps gh CLI interactions for both pipelines.
type Client struct {
	binary         string
	exec           Executor
	limiter        *rate.Limiter
	cache          Cache
	cacheTTL       time.Duration
	commandTimeout time.Duration
	mergeTimeout   time.Duration
	logger         *slog.Logger
	settings       config.GitHub

	ownerMu sync.Mutex
	owner   string
}

// New constructs a gh client from configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("github client requires config")
	}
	binary := strings.TrimSpace(cfg.GitHub.Binary)
	if binary == "" {
		return nil, errors.New("gh binary required")
	}
	limit := rate.Inf
	if cfg.GitHub.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.GitHub.RequestsPerSecond)
	}
	burst := max(1, cfg.GitHub.MaxConcurrency)
	client := &Client{
		binary:         binary,
		exec:           commandExecutor{},
		limiter:        rate.NewLimiter(limit, burst),
		commandTimeout: cfg.CommandTimeout(),
		mergeTimeout:   cfg.MergeTimeout(),
		logger:         logging.NewComponentLogger(nil, "github"),
		settings:       cfg.GitHub,
		owner:          strings.TrimSpace(cfg.GitHub.Owner),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// AgentPattern returns the configured agent login pattern.
func (c *Client) AgentPattern() string {
	return c.settings.AgentPattern
}

// AgentLogin returns the login the agent assignee resolves to, without the
// leading @.
func (c *Client) AgentLogin() string {
	assignee := strings.TrimPrefix(strings.TrimSpace(c.settings.AgentAssignee), "@")
	if assignee == "" {
		return "Copilot"
	}
	return assignee
}

// Owner returns the configured principal, resolving the authenticated gh user
// on first use when none is configured.
func (c *Client) Owner(ctx context.Context) (string, error) {
	c.ownerMu.Lock()
	defer c.ownerMu.Unlock()
	if c.owner != "" {
		return c.owner, nil
	}
	user, err := c.AuthenticatedUser(ctx)
	if err != nil {
		return "", err
	}
	c.owner = user
	return user, nil
}

// AuthenticatedUser returns the login gh is authenticated as.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "api", "user", "--jq", ".login")
	if err != nil {
		return "", fmt.Errorf("resolve authenticated user: %w", err)
	}
	login := strings.TrimSpace(string(out))
	if login == "" {
		return "", errors.New("resolve authenticated user: empty login")
	}
	return login, nil
}

// InvalidateRepo drops cached responses for owner/repo.
func (c *Client) InvalidateRepo(ctx context.Context, slug string) {
	c.invalidate(ctx, repoCachePrefix(slug))
}

// InvalidateAll drops every cached gh response.
func (c *Client) InvalidateAll(ctx context.Context) {
	c.invalidate(ctx, "gh:")
}

func (c *Client) invalidate(ctx context.Context, prefix string) {
	if c.cache == nil {
		return
	}
	if _, err := c.cache.CacheClear(ctx, prefix); err != nil {
		logging.WarnWithContext(c.logger, "cache invalidation failed", "cache_clear_failed",
			logging.String("prefix", prefix),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale entries may be served until they expire"),
		)
	}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	return c.runWithTimeout(ctx, c.commandTimeout, args...)
}

func (c *Client) runWithTimeout(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := c.exec.Run(ctx, c.binary, args)
	c.logger.Debug("gh command finished",
		logging.String("args", strings.Join(args, " ")),
		logging.Duration("elapsed", time.Since(start)),
		logging.Bool("ok", err == nil),
	)
	return out, err
}

// runJSON decodes the output of a gh call into out, serving from the cache
// when cacheKey is set and a fresh entry exists.
func (c *Client) runJSON(ctx context.Context, cacheKey string, out any, args ...string) error {
	if cacheKey != "" && c.cache != nil && c.cacheTTL > 0 {
		payload, ok, err := c.cache.CacheGet(ctx, cacheKey)
		if err == nil && ok {
			if err := json.Unmarshal(payload, out); err == nil {
				return nil
			}
		}
	}
	payload, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode gh %s output: %w", args[0], err)
	}
	if cacheKey != "" && c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.CachePut(ctx, cacheKey, payload, c.cacheTTL); err != nil {
			c.logger.Debug("cache write failed", logging.String("key", cacheKey), logging.Error(err))
		}
	}
	return nil
}

type fanResult[T any] struct {
	repo  string
	value T
	err   error
}

// fanOut runs fn for every repo with bounded concurrency. Per-repo failures
// are logged and skipped; the call fails only when every repo failed.
func fanOut[T any](ctx context.Context, c *Client, stage string, repos []string, fn func(context.Context, string) (T, error)) ([]T, error) {
	if len(repos) == 0 {
		return nil, nil
	}
	p := pool.NewWithResults[fanResult[T]]().WithMaxGoroutines(max(1, c.settings.MaxConcurrency))
	for _, repo := range repos {
		p.Go(func() fanResult[T] {
			value, err := fn(ctx, repo)
			return fanResult[T]{repo: repo, value: value, err: err}
		})
	}
	results := p.Wait()

	values := make([]T, 0, len(results))
	var errs []error
	for _, result := range results {
		if result.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.repo, result.err))
			logging.WarnWithContext(c.logger, "repository fetch failed", "repo_fetch_failed",
				logging.String(logging.FieldStage, stage),
				logging.String(logging.FieldRepo, result.repo),
				logging.Error(result.err),
				logging.String(logging.FieldImpact, "repository omitted from stage"),
			)
			continue
		}
		values = append(values, result.value)
	}
	if err := ctx.Err(); err != nil {
		return values, err
	}
	if len(values) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return values, nil
}

func (c *Client) capRepos(names []string) []string {
	if limit := c.settings.MaxReposPerStage; limit > 0 && len(names) > limit {
		return names[:limit]
	}
	return names
}

func slugFor(owner, repo string) string {
	return owner + "/" + repo
}

func repoCachePrefix(slug string) string {
	return "gh:" + slug + ":"
}

func repoCacheKey(slug, kind string) string {
	return repoCachePrefix(slug) + kind
}
