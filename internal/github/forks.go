package github

import (
	"context"
	"fmt"
	"time"
)

// Fork creates a fork of originSlug under the principal without cloning.
func (c *Client) Fork(ctx context.Context, originSlug string) error {
	if _, err := c.run(ctx, "repo", "fork", originSlug, "--clone=false"); err != nil {
		return fmt.Errorf("fork %s: %w", originSlug, err)
	}
	return nil
}

// ForkExists reports whether the principal has a repository named repo.
func (c *Client) ForkExists(ctx context.Context, repo string) (bool, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return false, err
	}
	return c.RepoExists(ctx, slugFor(owner, repo)), nil
}

// WaitForFork polls until the fork is visible or timeout elapses. Fork
// creation on GitHub is asynchronous.
func (c *Client) WaitForFork(ctx context.Context, repo string, timeout, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		exists, err := c.ForkExists(ctx, repo)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
		if !time.Now().Add(interval).Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SyncFork fast-forwards the principal's fork from its upstream.
func (c *Client) SyncFork(ctx context.Context, repo string) error {
	owner, err := c.Owner(ctx)
	if err != nil {
		return err
	}
	slug := slugFor(owner, repo)
	if _, err := c.run(ctx, "repo", "sync", slug); err != nil {
		return fmt.Errorf("sync fork %s: %w", slug, err)
	}
	return nil
}
