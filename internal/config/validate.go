package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGitHub(); err != nil {
		return err
	}
	if err := c.validateRecon(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateOSS(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGitHub() error {
	if strings.ContainsAny(c.GitHub.Owner, " /") {
		return fmt.Errorf("github.owner %q must be a bare login", c.GitHub.Owner)
	}
	if c.GitHub.RequestsPerSecond < 0 {
		return errors.New("github.requests_per_second must be zero (unlimited) or positive")
	}
	if c.GitHub.MaxReposPerStage > c.GitHub.RepoLimit {
		return fmt.Errorf("github.max_repos_per_stage (%d) cannot exceed github.repo_limit (%d)", c.GitHub.MaxReposPerStage, c.GitHub.RepoLimit)
	}
	if c.GitHub.TemplateRepo != "" && strings.Count(c.GitHub.TemplateRepo, "/") != 1 {
		return fmt.Errorf("github.template_repo %q must look like owner/repo", c.GitHub.TemplateRepo)
	}
	return nil
}

func (c *Config) validateRecon() error {
	if c.Recon.APIURL == "" {
		return nil
	}
	return validateHTTPURL("recon.api_url", c.Recon.APIURL)
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DiscordWebhookURL == "" {
		return nil
	}
	return validateHTTPURL("notifications.discord_webhook_url", c.Notifications.DiscordWebhookURL)
}

func (c *Config) validateOSS() error {
	if c.OSS.ForkPollInterval > c.OSS.ForkWaitTimeout {
		return fmt.Errorf("oss.fork_poll_interval (%d) cannot exceed oss.fork_wait_timeout (%d)", c.OSS.ForkPollInterval, c.OSS.ForkWaitTimeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
