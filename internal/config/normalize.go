package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGitHub()
	c.normalizeCache()
	c.normalizeRecon()
	c.normalizeNotifications()
	c.normalizeOSS()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGitHub() {
	c.GitHub.Owner = strings.TrimSpace(c.GitHub.Owner)
	if c.GitHub.Owner == "" {
		if value, ok := os.LookupEnv("GITHUB_OWNER"); ok {
			c.GitHub.Owner = strings.TrimSpace(value)
		}
	}
	c.GitHub.Binary = strings.TrimSpace(c.GitHub.Binary)
	if c.GitHub.Binary == "" {
		c.GitHub.Binary = defaultGHBinary
	}
	c.GitHub.AgentPattern = strings.ToLower(strings.TrimSpace(c.GitHub.AgentPattern))
	if c.GitHub.AgentPattern == "" {
		c.GitHub.AgentPattern = defaultAgentPattern
	}
	c.GitHub.AgentAssignee = strings.TrimSpace(c.GitHub.AgentAssignee)
	if c.GitHub.AgentAssignee == "" {
		c.GitHub.AgentAssignee = defaultAgentAssignee
	}
	c.GitHub.CheckLabel = strings.TrimSpace(c.GitHub.CheckLabel)
	if c.GitHub.CheckLabel == "" {
		c.GitHub.CheckLabel = defaultCheckLabel
	}
	c.GitHub.CheckWorkflow = strings.TrimSpace(c.GitHub.CheckWorkflow)
	if c.GitHub.CheckWorkflow == "" {
		c.GitHub.CheckWorkflow = defaultCheckWorkflow
	}
	c.GitHub.TemplateRepo = strings.Trim(strings.TrimSpace(c.GitHub.TemplateRepo), "/")
	if c.GitHub.RepoLimit <= 0 {
		c.GitHub.RepoLimit = defaultRepoLimit
	}
	if c.GitHub.MaxReposPerStage <= 0 {
		c.GitHub.MaxReposPerStage = defaultMaxReposPerStage
	}
	if c.GitHub.MaxConcurrency <= 0 {
		c.GitHub.MaxConcurrency = defaultMaxConcurrency
	}
	if c.GitHub.CommandTimeout <= 0 {
		c.GitHub.CommandTimeout = defaultCommandTimeout
	}
	if c.GitHub.MergeTimeout <= 0 {
		c.GitHub.MergeTimeout = defaultMergeTimeout
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = defaultCacheTTLSeconds
	}
}

func (c *Config) normalizeRecon() {
	c.Recon.APIURL = strings.TrimSpace(c.Recon.APIURL)
	if c.Recon.APIURL == "" {
		if value, ok := os.LookupEnv("AGGREGATOR_API_URL"); ok {
			c.Recon.APIURL = strings.TrimSpace(value)
		}
	}
	c.Recon.APIURL = strings.TrimRight(c.Recon.APIURL, "/")
	if c.Recon.TimeoutSeconds <= 0 {
		c.Recon.TimeoutSeconds = defaultReconTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.DiscordWebhookURL = strings.TrimSpace(c.Notifications.DiscordWebhookURL)
	if c.Notifications.DiscordWebhookURL == "" {
		if value, ok := os.LookupEnv("DISCORD_WEBHOOK_URL"); ok {
			c.Notifications.DiscordWebhookURL = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if c.Notifications.GoTierThreshold <= 0 {
		c.Notifications.GoTierThreshold = defaultGoTierThreshold
	}
}

func (c *Config) normalizeOSS() {
	if c.OSS.ForkWaitTimeout <= 0 {
		c.OSS.ForkWaitTimeout = defaultForkWaitTimeout
	}
	if c.OSS.ForkPollInterval <= 0 {
		c.OSS.ForkPollInterval = defaultForkPollInterval
	}
	if c.OSS.ContributingMaxChars <= 0 {
		c.OSS.ContributingMaxChars = defaultContributingMaxChars
	}
	if c.OSS.MaxForkConcurrency <= 0 {
		c.OSS.MaxForkConcurrency = defaultMaxForkConcurrency
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.SinkCapacity <= 0 {
		c.Logging.SinkCapacity = defaultSinkCapacity
	}
}
