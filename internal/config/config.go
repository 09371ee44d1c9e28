package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// GitHub contains configuration for the gh CLI adapter.
type GitHub struct {
	Owner              string  `toml:"owner"`
	Binary             string  `toml:"binary"`
	AgentPattern       string  `toml:"agent_pattern"`
	AgentAssignee      string  `toml:"agent_assignee"`
	CheckLabel         string  `toml:"check_label"`
	CheckWorkflow      string  `toml:"check_workflow"`
	TemplateRepo       string  `toml:"template_repo"`
	RepoLimit          int     `toml:"repo_limit"`
	MaxReposPerStage   int     `toml:"max_repos_per_stage"`
	MaxConcurrency     int     `toml:"max_concurrency"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	CommandTimeout     int     `toml:"command_timeout"`
	MergeTimeout       int     `toml:"merge_timeout"`
	DeleteMergedBranch bool    `toml:"delete_merged_branch"`
}

// Cache contains configuration for the gh response cache.
type Cache struct {
	Enabled    bool `toml:"enabled"`
	TTLSeconds int  `toml:"ttl_seconds"`
}

// Recon contains configuration for the issue aggregator API.
type Recon struct {
	APIURL         string `toml:"api_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for Discord webhook notifications.
type Notifications struct {
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	RequestTimeout    int    `toml:"request_timeout"`
	GoTierThreshold   int    `toml:"go_tier_threshold"`
}

// OSS contains configuration for the open-source contribution pipeline.
type OSS struct {
	ForkWaitTimeout      int `toml:"fork_wait_timeout"`
	ForkPollInterval     int `toml:"fork_poll_interval"`
	ContributingMaxChars int `toml:"contributing_max_chars"`
	MaxForkConcurrency   int `toml:"max_fork_concurrency"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format       string `toml:"format"`
	Level        string `toml:"level"`
	SinkCapacity int    `toml:"sink_capacity"`
}

// Config encapsulates all configuration values for VibeDispatch.
//
// Configuration sections by subsystem:
//   - Paths: data (ledger, lock) and log directories
//   - GitHub: gh CLI binary, agent identity, check workflow, fan-out limits
//   - Cache: TTL response cache for gh list calls
//   - Recon: issue aggregator endpoint
//   - Notifications: Discord webhook settings
//   - OSS: fork-and-assign timing and context limits
//   - Logging: log format, level, and progress sink capacity
type Config struct {
	Paths         Paths         `toml:"paths"`
	GitHub        GitHub        `toml:"github"`
	Cache         Cache         `toml:"cache"`
	Recon         Recon         `toml:"recon"`
	Notifications Notifications `toml:"notifications"`
	OSS           OSS           `toml:"oss"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vibedispatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file beside the config (or in the working
// directory) is loaded first; variables already set in the environment win.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vibedispatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env"), ".env"}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite database location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "vibedispatch.db")
}

// LockPath returns the lock file guarding mutating batch commands.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vibedispatch.lock")
}

// CacheTTL returns the response cache lifetime, zero when caching is disabled.
func (c *Config) CacheTTL() time.Duration {
	if !c.Cache.Enabled {
		return 0
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// CommandTimeout returns the default gh invocation timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.GitHub.CommandTimeout) * time.Second
}

// MergeTimeout returns the gh timeout used for merges and upstream PR creation.
func (c *Config) MergeTimeout() time.Duration {
	return time.Duration(c.GitHub.MergeTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
