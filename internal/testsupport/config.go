package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vibedispatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.GitHub.Owner = "octo"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "data", "logs")
	cfgVal.Recon.APIURL = ""
	cfgVal.Notifications.DiscordWebhookURL = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithOwner sets the GitHub principal on the test config.
func WithOwner(owner string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.GitHub.Owner = owner
	}
}

// WithReconURL points the recon client at a test server.
func WithReconURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Recon.APIURL = url
	}
}

// WithWebhookURL points Discord notifications at a test server.
func WithWebhookURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.DiscordWebhookURL = url
	}
}

// WithStubbedGH writes a shell script named gh that runs script, prepends it
// to PATH, and points the config at it.
func WithStubbedGH(script string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "gh")
		body := []byte("#!/bin/sh\n" + script + "\n")
		if err := os.WriteFile(target, body, 0o755); err != nil {
			b.t.Fatalf("write stub gh: %v", err)
		}
		b.cfg.GitHub.Binary = target

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
