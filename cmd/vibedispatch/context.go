package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vibedispatch/internal/config"
	"vibedispatch/internal/contrib"
	"vibedispatch/internal/dispatch"
	"vibedispatch/internal/github"
	"vibedispatch/internal/ledger"
	"vibedispatch/internal/logging"
	"vibedispatch/internal/notifications"
	"vibedispatch/internal/recon"
)

// errLocked reports that another invocation holds the batch lock.
var errLocked = errors.New("another vibedispatch command is running; retry when it finishes")

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	appOnce sync.Once
	app     *app
	appErr  error
}

// app holds the wired adapters shared by every command of one invocation.
type app struct {
	logger   *slog.Logger
	ledger   *ledger.Store
	gh       *github.Client
	recon    *recon.Client
	notifier notifications.Service
	contrib  *contrib.Service
	session  *dispatch.Session
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureApp() (*app, error) {
	c.appOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.appErr = err
			return
		}
		c.app, c.appErr = c.buildApp(cfg)
	})
	return c.app, c.appErr
}

func (c *commandContext) buildApp(cfg *config.Config) (*app, error) {
	logger, err := c.newLogger(cfg)
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	ghOpts := []github.Option{github.WithLogger(logger)}
	if ttl := cfg.CacheTTL(); ttl > 0 {
		ghOpts = append(ghOpts, github.WithCache(store, ttl))
	}
	gh, err := github.New(cfg, ghOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	rc := recon.New(cfg.Recon.APIURL, time.Duration(cfg.Recon.TimeoutSeconds)*time.Second, logger)
	notifier := notifications.NewService(cfg)
	svc, err := contrib.NewService(cfg, gh, rc, store, notifier, contrib.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, err
	}
	session, err := dispatch.New(dispatch.Options{
		Maintenance:  gh,
		Contrib:      svc,
		Principal:    cfg.GitHub.Owner,
		AgentPattern: cfg.GitHub.AgentPattern,
		Logger:       logger,
		Sink:         logging.NewSink(cfg.Logging.SinkCapacity),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &app{
		logger:   logger,
		ledger:   store,
		gh:       gh,
		recon:    rc,
		notifier: notifier,
		contrib:  svc,
		session:  session,
	}, nil
}

// newLogger writes every line to the log file and mirrors it to stderr
// only with --verbose, keeping table output readable.
func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.NewFromConfig(cfg, c.verbose != nil && *c.verbose)
}

func (c *commandContext) withSession(fn func(*dispatch.Session) error) error {
	a, err := c.ensureApp()
	if err != nil {
		return err
	}
	return fn(a.session)
}

// withLock runs fn while holding the batch lock under the data directory.
func (c *commandContext) withLock(fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockPath(), err)
	}
	if !ok {
		return errLocked
	}
	defer lock.Unlock()
	return fn()
}

func (c *commandContext) close() {
	if c.app == nil {
		return
	}
	c.app.session.Close()
	if err := c.app.ledger.Close(); err != nil {
		c.app.logger.Warn("ledger close failed", logging.Error(err))
	}
	c.app = nil
}

func (c *commandContext) agentPattern() string {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.GitHub.AgentPattern
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
