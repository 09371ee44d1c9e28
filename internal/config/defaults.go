package config

const (
	defaultDataDir              = "~/.local/share/vibedispatch"
	defaultLogDir               = "~/.local/share/vibedispatch/logs"
	defaultGHBinary             = "gh"
	defaultAgentPattern         = "copilot"
	defaultAgentAssignee        = "@Copilot"
	defaultCheckLabel           = "vibeCheck"
	defaultCheckWorkflow        = "vibecheck.yml"
	defaultTemplateRepo         = "WolffM/vibecheck"
	defaultRepoLimit            = 100
	defaultMaxReposPerStage     = 15
	defaultMaxConcurrency       = 10
	defaultRequestsPerSecond    = 8
	defaultCommandTimeout       = 30
	defaultMergeTimeout         = 60
	defaultCacheTTLSeconds      = 300
	defaultReconTimeout         = 10
	defaultNotifyTimeout        = 5
	defaultGoTierThreshold      = 85
	defaultForkWaitTimeout      = 60
	defaultForkPollInterval     = 3
	defaultContributingMaxChars = 3000
	defaultMaxForkConcurrency   = 5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultSinkCapacity         = 500
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		GitHub: GitHub{
			Binary:             defaultGHBinary,
			AgentPattern:       defaultAgentPattern,
			AgentAssignee:      defaultAgentAssignee,
			CheckLabel:         defaultCheckLabel,
			CheckWorkflow:      defaultCheckWorkflow,
			TemplateRepo:       defaultTemplateRepo,
			RepoLimit:          defaultRepoLimit,
			MaxReposPerStage:   defaultMaxReposPerStage,
			MaxConcurrency:     defaultMaxConcurrency,
			RequestsPerSecond:  defaultRequestsPerSecond,
			CommandTimeout:     defaultCommandTimeout,
			MergeTimeout:       defaultMergeTimeout,
			DeleteMergedBranch: true,
		},
		Cache: Cache{
			Enabled:    true,
			TTLSeconds: defaultCacheTTLSeconds,
		},
		Recon: Recon{
			TimeoutSeconds: defaultReconTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyTimeout,
			GoTierThreshold: defaultGoTierThreshold,
		},
		OSS: OSS{
			ForkWaitTimeout:      defaultForkWaitTimeout,
			ForkPollInterval:     defaultForkPollInterval,
			ContributingMaxChars: defaultContributingMaxChars,
			MaxForkConcurrency:   defaultMaxForkConcurrency,
		},
		Logging: Logging{
			Format:       defaultLogFormat,
			Level:        defaultLogLevel,
			SinkCapacity: defaultSinkCapacity,
		},
	}
}
