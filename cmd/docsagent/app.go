package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/holon-run/docsagent/pkg/config"
	"github.com/holon-run/docsagent/pkg/git"
	"github.com/holon-run/docsagent/pkg/github"
	"github.com/holon-run/docsagent/pkg/log"
	"github.com/holon-run/docsagent/pkg/metrics"
	"github.com/holon-run/docsagent/pkg/redact"
	"github.com/holon-run/docsagent/pkg/tools"
	"github.com/holon-run/docsagent/pkg/workspace"
)

// app is everything a command needs, built from validated configuration.
type app struct {
	cfg      *config.Config
	manager  *workspace.Manager
	provider *tools.Provider
	redactor *redact.Redactor
	registry *prometheus.Registry
}

// loadConfig reads configuration, applies global flags and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: configPath, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if err := log.Init(log.Config{Level: level, Format: cfg.Log.Format}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newGitHubClient(ctx context.Context, cfg *config.Config) (*github.Client, error) {
	var opts []github.Option
	if cfg.GitHubAPIURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHubAPIURL))
	}
	return github.NewClient(ctx, cfg.Token, opts...)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	prs, err := newGitHubClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo := git.NewClient(git.Options{
		Token:      cfg.Token,
		RemoteName: cfg.Remote,
		Author:     cfg.Author(),
	})
	manager, err := workspace.NewManager(repo, prs, workspace.Options{
		RepoURL:      cfg.RepoURL,
		Owner:        cfg.Owner,
		Repo:         cfg.Repo,
		BaseDir:      cfg.BaseDir,
		BranchPrefix: cfg.BranchPrefix,
		BaseBranch:   cfg.BaseBranch,
		Remote:       cfg.Remote,
		Metrics:      metrics.NewPrometheusRecorder(registry),
	})
	if err != nil {
		return nil, err
	}

	redactor := redact.New(cfg.Token)
	return &app{
		cfg:      cfg,
		manager:  manager,
		provider: tools.NewProvider(manager, redactor),
		redactor: redactor,
		registry: registry,
	}, nil
}

// callTool runs a tool for a conversation and prints its status line. A
// failed tool becomes a command error.
func (a *app) callTool(cmd *cobra.Command, conversationID, name string, args interface{}) error {
	raw, err := marshalArgs(args)
	if err != nil {
		return err
	}
	res := a.provider.For(conversationID).Call(cmd.Context(), name, raw)
	if res.IsError {
		return toolError(res.Output)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Output)
	return nil
}
