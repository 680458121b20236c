package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holon-run/docsagent/pkg/git"
	"github.com/holon-run/docsagent/pkg/preflight"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, workspace directory, repository and GitHub API access",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gh, err := newGitHubClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		checker := preflight.NewChecker(preflight.Config{
			BaseDir:    cfg.BaseDir,
			Token:      cfg.Token,
			RepoURL:    cfg.RepoURL,
			BaseBranch: cfg.BaseBranch,
			Prober:     git.NewClient(git.Options{Token: cfg.Token, RemoteName: cfg.Remote}),
			Owner:      cfg.Owner,
			Repo:       cfg.Repo,
			GitHub:     gh,
		})
		results := checker.Results(cmd.Context())
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%-5s %-12s %s\n", r.Level, r.Name, r.Message)
		}
		return preflight.Summarize(results)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
