package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/holon-run/docsagent/pkg/redact"
)

const defaultConversationID = "test-convo"

var (
	configPath string
	envFile    string
	baseDir    string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "docsagent",
	Short: "Conversation-scoped git workspaces for a documentation agent",
	Long: `docsagent gives every conversation its own clone of the documentation
repository on its own branch, and exposes clone, edit, commit, push and pull
request operations as agent tools.

Required configuration (environment, .env or --config file):
  REPO_URL       clone URL of the documentation repository
  GITHUB_OWNER   repository owner (derived from REPO_URL when omitted)
  GITHUB_REPO    repository name (derived from REPO_URL when omitted)
  GITHUB_TOKEN   token used for git over HTTPS and the GitHub API`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML config file (default $DOCS_AGENT_CONFIG)")
	flags.StringVar(&envFile, "env-file", "", "dotenv file to load (default .env when present)")
	flags.StringVar(&baseDir, "base-dir", "", "directory holding the workspaces (default $DOCS_AGENT_BASE_DIR or /tmp/docs-agent)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "log format: console, json")
}

// run executes the root command and returns the process exit code.
func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+redact.New(os.Getenv("GITHUB_TOKEN"), os.Getenv("GH_TOKEN")).Error(err))
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}

// conversationArg returns args[i], or the placeholder conversation id.
func conversationArg(args []string, i int) string {
	if len(args) > i && args[i] != "" {
		return args[i]
	}
	return defaultConversationID
}
