package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holon-run/docsagent/pkg/tools"
	"github.com/holon-run/docsagent/pkg/workspace"
)

var prBase string

func marshalArgs(args interface{}) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool arguments: %w", err)
	}
	return raw, nil
}

func toolError(output string) error {
	return errors.New(strings.TrimPrefix(output, "Error: "))
}

// toolCommand builds a command that forwards to one tool. It takes nargs
// positional arguments followed by an optional conversation id.
func toolCommand(use, short string, nargs int, tool string, build func(args []string) interface{}) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.RangeArgs(nargs, nargs+1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			var toolArgs interface{}
			if build != nil {
				toolArgs = build(args)
			}
			return a.callTool(cmd, conversationArg(args, nargs), tool, toolArgs)
		},
	}
}

var initCmd = toolCommand("init [conversation-id]",
	"Clone the repository and check out the conversation branch", 0, tools.CloneRepo, nil)

var applyCmd = toolCommand("apply <file> <content> [conversation-id]",
	"Write one file into the conversation workspace", 2, tools.ApplyChanges,
	func(args []string) interface{} {
		return map[string]interface{}{
			"changes": []workspace.Change{{Path: args[0], Content: args[1]}},
		}
	})

var commitCmd = toolCommand("commit <message> [conversation-id]",
	"Commit all workspace changes and push the branch", 1, tools.CommitAndPush,
	func(args []string) interface{} {
		return map[string]string{"message": args[0]}
	})

var prCmd = toolCommand("pr <title> <body> [conversation-id]",
	"Open a pull request from the conversation branch", 2, tools.CreatePR,
	func(args []string) interface{} {
		return map[string]string{"title": args[0], "body": args[1], "base": prBase}
	})

var cleanupCmd = toolCommand("cleanup [conversation-id]",
	"Delete the conversation workspace", 0, tools.Cleanup, nil)

var readCmd = toolCommand("read <path> [conversation-id]",
	"Print a documentation file as the conversation sees it", 1, tools.ReadFile,
	func(args []string) interface{} {
		return map[string][]string{"paths": {args[0]}}
	})

var lsCmd = &cobra.Command{
	Use:   "ls [dir] [conversation-id]",
	Short: "List documentation files as the conversation sees them",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		return a.callTool(cmd, conversationArg(args, 1), tools.ListFiles, map[string]string{"path": dir})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state [conversation-id]",
	Short: "Show the local workspace state of a conversation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		in, err := a.manager.Inspect(conversationArg(args, 0))
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(in); err != nil {
			return err
		}
		return enc.Close()
	},
}

var docsCmd = &cobra.Command{
	Use:   "docs [conversation-id]",
	Short: "Resolve where the conversation reads documentation from",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		loc, err := a.manager.DocsPath(cmd.Context(), conversationArg(args, 0))
		if err != nil {
			return err
		}
		source := "conversation branch"
		if loc.IsMainBranch {
			source = "shared base branch"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s: %s)\n", loc.Path, source, loc.Branch)
		return nil
	},
}

func init() {
	prCmd.Flags().StringVar(&prBase, "base", "", "base branch (default from configuration, usually main)")

	rootCmd.AddCommand(initCmd, applyCmd, commitCmd, prCmd, cleanupCmd, stateCmd, docsCmd, readCmd, lsCmd)
}
