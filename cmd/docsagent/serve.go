package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/holon-run/docsagent/pkg/log"
	"github.com/holon-run/docsagent/pkg/serve"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent tools over JSON-RPC",
	Long: `Serve the workspace tools to an agent runtime.

Endpoints:
  POST /rpc      JSON-RPC 2.0: tools.list, tools.call
  GET  /healthz  liveness
  GET  /metrics  Prometheus metrics

Example call:
  {"jsonrpc":"2.0","id":1,"method":"tools.call",
   "params":{"conversation_id":"abc","name":"clone_repo","arguments":{}}}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		addr := a.cfg.Listen
		if serveListen != "" {
			addr = serveListen
		}
		log.Info("docs agent starting",
			"repo", a.cfg.Owner+"/"+a.cfg.Repo,
			"base_dir", a.cfg.BaseDir,
			"branch_prefix", a.cfg.BranchPrefix)

		return serve.NewServer(a.provider, a.registry).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default $PORT, $DOCS_AGENT_LISTEN or :3000)")
	rootCmd.AddCommand(serveCmd)
}
