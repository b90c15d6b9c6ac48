package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	fixitmcp "github.com/joescharf/fixit/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Tools act as the user named by --as / identity.user_id. Configure in
Claude Code with:

  {
    "mcpServers": {
      "fixit": { "command": "fixit", "args": ["mcp", "--as", "<user-id>"] }
    }
  }

Available tools: fixit_create_issue, fixit_get_issue, fixit_list_issues,
fixit_update_issue, fixit_delete_issue, fixit_create_suggestion,
fixit_get_suggestion, fixit_list_suggestions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		issues, workflow, err := newTracker()
		if err != nil {
			return err
		}
		actor, err := actingIdentity(ctx)
		if err != nil {
			return err
		}

		// stdout carries the protocol; logs go to stderr.
		workflow.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

		srv := fixitmcp.NewServer(issues, workflow, actor, buildVersion)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
