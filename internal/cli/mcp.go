package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	medicmcp "github.com/medic/medic-conf/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpProject string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the medic-conf MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the medic-conf MCP server on stdio",
	Long: `Start the medic-conf MCP server on stdio transport.

The server exposes rule evaluation as MCP tools that AI assistants can call:
evaluate_contact, list_definitions, get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Compiler == nil {
			return fmt.Errorf("rules compiler not initialized")
		}
		p, err := loadProject(mcpProject)
		if err != nil {
			return err
		}

		srv := medicmcp.NewServer(Compiler, p.dir, p.contacts, appVersion,
			medicmcp.WithObservability(MetricsCalc, AlertEngine),
			medicmcp.WithLocation(p.location),
			medicmcp.WithWindowPolicy(p.config.EffectiveWindowPolicy()),
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpProject, "project", "", "Rule project directory (default from .medicconf)")
	registerFlagCompletion(mcpServeCmd, "project", completeProjectDirs)
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
