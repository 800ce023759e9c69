package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var (
	verbose bool
	silent  bool
)

var rootCmd = &cobra.Command{
	Use:   "medic-conf",
	Short: "Evaluate CHT task rules against contact documents",
	Long: `medic-conf compiles a project's task and target rules and evaluates them
against contacts and their reports, producing the task instances a health
worker would see.

It provides commands for evaluating contacts, validating rule projects,
re-evaluating on change, and inspecting evaluation metrics and alerts.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(cmd.ErrOrStderr())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "medic-conf %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

// logLevel maps the verbosity flags to a slog level.
func logLevel() slog.Level {
	switch {
	case verbose:
		return slog.LevelDebug
	case silent:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// configureLogging installs the default logger for the command run.
func configureLogging(w io.Writer) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel()})))
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log debug output")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "Only log errors")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "silent")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
