package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var alertsNotify bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts for the latest evaluation run",
	Long: `Evaluate alert conditions against the latest evaluation run in the event log
and display any triggered alerts.

Alerts fire when contact evaluations failed or when too many tasks are
overdue. With --notify the alerts are also posted to the configured Slack
webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (observability may be disabled)")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
			return nil
		}

		fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			severity := strings.ToUpper(string(alert.Severity))
			fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
			for _, d := range alert.Details {
				fmt.Fprintf(out, "         - %s: %s\n", d.ContactID, d.Detail)
			}
			fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
		}

		if !alertsNotify {
			return nil
		}
		if Notifier == nil {
			return fmt.Errorf("notifications are not configured (set notifications.slack.webhook_url in .medicconf)")
		}
		if err := Notifier.Notify(alerts); err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		fmt.Fprintf(out, "Sent %d alert(s) to Slack.\n", len(alerts))
		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post the alerts to the configured Slack webhook")
	rootCmd.AddCommand(alertsCmd)
}
