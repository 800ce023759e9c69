package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/medic/medic-conf/internal/core"
	"github.com/medic/medic-conf/pkg/models"
	"github.com/spf13/cobra"
)

// Output formats of the evaluate command.
const (
	formatJSON  = "json"
	formatJSONL = "jsonl"
	formatTable = "table"
)

var (
	evaluateProject string
	evaluateNow     string
	evaluateFormat  string
	evaluateWorkers int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [contact files or globs...]",
	Short: "Evaluate task rules against contact documents",
	Long: `Compile the project's rules and evaluate them against each contact,
printing every task instance followed by a completion marker per contact.

Contacts are read from the given files or doublestar globs (e.g.
"contacts/**/*.json"); without arguments the configured contacts glob of the
project is used. Dates given to --now are read in the project's timezone.

Formats:
  json   one JSON document listing each contact's emissions (default)
  jsonl  one emission per line
  table  a task table for reading in the terminal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch evaluateFormat {
		case formatJSON, formatJSONL, formatTable:
		default:
			return fmt.Errorf("unsupported format %q (use json, jsonl or table)", evaluateFormat)
		}

		p, err := loadProject(evaluateProject)
		if err != nil {
			return err
		}
		now, err := p.now(evaluateNow)
		if err != nil {
			return fmt.Errorf("parsing --now: %w", err)
		}

		sink, run := newEventSink()
		program, err := p.compile(sink)
		if err != nil {
			return err
		}
		contacts, err := p.loadContacts(args)
		if err != nil {
			return err
		}
		if len(contacts) == 0 {
			return fmt.Errorf("no contact documents matched")
		}

		workers := evaluateWorkers
		if workers <= 0 {
			workers = p.config.Workers
		}
		results, err := program.EvaluateBatch(commandContext(cmd), contacts, now, workers)
		if err != nil {
			return err
		}
		slog.Info("evaluation finished", "run", run, "contacts", len(results))

		return writeResults(cmd.OutOrStdout(), evaluateFormat, results, now)
	},
}

type contactEmissions struct {
	ContactID string            `json:"contact_id"`
	Emissions []models.Emission `json:"emissions"`
}

// writeResults renders batch results in format.
func writeResults(w io.Writer, format string, results []core.ContactResult, now time.Time) error {
	switch format {
	case formatJSONL:
		enc := json.NewEncoder(w)
		for _, r := range results {
			for _, e := range r.Emitted {
				if err := enc.Encode(e); err != nil {
					return fmt.Errorf("encoding emission: %w", err)
				}
			}
		}
		return nil
	case formatTable:
		_, err := fmt.Fprintln(w, renderTaskTable(results, now))
		return err
	default:
		out := make([]contactEmissions, len(results))
		for i, r := range results {
			out[i] = contactEmissions{ContactID: r.ContactID, Emissions: r.Emitted}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("formatting results as JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}

// taskState labels a task for display.
func taskState(t models.TaskInstance, now time.Time) string {
	switch {
	case t.Resolved:
		return "resolved"
	case core.IsOverdue(t, now):
		return "overdue"
	default:
		return "due"
	}
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderTaskTable(results []core.ContactResult, now time.Time) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("CONTACT", "TASK", "DUE", "STATE", "TITLE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})

	count := 0
	for _, r := range results {
		for _, task := range models.Tasks(r.Emitted) {
			state := styleForState(taskState(task, now)).Render(taskState(task, now))
			t.Row(r.ContactID, task.ID, task.Date.Format("2006-01-02"), state, task.Title)
			count++
		}
	}
	return fmt.Sprintf("%s\n%d task(s) for %d contact(s)", t.Render(), count, len(results))
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateProject, "project", "", "Rule project directory (default from .medicconf)")
	evaluateCmd.Flags().StringVar(&evaluateNow, "now", "", "Evaluation time as RFC3339 or YYYY-MM-DD (default: now)")
	evaluateCmd.Flags().StringVar(&evaluateFormat, "format", formatJSON, "Output format: json, jsonl or table")
	evaluateCmd.Flags().IntVar(&evaluateWorkers, "workers", 0, "Concurrent contact evaluations (default from .medicconf)")
	registerFlagCompletion(evaluateCmd, "project", completeProjectDirs)
	registerFlagCompletion(evaluateCmd, "format", completeFormats)
	evaluateCmd.ValidArgsFunction = completeContactFiles
	rootCmd.AddCommand(evaluateCmd)
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
