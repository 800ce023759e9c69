package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/medic/medic-conf/internal/core"
	"github.com/medic/medic-conf/internal/watch"
	"github.com/medic/medic-conf/pkg/models"
	"github.com/spf13/cobra"
)

var (
	watchProject     string
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-evaluate contacts whenever rules or contacts change",
	Long: `Evaluate the project's contacts, then watch the project directory and
re-evaluate after every change to a rule file or contact document.

Each run prints a one-line summary. With --metrics-addr (or
observability.metrics_addr in .medicconf) evaluation counters are served for
Prometheus at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(watchProject)
		if err != nil {
			return err
		}

		debounce := watch.DefaultDebounce
		if p.config.WatchDebounce != "" {
			if debounce, err = time.ParseDuration(p.config.WatchDebounce); err != nil {
				return fmt.Errorf("parsing watch.debounce: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()

		addr := watchMetricsAddr
		if addr == "" {
			addr = p.config.MetricsAddr
		}
		if addr != "" && Prom != nil {
			srv := serveMetrics(addr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		out := cmd.OutOrStdout()
		if err := reevaluate(ctx, p, out); err != nil {
			slog.Error("initial evaluation failed", "error", err)
		}

		w, err := watch.New(watch.Config{Debounce: debounce}, slog.Default(), p.dir)
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		err = watch.Run(ctx, w, func(ctx context.Context, b watch.Batch) error {
			slog.Info("change detected", "changed", b.Paths, "removed", b.Removed)
			return reevaluate(ctx, p, out)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// reevaluate recompiles the project and evaluates every configured contact
// as one run.
func reevaluate(ctx context.Context, p *project, out io.Writer) error {
	sink, run := newEventSink()
	program, err := p.compile(sink)
	if err != nil {
		return err
	}
	contacts, err := p.loadContacts(nil)
	if err != nil {
		return err
	}
	now, err := p.now("")
	if err != nil {
		return err
	}
	results, err := program.EvaluateBatch(ctx, contacts, now, p.config.Workers)
	if err != nil {
		return err
	}
	writeRunSummary(out, run, results, now)
	return nil
}

func writeRunSummary(w io.Writer, run string, results []core.ContactResult, now time.Time) {
	tasks, overdue := 0, 0
	for _, r := range results {
		for _, t := range models.Tasks(r.Emitted) {
			tasks++
			if core.IsOverdue(t, now) {
				overdue++
			}
		}
	}
	if len(run) > 8 {
		run = run[:8]
	}
	fmt.Fprintf(w, "%s run %s: %d contact(s), %d task(s), %d overdue\n",
		now.Format("15:04:05"), run, len(results), tasks, overdue)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Prom.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
	return srv
}

func init() {
	watchCmd.Flags().StringVar(&watchProject, "project", "", "Rule project directory (default from .medicconf)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	registerFlagCompletion(watchCmd, "project", completeProjectDirs)
	rootCmd.AddCommand(watchCmd)
}
