package core

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/medic/medic-conf/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ContactResult is the emission stream of one contact in a batch.
type ContactResult struct {
	ContactID string
	Emitted   []models.Emission
}

// EvaluateBatch runs the program against every contact using up to
// workers goroutines. Each contact is evaluated independently; results
// keep the input order. The first failing contact cancels the batch and
// its error is returned. The run is bracketed by run.started and
// run.finished events.
func (p *Program) EvaluateBatch(ctx context.Context, contacts []*models.Contact, now time.Time, workers int) ([]ContactResult, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p.logEvent("run.started", map[string]any{"contacts": len(contacts), "workers": workers})

	results := make([]ContactResult, len(contacts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, contact := range contacts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			emitted, err := p.Run(contact, now)
			if err != nil {
				return fmt.Errorf("evaluating contact %q: %w", contactID(contact), err)
			}
			results[i] = ContactResult{ContactID: contact.ID, Emitted: emitted}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.logEvent("run.finished", map[string]any{"contacts": len(contacts), "error": err.Error()})
		return nil, err
	}

	tasks := 0
	for _, r := range results {
		tasks += len(models.Tasks(r.Emitted))
	}
	p.logEvent("run.finished", map[string]any{"contacts": len(contacts), "tasks": tasks})
	return results, nil
}

func contactID(c *models.Contact) string {
	if c == nil {
		return ""
	}
	return c.ID
}
