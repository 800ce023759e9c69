package core

import (
	"fmt"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

// Window is the computed due date and actionable span of one event.
//
// Both ends are inclusive at day granularity: Start is midnight of the
// first actionable day and End is midnight of the last actionable day, so
// now is actionable anywhere from Start up to (but excluding) midnight
// after End.
type Window struct {
	Due        time.Time
	Start      time.Time
	End        time.Time
	Actionable bool
}

// CalculateWindow computes the window of event relative to reference, as
// seen from now. Day boundaries are taken in now's location.
func CalculateWindow(event models.Event, reference, now time.Time) (Window, error) {
	if err := validateEvent(event); err != nil {
		return Window{}, err
	}

	base := startOfDay(reference.In(now.Location()))
	start := base.AddDate(0, 0, event.Start)
	end := base.AddDate(0, 0, event.End)
	endExclusive := end.AddDate(0, 0, 1)

	return Window{
		Due:        start,
		Start:      start,
		End:        end,
		Actionable: !now.Before(start) && now.Before(endExclusive),
	}, nil
}

// Overdue reports whether now lies after the last actionable day.
func (w Window) Overdue(now time.Time) bool {
	return !now.Before(w.End.AddDate(0, 0, 1))
}

func validateEvent(event models.Event) error {
	if event.Start > event.End {
		return fmt.Errorf("event %q start %d is after end %d: %w", event.ID, event.Start, event.End, ErrInvalidWindow)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseNow parses an evaluation time given as RFC3339 or as a date. A date
// means midday in loc, so the whole day's windows are in view.
func ParseNow(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or YYYY-MM-DD", s)
	}
	return d.Add(12 * time.Hour), nil
}
