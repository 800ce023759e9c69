package core

import (
	"errors"
	"testing"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

func TestCalculateWindow_DueIsReferencePlusStart(t *testing.T) {
	ref := testDay.Add(15 * time.Hour)
	w, err := CalculateWindow(models.Event{Start: 3, End: 5}, ref, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := testDay.AddDate(0, 0, 3); !w.Due.Equal(want) {
		t.Errorf("Due = %v, want %v", w.Due, want)
	}
	if want := testDay.AddDate(0, 0, 5); !w.End.Equal(want) {
		t.Errorf("End = %v, want %v", w.End, want)
	}
	if w.Actionable {
		t.Error("window starting in three days should not be actionable yet")
	}
}

func TestCalculateWindow_Boundaries(t *testing.T) {
	event := models.Event{ID: "e", Start: -1, End: 1}
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", testDay.AddDate(0, 0, -1).Add(-time.Nanosecond), false},
		{"first instant of start day", testDay.AddDate(0, 0, -1), true},
		{"reference day", testNow, true},
		{"last instant of end day", testDay.AddDate(0, 0, 2).Add(-time.Nanosecond), true},
		{"midnight after end day", testDay.AddDate(0, 0, 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := CalculateWindow(event, testDay, tt.now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w.Actionable != tt.want {
				t.Errorf("Actionable at %v = %v, want %v", tt.now, w.Actionable, tt.want)
			}
		})
	}
}

func TestCalculateWindow_SingleDay(t *testing.T) {
	w, err := CalculateWindow(models.Event{Start: 0, End: 0}, testDay, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Actionable {
		t.Error("zero-length window should be actionable during its day")
	}
}

func TestCalculateWindow_InvalidEvent(t *testing.T) {
	_, err := CalculateWindow(models.Event{ID: "bad", Start: 2, End: 1}, testDay, testNow)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestCalculateWindow_UsesLocationOfNow(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 22:00 UTC on testDay is already the next day in UTC+3.
	ref := testDay.Add(22 * time.Hour)
	now := time.Date(2024, 3, 6, 9, 0, 0, 0, loc)

	w, err := CalculateWindow(models.Event{Start: 0, End: 0}, ref, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 3, 6, 0, 0, 0, 0, loc)
	if !w.Due.Equal(want) {
		t.Errorf("Due = %v, want %v", w.Due, want)
	}
	if !w.Actionable {
		t.Error("window should be actionable on the local reference day")
	}
}

func TestWindow_Overdue(t *testing.T) {
	w, err := CalculateWindow(models.Event{Start: -10, End: -3}, testDay, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Overdue(testNow) {
		t.Error("window ending three days ago should be overdue")
	}

	w, _ = CalculateWindow(models.Event{Start: -1, End: 0}, testDay, testNow)
	if w.Overdue(testNow) {
		t.Error("window ending today should not be overdue")
	}
}

func TestParseNow(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)

	got, err := ParseNow("2024-03-05", nairobi)
	if err != nil {
		t.Fatalf("ParseNow: %v", err)
	}
	if want := time.Date(2024, 3, 5, 12, 0, 0, 0, nairobi); !got.Equal(want) {
		t.Errorf("date input = %v, want %v", got, want)
	}

	got, err = ParseNow("2024-03-05T22:30:00Z", nairobi)
	if err != nil {
		t.Fatalf("ParseNow: %v", err)
	}
	if got.Location() != nairobi || got.Day() != 6 {
		t.Errorf("RFC3339 input = %v, want it shown in EAT on the 6th", got)
	}

	if _, err := ParseNow("05/03/2024", nairobi); err == nil {
		t.Error("expected error for an unsupported format")
	}
}
