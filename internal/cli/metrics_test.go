package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/medic/medic-conf/internal/observability"
)

// --- parseSinceDuration unit tests ---

func TestParseSinceDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"empty defaults to 7d", "", false, ""},
		{"whitespace defaults to 7d", "  ", false, ""},
		{"valid 7d", "7d", false, ""},
		{"valid 30d", "30d", false, ""},
		{"valid 24h", "24h", false, ""},
		{"valid 1h", "1h", false, ""},
		{"invalid suffix", "abc", true, "unsupported duration format"},
		{"invalid day number", "xd", true, "invalid day duration"},
		{"invalid hour number", "yh", true, "invalid hour duration"},
		{"negative day is still valid", "-5d", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSinceDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

// --- metricsCmd tests ---

type metricsMock struct {
	calcFn func(since time.Time) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	return m.calcFn(since)
}

// withMetrics swaps MetricsCalc and the metrics flags for one test and
// captures the command output.
func withMetrics(t *testing.T, calc observability.MetricsCalculator, since string, asJSON bool) *bytes.Buffer {
	t.Helper()
	orig, origSince, origJSON := MetricsCalc, metricsSince, metricsJSON
	t.Cleanup(func() {
		MetricsCalc, metricsSince, metricsJSON = orig, origSince, origJSON
		metricsCmd.SetOut(nil)
	})
	MetricsCalc, metricsSince, metricsJSON = calc, since, asJSON

	var out bytes.Buffer
	metricsCmd.SetOut(&out)
	return &out
}

func TestMetricsCmd_NilCalculator(t *testing.T) {
	withMetrics(t, nil, "7d", false)

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil {
		t.Fatal("expected error when MetricsCalc is nil")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_InvalidSinceFormat(t *testing.T) {
	calc := &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{}, nil
		},
	}

	tests := []struct {
		name   string
		since  string
		errMsg string
	}{
		{"invalid suffix", "abc", "unsupported duration format"},
		{"invalid day number", "xd", "invalid day duration"},
		{"invalid hour number", "yh", "invalid hour duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withMetrics(t, calc, tt.since, false)
			err := metricsCmd.RunE(metricsCmd, []string{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q should contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestMetricsCmd_Success_TableFormat(t *testing.T) {
	out := withMetrics(t, &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{
				Runs:              2,
				Evaluations:       12,
				Failures:          1,
				ContactsEvaluated: 11,
				TasksEmitted:      30,
				TasksOverdue:      4,
				EventCount:        16,
				TasksByDefinition: map[string]int{"pnc": 10, "anc": 20},
			}, nil
		},
	}, "7d", false)

	if err := metricsCmd.RunE(metricsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Evaluation runs:", "Failed evaluations:", "Tasks overdue:"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	anc, pnc := strings.Index(text, "anc:"), strings.Index(text, "pnc:")
	if anc < 0 || pnc < 0 || anc > pnc {
		t.Errorf("definitions should be listed in name order:\n%s", text)
	}
}

func TestMetricsCmd_Success_JSONFormat(t *testing.T) {
	out := withMetrics(t, &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{TasksEmitted: 2, EventCount: 10}, nil
		},
	}, "30d", true)

	if err := metricsCmd.RunE(metricsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m observability.Metrics
	if err := json.Unmarshal(out.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if m.TasksEmitted != 2 || m.EventCount != 10 {
		t.Errorf("decoded metrics = %+v", m)
	}
}

func TestMetricsCmd_CalculateError(t *testing.T) {
	withMetrics(t, &metricsMock{
		calcFn: func(since time.Time) (*observability.Metrics, error) {
			return nil, fmt.Errorf("event log corrupted")
		},
	}, "7d", false)

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil {
		t.Fatal("expected error from Calculate")
	}
	if !strings.Contains(err.Error(), "calculating metrics") {
		t.Errorf("unexpected error: %v", err)
	}
}
