package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

type scriptedRunner struct {
	codes []int
	errs  []error
	calls []Task
}

func (r *scriptedRunner) Run(ctx context.Context, task Task) (int, error) {
	i := len(r.calls)
	r.calls = append(r.calls, task)
	var code int
	if i < len(r.codes) {
		code = r.codes[i]
	}
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return code, err
}

type memorySink struct {
	outcomes []Outcome
	failAt   int // 1-based append index that fails; 0 never fails
}

func (s *memorySink) Append(o Outcome) error {
	if s.failAt > 0 && len(s.outcomes)+1 == s.failAt {
		return errors.New("disk full")
	}
	s.outcomes = append(s.outcomes, o)
	return nil
}

type memoryRecorder struct {
	beginErr error
	sweepID  string
	recorded []Outcome
	finished bool
}

func (r *memoryRecorder) BeginSweep(ctx context.Context, cfg SweepConfig, reportPath string) (string, error) {
	if r.beginErr != nil {
		return "", r.beginErr
	}
	r.sweepID = "sweep-1"
	return r.sweepID, nil
}

func (r *memoryRecorder) RecordOutcome(ctx context.Context, sweepID string, seq int, o Outcome) error {
	r.recorded = append(r.recorded, o)
	return nil
}

func (r *memoryRecorder) FinishSweep(ctx context.Context, sweepID string, finishedAt time.Time) error {
	r.finished = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(datasets, models []string) SweepConfig {
	return SweepConfig{
		Name:     "test",
		Program:  "solve",
		Datasets: datasets,
		Models:   models,
		Params: Params{
			Workers:         50,
			DevMode:         1,
			ErrorCorrection: 1,
		},
	}
}

func TestRunnerVisitsGridInNestedOrder(t *testing.T) {
	cfg := testConfig([]string{"A", "B"}, []string{"m1", "m2"})
	exec := &scriptedRunner{}
	sink := &memorySink{}

	outcomes, err := NewRunner(cfg, exec, sink, nil, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct{ dataset, model string }{
		{"A", "m1"}, {"A", "m2"}, {"B", "m1"}, {"B", "m2"},
	}
	if len(outcomes) != len(want) {
		t.Fatalf("want %d outcomes, got %d", len(want), len(outcomes))
	}
	for i, w := range want {
		if exec.calls[i].Dataset != w.dataset || exec.calls[i].Model != w.model {
			t.Errorf("call %d: want (%s, %s), got (%s, %s)",
				i, w.dataset, w.model, exec.calls[i].Dataset, exec.calls[i].Model)
		}
		if outcomes[i].Dataset != w.dataset || outcomes[i].Model != w.model {
			t.Errorf("outcome %d: want (%s, %s), got (%s, %s)",
				i, w.dataset, w.model, outcomes[i].Dataset, outcomes[i].Model)
		}
	}
}

func TestRunnerAllSucceed(t *testing.T) {
	cfg := testConfig([]string{"A", "B"}, []string{"m1"})
	sink := &memorySink{}

	outcomes, err := NewRunner(cfg, &scriptedRunner{}, sink, nil, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, o := range outcomes {
		if o.Status != TaskStatusSucceeded {
			t.Errorf("outcome %d: want succeeded, got %s", i, o.Status)
		}
		if o.StatusLabel() != "success" {
			t.Errorf("outcome %d: want label success, got %s", i, o.StatusLabel())
		}
	}
}

func TestRunnerAllFailWithCode(t *testing.T) {
	cfg := testConfig([]string{"A", "B"}, []string{"m1"})
	exec := &scriptedRunner{codes: []int{7, 7}}
	sink := &memorySink{}

	outcomes, err := NewRunner(cfg, exec, sink, nil, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("task failures must not fail the sweep: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("want 2 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Status != TaskStatusFailed || o.ExitCode != 7 {
			t.Errorf("outcome %d: want failed(7), got %s", i, o.StatusLabel())
		}
	}
}

func TestRunnerAlternatingOutcomes(t *testing.T) {
	cfg := testConfig([]string{"A", "B"}, []string{"m1", "m2"})
	// Even-indexed pairs fail with 1, odd-indexed pairs succeed.
	exec := &scriptedRunner{codes: []int{1, 0, 1, 0}}
	sink := &memorySink{}

	outcomes, err := NewRunner(cfg, exec, sink, nil, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantLabels := []string{"failed(1)", "success", "failed(1)", "success"}
	for i, o := range outcomes {
		if o.StatusLabel() != wantLabels[i] {
			t.Errorf("outcome %d: want %s, got %s", i, wantLabels[i], o.StatusLabel())
		}
	}
}

func TestRunnerLaunchFailureContinues(t *testing.T) {
	cfg := testConfig([]string{"A", "B"}, []string{"m1", "m2"})
	exec := &scriptedRunner{errs: []error{errors.New("no such file or directory")}}
	sink := &memorySink{}

	outcomes, err := NewRunner(cfg, exec, sink, nil, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("launch failure must not fail the sweep: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("want full grid of 4 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != TaskStatusFailed || outcomes[0].ExitCode != LaunchFailureCode {
		t.Errorf("want failed(%d) for unlaunchable task, got %s", LaunchFailureCode, outcomes[0].StatusLabel())
	}
	for i := 1; i < 4; i++ {
		if outcomes[i].Status != TaskStatusSucceeded {
			t.Errorf("outcome %d: want succeeded, got %s", i, outcomes[i].Status)
		}
	}
}

func TestRunnerReportWriteErrorAborts(t *testing.T) {
	cfg := testConfig([]string{"A", "B"}, []string{"m1", "m2"})
	exec := &scriptedRunner{}
	sink := &memorySink{failAt: 2}

	outcomes, err := NewRunner(cfg, exec, sink, nil, discardLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("want error when report write fails")
	}
	if len(exec.calls) != 2 {
		t.Errorf("want enumeration to stop after the failing append, got %d calls", len(exec.calls))
	}
	if len(outcomes) != 1 {
		t.Errorf("want 1 completed outcome before the failure, got %d", len(outcomes))
	}
}

func TestRunnerRecordsHistory(t *testing.T) {
	cfg := testConfig([]string{"A"}, []string{"m1", "m2"})
	rec := &memoryRecorder{}
	sink := &memorySink{}

	if _, err := NewRunner(cfg, &scriptedRunner{}, sink, rec, discardLogger()).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.sweepID == "" {
		t.Error("sweep record was never begun")
	}
	if len(rec.recorded) != 2 {
		t.Errorf("want 2 recorded outcomes, got %d", len(rec.recorded))
	}
	if !rec.finished {
		t.Error("sweep record was never finished")
	}
}

func TestRunnerRecorderFailureIsNotFatal(t *testing.T) {
	cfg := testConfig([]string{"A"}, []string{"m1"})
	rec := &memoryRecorder{beginErr: errors.New("database locked")}
	sink := &memorySink{}

	outcomes, err := NewRunner(cfg, &scriptedRunner{}, sink, rec, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("recorder failure must not fail the sweep: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("want 1 outcome, got %d", len(outcomes))
	}
}

func TestRunnerDryRunExecutesNothing(t *testing.T) {
	cfg := testConfig([]string{"A", "B"}, []string{"m1", "m2"})
	exec := &scriptedRunner{}
	sink := &memorySink{}
	rec := &memoryRecorder{}

	var buf bytes.Buffer
	runner := NewRunner(cfg, exec, sink, rec, discardLogger())
	runner.SetDryRun(&buf)

	outcomes, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("dry run must produce no outcomes, got %d", len(outcomes))
	}
	if len(exec.calls) != 0 {
		t.Errorf("dry run must not execute any task, got %d calls", len(exec.calls))
	}
	if len(sink.outcomes) != 0 {
		t.Errorf("dry run must not append to the report, got %d lines", len(sink.outcomes))
	}
	if rec.sweepID != "" || rec.finished {
		t.Error("dry run must not touch sweep history")
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"solve --all-dirs --data-path A --model m1 --num-workers 50 --devmode 1 --error-correction 1",
		"solve --all-dirs --data-path A --model m2 --num-workers 50 --devmode 1 --error-correction 1",
		"solve --all-dirs --data-path B --model m1 --num-workers 50 --devmode 1 --error-correction 1",
		"solve --all-dirs --data-path B --model m2 --num-workers 50 --devmode 1 --error-correction 1",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("dry run lines mismatch:\nwant %v\ngot  %v", want, lines)
	}
}

func TestRunnerDryRunStillValidatesConfig(t *testing.T) {
	cfg := testConfig(nil, []string{"m1"})
	var buf bytes.Buffer
	runner := NewRunner(cfg, &scriptedRunner{}, &memorySink{}, nil, discardLogger())
	runner.SetDryRun(&buf)

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("want configuration error for empty dataset list")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing may be printed for invalid config, got %q", buf.String())
	}
}

func TestSweepConfigValidate(t *testing.T) {
	missingDir := t.TempDir() + "/does-not-exist"

	tests := []struct {
		name    string
		mutate  func(*SweepConfig)
		wantErr bool
	}{
		{"valid", func(c *SweepConfig) {}, false},
		{"missing program", func(c *SweepConfig) { c.Program = "" }, true},
		{"empty datasets", func(c *SweepConfig) { c.Datasets = nil }, true},
		{"empty models", func(c *SweepConfig) { c.Models = nil }, true},
		{"zero workers", func(c *SweepConfig) { c.Params.Workers = 0 }, true},
		{"missing workdir", func(c *SweepConfig) { c.WorkDir = missingDir }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig([]string{"A"}, []string{"m1"})
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("want error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("want nil, got %v", err)
			}
		})
	}
}

func TestRunnerRejectsEmptyGridBeforeAnyTask(t *testing.T) {
	cfg := testConfig(nil, []string{"m1"})
	exec := &scriptedRunner{}
	sink := &memorySink{}

	if _, err := NewRunner(cfg, exec, sink, nil, discardLogger()).Run(context.Background()); err == nil {
		t.Fatal("want configuration error for empty dataset list")
	}
	if len(exec.calls) != 0 {
		t.Errorf("no task may run on invalid config, got %d calls", len(exec.calls))
	}
	if len(sink.outcomes) != 0 {
		t.Errorf("nothing may be appended on invalid config, got %d lines", len(sink.outcomes))
	}
}
