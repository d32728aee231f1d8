package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// LaunchFailureCode is the sentinel exit code recorded when the external
// process could not be started at all (missing or non-executable program).
const LaunchFailureCode = 127

// ReportSink receives one outcome per completed task. Append errors are
// fatal for the remainder of the sweep: the report is the durable record.
type ReportSink interface {
	Append(o Outcome) error
}

// Recorder persists sweep history. It is supplementary to the report:
// recording errors are logged, never fatal.
type Recorder interface {
	BeginSweep(ctx context.Context, cfg SweepConfig, reportPath string) (string, error)
	RecordOutcome(ctx context.Context, sweepID string, seq int, o Outcome) error
	FinishSweep(ctx context.Context, sweepID string, finishedAt time.Time) error
}

// Runner executes the full grid of external tasks, one at a time.
type Runner struct {
	cfg        SweepConfig
	exec       CommandRunner
	report     ReportSink
	recorder   Recorder
	logger     *slog.Logger
	reportPath string
	dryRun     io.Writer
}

// NewRunner constructs a sweep runner. recorder may be nil when history
// persistence is disabled.
func NewRunner(cfg SweepConfig, exec CommandRunner, report ReportSink, recorder Recorder, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		exec:     exec,
		report:   report,
		recorder: recorder,
		logger:   logger,
	}
}

// SetReportPath records where the report lives so sweep history can point
// back at it.
func (r *Runner) SetReportPath(path string) {
	r.reportPath = path
}

// SetDryRun switches Run to printing each constructed command line to w
// instead of executing it. Nothing is launched, reported, or recorded.
func (r *Runner) SetDryRun(w io.Writer) {
	r.dryRun = w
}

// Run enumerates datasets (outer) then models (inner) and executes one task
// per pair. Task failures, including launch failures, never abort the grid;
// every pair is visited exactly once. The returned error is non-nil only for
// configuration errors or report write errors. In dry-run mode the grid is
// printed instead of executed and no outcomes are returned.
func (r *Runner) Run(ctx context.Context) ([]Outcome, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep config: %w", err)
	}

	if r.dryRun != nil {
		for _, dataset := range r.cfg.Datasets {
			for _, model := range r.cfg.Models {
				fmt.Fprintln(r.dryRun, BuildTask(r.cfg, dataset, model).CommandLine())
			}
		}
		return nil, nil
	}

	var sweepID string
	if r.recorder != nil {
		id, err := r.recorder.BeginSweep(ctx, r.cfg, r.reportPath)
		if err != nil {
			r.logger.Warn("begin sweep record", "err", err)
		} else {
			sweepID = id
		}
	}

	outcomes := make([]Outcome, 0, r.cfg.GridSize())
	seq := 0
	for _, dataset := range r.cfg.Datasets {
		for _, model := range r.cfg.Models {
			task := BuildTask(r.cfg, dataset, model)
			r.logger.Info("starting task",
				"dataset", dataset,
				"model", model,
				"command", task.CommandLine())

			o := r.runOne(ctx, task)
			r.logger.Info("task finished",
				"dataset", dataset,
				"model", model,
				"duration_seconds", o.Seconds,
				"status", o.StatusLabel())

			if err := r.report.Append(o); err != nil {
				return outcomes, fmt.Errorf("append report line: %w", err)
			}
			if sweepID != "" {
				if err := r.recorder.RecordOutcome(ctx, sweepID, seq, o); err != nil {
					r.logger.Warn("record outcome", "sweep_id", sweepID, "err", err)
				}
			}
			outcomes = append(outcomes, o)
			seq++
		}
	}

	if sweepID != "" {
		if err := r.recorder.FinishSweep(ctx, sweepID, time.Now().UTC()); err != nil {
			r.logger.Warn("finish sweep record", "sweep_id", sweepID, "err", err)
		}
	}
	return outcomes, nil
}

func (r *Runner) runOne(ctx context.Context, task Task) Outcome {
	startedAt := time.Now()
	code, err := r.exec.Run(ctx, task)
	elapsed := time.Since(startedAt)

	o := Outcome{
		Dataset:   task.Dataset,
		Model:     task.Model,
		Seconds:   int(elapsed / time.Second),
		StartedAt: startedAt.UTC(),
		EndedAt:   startedAt.Add(elapsed).UTC(),
	}
	switch {
	case err != nil:
		r.logger.Warn("task failed to launch",
			"dataset", task.Dataset,
			"model", task.Model,
			"err", err)
		o.Status = TaskStatusFailed
		o.ExitCode = LaunchFailureCode
	case code == 0:
		o.Status = TaskStatusSucceeded
	default:
		o.Status = TaskStatusFailed
		o.ExitCode = code
	}
	return o
}
