package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sweeprun/internal/core"
)

var ErrSweepNotFound = errors.New("sweep not found")

// SweepRow is one recorded sweep execution.
type SweepRow struct {
	ID         string
	Name       string
	Program    string
	WorkDir    string
	Datasets   []string
	Models     []string
	Params     core.Params
	ReportPath string
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// OutcomeRow is one recorded task outcome.
type OutcomeRow struct {
	ID        string
	SweepID   string
	Seq       int
	Dataset   string
	Model     string
	Status    core.TaskStatus
	ExitCode  int
	Seconds   int
	StartedAt time.Time
	EndedAt   time.Time
	CreatedAt time.Time
}

type paramsJSON struct {
	Workers         int     `json:"workers"`
	DevMode         int     `json:"devmode"`
	ErrorCorrection int     `json:"error_correction"`
	RAGMode         *string `json:"rag_mode,omitempty"`
}

// BeginSweep records a new sweep and returns its identifier.
func (s *Store) BeginSweep(ctx context.Context, cfg core.SweepConfig, reportPath string) (string, error) {
	id := core.NewID()
	datasets, err := json.Marshal(cfg.Datasets)
	if err != nil {
		return "", fmt.Errorf("marshal datasets: %w", err)
	}
	models, err := json.Marshal(cfg.Models)
	if err != nil {
		return "", fmt.Errorf("marshal models: %w", err)
	}
	params, err := json.Marshal(paramsJSON{
		Workers:         cfg.Params.Workers,
		DevMode:         cfg.Params.DevMode,
		ErrorCorrection: cfg.Params.ErrorCorrection,
		RAGMode:         cfg.Params.RAGMode,
	})
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO sweeps (id, name, program, work_dir, datasets, models, params, report_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, cfg.Name, cfg.Program, cfg.WorkDir, string(datasets), string(models), string(params),
		reportPath, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert sweep: %w", err)
	}
	return id, nil
}

// RecordOutcome appends one task outcome to the sweep's history.
func (s *Store) RecordOutcome(ctx context.Context, sweepID string, seq int, o core.Outcome) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO outcomes (id, sweep_id, seq, dataset, model, status, exit_code, duration_seconds, started_at, ended_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, core.NewID(), sweepID, seq, o.Dataset, o.Model, string(o.Status), o.ExitCode, o.Seconds,
		o.StartedAt.UTC().Format(time.RFC3339Nano), o.EndedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishSweep marks the sweep as completed.
func (s *Store) FinishSweep(ctx context.Context, sweepID string, finishedAt time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE sweeps SET finished_at = ? WHERE id = ?
	`, finishedAt.UTC().Format(time.RFC3339Nano), sweepID)
	if err != nil {
		return fmt.Errorf("finish sweep: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSweepNotFound
	}
	return nil
}

// GetSweep loads one sweep by ID.
func (s *Store) GetSweep(ctx context.Context, id string) (*SweepRow, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, program, work_dir, datasets, models, params, report_path, created_at, finished_at
		FROM sweeps WHERE id = ?
	`, id)
	sweep, err := scanSweep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSweepNotFound
		}
		return nil, err
	}
	return sweep, nil
}

// ListSweeps returns recorded sweeps, newest first.
func (s *Store) ListSweeps(ctx context.Context, limit, offset int) ([]*SweepRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, program, work_dir, datasets, models, params, report_path, created_at, finished_at
		FROM sweeps
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sweeps: %w", err)
	}
	defer rows.Close()
	var sweeps []*SweepRow
	for rows.Next() {
		sweep, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, sweep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sweeps, nil
}

// ListOutcomes returns a sweep's outcomes in enumeration order.
func (s *Store) ListOutcomes(ctx context.Context, sweepID string) ([]*OutcomeRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, sweep_id, seq, dataset, model, status, exit_code, duration_seconds, started_at, ended_at, created_at
		FROM outcomes
		WHERE sweep_id = ?
		ORDER BY seq ASC
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()
	var outcomes []*OutcomeRow
	for rows.Next() {
		var (
			o         OutcomeRow
			status    string
			startedAt string
			endedAt   string
			createdAt string
		)
		if err := rows.Scan(&o.ID, &o.SweepID, &o.Seq, &o.Dataset, &o.Model, &status,
			&o.ExitCode, &o.Seconds, &startedAt, &endedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = core.TaskStatus(status)
		o.StartedAt = mustParseTime(startedAt)
		o.EndedAt = mustParseTime(endedAt)
		o.CreatedAt = mustParseTime(createdAt)
		outcomes = append(outcomes, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func scanSweep(scanner interface {
	Scan(dest ...any) error
}) (*SweepRow, error) {
	var (
		sweep      SweepRow
		datasets   string
		models     string
		params     string
		createdAt  string
		finishedAt sql.NullString
	)
	if err := scanner.Scan(&sweep.ID, &sweep.Name, &sweep.Program, &sweep.WorkDir,
		&datasets, &models, &params, &sweep.ReportPath, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(datasets), &sweep.Datasets); err != nil {
		return nil, fmt.Errorf("decode datasets for sweep %s: %w", sweep.ID, err)
	}
	if err := json.Unmarshal([]byte(models), &sweep.Models); err != nil {
		return nil, fmt.Errorf("decode models for sweep %s: %w", sweep.ID, err)
	}
	var p paramsJSON
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return nil, fmt.Errorf("decode params for sweep %s: %w", sweep.ID, err)
	}
	sweep.Params = core.Params{
		Workers:         p.Workers,
		DevMode:         p.DevMode,
		ErrorCorrection: p.ErrorCorrection,
		RAGMode:         p.RAGMode,
	}
	sweep.CreatedAt = mustParseTime(createdAt)
	if finishedAt.Valid {
		t := mustParseTime(finishedAt.String)
		sweep.FinishedAt = &t
	}
	return &sweep, nil
}

func mustParseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(fmt.Sprintf("invalid stored time %q: %v", value, err))
	}
	return t
}
