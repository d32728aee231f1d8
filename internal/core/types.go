package core

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// TaskStatus describes the terminal state of one external task.
type TaskStatus string

const (
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Params holds the fixed extra parameters forwarded to every task.
type Params struct {
	Workers         int
	DevMode         int
	ErrorCorrection int
	// RAGMode is forwarded only when configured. nil (or an empty string,
	// which config loading normalizes away) means the flag is omitted
	// entirely from the argument list.
	RAGMode *string
}

// RAGConfigured reports whether a non-empty RAG mode was set.
func (p Params) RAGConfigured() bool {
	return p.RAGMode != nil && *p.RAGMode != ""
}

// SweepConfig is the immutable definition of one sweep: the external program,
// the working directory it runs from, and the grid to enumerate.
type SweepConfig struct {
	Name     string
	Program  string
	WorkDir  string
	Datasets []string
	Models   []string
	Params   Params
}

// Validate checks the configuration before any task runs.
func (c SweepConfig) Validate() error {
	if c.Program == "" {
		return errors.New("program is required")
	}
	if len(c.Datasets) == 0 {
		return errors.New("at least one dataset is required")
	}
	if len(c.Models) == 0 {
		return errors.New("at least one model is required")
	}
	if c.Params.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Params.Workers)
	}
	if c.WorkDir != "" {
		info, err := os.Stat(c.WorkDir)
		if err != nil {
			return fmt.Errorf("workdir %s: %w", c.WorkDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("workdir %s is not a directory", c.WorkDir)
		}
	}
	return nil
}

// GridSize returns the number of tasks the sweep will run.
func (c SweepConfig) GridSize() int {
	return len(c.Datasets) * len(c.Models)
}

// Task is one (dataset, model) pair materialized into a concrete external
// command. Built once at enumeration time and consumed exactly once.
type Task struct {
	Dataset string
	Model   string
	Program string
	Args    []string
	Dir     string
}

// Outcome records the result of one completed task. Appended to the run
// report and never mutated afterward.
type Outcome struct {
	Dataset   string
	Model     string
	Seconds   int
	ExitCode  int
	Status    TaskStatus
	StartedAt time.Time
	EndedAt   time.Time
}

// StatusLabel renders the status the way the report writes it:
// "success" or "failed(<code>)".
func (o Outcome) StatusLabel() string {
	if o.Status == TaskStatusSucceeded {
		return "success"
	}
	return fmt.Sprintf("failed(%d)", o.ExitCode)
}
