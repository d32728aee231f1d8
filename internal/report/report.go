// Package report writes the durable per-sweep record of task outcomes.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sweeprun/internal/core"
)

// Report is the append-only record of one sweep. One line per outcome,
// preceded by a header with the creation timestamp. The file name embeds
// the timestamp so repeated sweeps in the same directory never collide.
type Report struct {
	path      string
	createdAt time.Time
	file      *os.File
	lines     []string
}

// Create opens a new report file under dir.
func Create(dir string, now time.Time) (*Report, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure report dir: %w", err)
	}
	name := fmt.Sprintf("sweep-%s.txt", now.Format("20060102-150405"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}

	r := &Report{
		path:      path,
		createdAt: now,
		file:      file,
	}
	header := fmt.Sprintf("Sweep run started at %s", now.Format("2006-01-02 15:04:05"))
	separator := strings.Repeat("=", len(header))
	if err := r.writeLine(header); err != nil {
		file.Close()
		return nil, err
	}
	if err := r.writeLine(separator); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// Append writes one outcome line and keeps an in-memory copy so Contents
// can echo the report even after a write failure.
func (r *Report) Append(o core.Outcome) error {
	line := fmt.Sprintf("Dataset=%s, Model=%s, Duration=%ds, Status=%s",
		o.Dataset, o.Model, o.Seconds, o.StatusLabel())
	return r.writeLine(line)
}

func (r *Report) writeLine(line string) error {
	r.lines = append(r.lines, line)
	if _, err := r.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write report %s: %w", r.path, err)
	}
	return nil
}

// Path returns the report file location.
func (r *Report) Path() string {
	return r.path
}

// CreatedAt returns the report creation time.
func (r *Report) CreatedAt() time.Time {
	return r.createdAt
}

// Contents returns the full report text, header included.
func (r *Report) Contents() string {
	if len(r.lines) == 0 {
		return ""
	}
	return strings.Join(r.lines, "\n") + "\n"
}

// Close flushes the report to durable storage.
func (r *Report) Close() error {
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return fmt.Errorf("sync report %s: %w", r.path, err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", r.path, err)
	}
	return nil
}
