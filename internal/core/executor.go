package core

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// CommandRunner launches one external task and reports its exit code.
// A non-nil error means the process never started; a non-zero exit code
// is not an error at this layer.
type CommandRunner interface {
	Run(ctx context.Context, task Task) (int, error)
}

// ExecRunner runs tasks as real subprocesses.
type ExecRunner struct {
	// Stdout and Stderr receive the task's output; the process streams
	// are inherited when nil.
	Stdout io.Writer
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, task Task) (int, error) {
	cmd := exec.CommandContext(ctx, task.Program, task.Args...) // #nosec G204
	cmd.Dir = task.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, err
	}
	return 0, nil
}
