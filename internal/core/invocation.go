package core

import (
	"strconv"

	"github.com/kballard/go-shellquote"
)

// BuildTask materializes the external command for one (dataset, model) pair.
// The argument order matches what the invoked program expects: the all-dirs
// selector, the dataset path, the model, then the fixed extra parameters.
// The RAG mode flag appears only when configured; an unset mode is omitted
// from the list, never passed as an empty string.
func BuildTask(cfg SweepConfig, dataset, model string) Task {
	args := []string{
		"--all-dirs",
		"--data-path", dataset,
		"--model", model,
		"--num-workers", strconv.Itoa(cfg.Params.Workers),
		"--devmode", strconv.Itoa(cfg.Params.DevMode),
		"--error-correction", strconv.Itoa(cfg.Params.ErrorCorrection),
	}
	if cfg.Params.RAGConfigured() {
		args = append(args, "--rag-mode", *cfg.Params.RAGMode)
	}
	return Task{
		Dataset: dataset,
		Model:   model,
		Program: cfg.Program,
		Args:    args,
		Dir:     cfg.WorkDir,
	}
}

// CommandLine renders the fully-constructed command for progress notices.
func (t Task) CommandLine() string {
	return shellquote.Join(append([]string{t.Program}, t.Args...)...)
}
