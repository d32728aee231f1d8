package core

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildTaskArgsWithoutRAGMode(t *testing.T) {
	cfg := testConfig([]string{"dataset/ComplexLP"}, []string{"gpt-4o"})
	task := BuildTask(cfg, "dataset/ComplexLP", "gpt-4o")

	want := []string{
		"--all-dirs",
		"--data-path", "dataset/ComplexLP",
		"--model", "gpt-4o",
		"--num-workers", "50",
		"--devmode", "1",
		"--error-correction", "1",
	}
	if !reflect.DeepEqual(task.Args, want) {
		t.Errorf("args mismatch:\nwant %v\ngot  %v", want, task.Args)
	}
}

func TestBuildTaskArgsWithRAGMode(t *testing.T) {
	cfg := testConfig([]string{"A"}, []string{"m1"})
	mode := "hybrid"
	cfg.Params.RAGMode = &mode

	task := BuildTask(cfg, "A", "m1")
	joined := strings.Join(task.Args, " ")
	if !strings.Contains(joined, "--rag-mode hybrid") {
		t.Errorf("want --rag-mode hybrid in args, got %v", task.Args)
	}
}

func TestBuildTaskOmitsEmptyRAGMode(t *testing.T) {
	cfg := testConfig([]string{"A"}, []string{"m1"})
	empty := ""
	cfg.Params.RAGMode = &empty

	task := BuildTask(cfg, "A", "m1")
	for _, arg := range task.Args {
		if arg == "--rag-mode" {
			t.Fatalf("empty RAG mode must be omitted, got args %v", task.Args)
		}
	}
}

func TestTaskCommandLineQuotesArguments(t *testing.T) {
	cfg := testConfig([]string{"data sets/lp"}, []string{"m1"})
	task := BuildTask(cfg, "data sets/lp", "m1")

	line := task.CommandLine()
	if !strings.HasPrefix(line, "solve ") {
		t.Errorf("command line must start with the program, got %q", line)
	}
	if !strings.Contains(line, "'data sets/lp'") {
		t.Errorf("dataset with spaces must be quoted, got %q", line)
	}
}
