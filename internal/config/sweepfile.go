package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sweeprun/internal/core"
)

// Defaults applied when the sweep file leaves a parameter unset. The worker
// count matches the invoked program's own default.
const (
	defaultWorkers         = 10
	defaultDevMode         = 1
	defaultErrorCorrection = 1
)

type sweepFile struct {
	Name     string   `yaml:"name"`
	Program  string   `yaml:"program"`
	WorkDir  string   `yaml:"workdir"`
	Datasets []string `yaml:"datasets"`
	Models   []string `yaml:"models"`
	Params   struct {
		Workers         *int    `yaml:"workers"`
		DevMode         *int    `yaml:"devmode"`
		ErrorCorrection *int    `yaml:"error_correction"`
		RAGMode         *string `yaml:"rag_mode"`
	} `yaml:"params"`
}

// LoadSweepFile parses a YAML sweep definition and applies defaults.
// A rag_mode that is missing or empty means "not configured": the flag is
// dropped from every invocation instead of being passed as an empty string.
func LoadSweepFile(path string) (core.SweepConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.SweepConfig{}, fmt.Errorf("read sweep file: %w", err)
	}
	var f sweepFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return core.SweepConfig{}, fmt.Errorf("parse sweep file %s: %w", path, err)
	}

	name := f.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	params := core.Params{
		Workers:         defaultWorkers,
		DevMode:         defaultDevMode,
		ErrorCorrection: defaultErrorCorrection,
	}
	if f.Params.Workers != nil {
		params.Workers = *f.Params.Workers
	}
	if f.Params.DevMode != nil {
		params.DevMode = *f.Params.DevMode
	}
	if f.Params.ErrorCorrection != nil {
		params.ErrorCorrection = *f.Params.ErrorCorrection
	}
	if f.Params.RAGMode != nil && strings.TrimSpace(*f.Params.RAGMode) != "" {
		mode := strings.TrimSpace(*f.Params.RAGMode)
		params.RAGMode = &mode
	}

	return core.SweepConfig{
		Name:     name,
		Program:  f.Program,
		WorkDir:  f.WorkDir,
		Datasets: f.Datasets,
		Models:   f.Models,
		Params:   params,
	}, nil
}
