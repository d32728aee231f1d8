package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sweeprun/internal/api"
	"sweeprun/internal/config"
	"sweeprun/internal/core"
	"sweeprun/internal/logging"
	"sweeprun/internal/notify"
	"sweeprun/internal/report"
	"sweeprun/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level)

	switch os.Args[1] {
	case "run":
		err = cmdRun(cfg, logger, os.Args[2:])
	case "history":
		err = cmdHistory(cfg, os.Args[2:])
	case "show":
		err = cmdShow(cfg, os.Args[2:])
	case "serve":
		err = cmdServe(cfg, logger, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error(os.Args[1]+" failed", "err", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage:
  sweeprun run     --sweep-file FILE [--report-dir DIR] [--dry-run]
  sweeprun history [--limit N]
  sweeprun show    <id>
  sweeprun serve   [--addr HOST:PORT]

Commands:
  run      Execute every (dataset, model) pair of a sweep, one task at a time.
  history  List recorded sweeps.
  show     Show one recorded sweep with its outcomes.
  serve    Expose recorded sweeps over an HTTP API.

Environment (overridable via .env):
  SWEEPRUN_STATE_DIR      Directory for the sweep history database
  SWEEPRUN_REPORT_DIR     Default directory for run reports (default ".")
  SWEEPRUN_LOG_LEVEL      debug, info, warn, error
  SWEEPRUN_ADDR           Listen address for serve mode
  SWEEPRUN_AUTH_TOKEN     Bearer token protecting the HTTP API
  SWEEPRUN_BARK_URL       Bark endpoint for completion notifications
  SWEEPRUN_BARK_ENABLED   Enable Bark notifications (true/false)`)
}

func cmdRun(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		sweepFile string
		reportDir string
		dryRun    bool
	)
	fs.StringVar(&sweepFile, "sweep-file", "", "Path to the YAML sweep definition (required)")
	fs.StringVar(&reportDir, "report-dir", cfg.ReportDir, "Directory for the run report")
	fs.BoolVar(&dryRun, "dry-run", false, "Print each constructed command without executing")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sweeprun run --sweep-file FILE [--report-dir DIR] [--dry-run]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if sweepFile == "" {
		fs.Usage()
		return errors.New("sweep-file is required")
	}

	sweep, err := config.LoadSweepFile(sweepFile)
	if err != nil {
		return err
	}
	if err := sweep.Validate(); err != nil {
		return fmt.Errorf("invalid sweep %s: %w", sweepFile, err)
	}
	resolved, err := resolveProgram(sweep.Program, sweep.WorkDir)
	if err != nil {
		return err
	}
	sweep.Program = resolved

	if dryRun {
		runner := core.NewRunner(sweep, core.ExecRunner{}, nil, nil, logger)
		runner.SetDryRun(os.Stdout)
		_, err := runner.Run(context.Background())
		return err
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.DB.Close()

	rep, err := report.Create(reportDir, time.Now())
	if err != nil {
		return err
	}
	logger.Info("starting sweep",
		"name", sweep.Name,
		"datasets", len(sweep.Datasets),
		"models", len(sweep.Models),
		"tasks", sweep.GridSize(),
		"report", rep.Path())

	runner := core.NewRunner(sweep, core.ExecRunner{}, rep, st, logger)
	runner.SetReportPath(rep.Path())
	outcomes, runErr := runner.Run(ctx)

	if err := rep.Close(); err != nil {
		logger.Warn("close report", "err", err)
	}
	// Echo the full report as the final summary; on a report write failure
	// this doubles as the best-effort fallback for the lost tail.
	fmt.Print(rep.Contents())
	if runErr != nil {
		return runErr
	}

	succeeded, failed := tally(outcomes)
	logger.Info("sweep finished",
		"name", sweep.Name,
		"tasks", len(outcomes),
		"succeeded", succeeded,
		"failed", failed)
	sendNotification(ctx, cfg, logger, sweep, rep.Path(), succeeded, failed)
	return nil
}

// resolveProgram fails fast on an unresolvable program path so a broken
// configuration never starts a sweep. Launch failures after this point are
// per-task outcomes.
func resolveProgram(program, workDir string) (string, error) {
	if strings.ContainsRune(program, os.PathSeparator) {
		path := program
		if !filepath.IsAbs(path) && workDir != "" {
			path = filepath.Join(workDir, path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve program %s: %w", program, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("program %s: %w", program, err)
		}
		return abs, nil
	}
	path, err := exec.LookPath(program)
	if err != nil {
		return "", fmt.Errorf("program %s: %w", program, err)
	}
	return path, nil
}

func tally(outcomes []core.Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Status == core.TaskStatusSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// newNotifier picks the completion notifier for the current config. Sweeps
// without Bark configured get the no-op notifier.
func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	bark := cfg.Notification.Bark
	if !bark.Enabled || bark.URL == "" {
		return &notify.NoOpNotifier{}
	}
	notifier, err := notify.NewBarkNotifier(bark.URL)
	if err != nil {
		logger.Warn("create notifier", "err", err)
		return &notify.NoOpNotifier{}
	}
	return notifier
}

func sendNotification(ctx context.Context, cfg *config.Config, logger *slog.Logger, sweep core.SweepConfig, reportPath string, succeeded, failed int) {
	title := fmt.Sprintf("Sweep finished: %s", sweep.Name)
	body := fmt.Sprintf("%d tasks: %d succeeded, %d failed. Report: %s",
		succeeded+failed, succeeded, failed, reportPath)
	if err := newNotifier(cfg, logger).Send(ctx, title, body); err != nil {
		logger.Warn("send notification", "err", err)
	}
}

func cmdHistory(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of sweeps to list")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sweeprun history [--limit N]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.DB.Close()

	sweeps, err := st.ListSweeps(ctx, *limit, 0)
	if err != nil {
		return err
	}

	fmt.Printf("%-14s %-25s %-6s %-20s %-20s\n", "ID", "NAME", "TASKS", "CREATED_AT", "FINISHED_AT")
	for _, sweep := range sweeps {
		finished := "-"
		if sweep.FinishedAt != nil {
			finished = sweep.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-14s %-25s %-6d %-20s %-20s\n",
			shortID(sweep.ID),
			sweep.Name,
			len(sweep.Datasets)*len(sweep.Models),
			sweep.CreatedAt.Format("2006-01-02 15:04:05"),
			finished)
	}
	return nil
}

func cmdShow(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sweeprun show <id>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("sweep id is required")
	}
	id := fs.Arg(0)

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.DB.Close()

	sweep, err := resolveSweep(ctx, st, id)
	if err != nil {
		return err
	}

	fmt.Printf("Sweep %s\n", sweep.ID)
	fmt.Println("-------------")
	fmt.Printf("Name:      %s\n", sweep.Name)
	fmt.Printf("Program:   %s\n", sweep.Program)
	if sweep.WorkDir != "" {
		fmt.Printf("Workdir:   %s\n", sweep.WorkDir)
	}
	fmt.Printf("Datasets:  %s\n", strings.Join(sweep.Datasets, ", "))
	fmt.Printf("Models:    %s\n", strings.Join(sweep.Models, ", "))
	fmt.Printf("Workers:   %d\n", sweep.Params.Workers)
	if sweep.Params.RAGConfigured() {
		fmt.Printf("RAG mode:  %s\n", *sweep.Params.RAGMode)
	}
	if sweep.ReportPath != "" {
		fmt.Printf("Report:    %s\n", sweep.ReportPath)
	}
	fmt.Printf("Created:   %s\n", sweep.CreatedAt.Format(time.RFC3339))
	if sweep.FinishedAt != nil {
		fmt.Printf("Finished:  %s\n", sweep.FinishedAt.Format(time.RFC3339))
	}

	outcomes, err := st.ListOutcomes(ctx, sweep.ID)
	if err != nil {
		return err
	}
	if len(outcomes) > 0 {
		fmt.Println("Outcomes:")
		for _, o := range outcomes {
			label := "success"
			if o.Status != core.TaskStatusSucceeded {
				label = fmt.Sprintf("failed(%d)", o.ExitCode)
			}
			fmt.Printf("  Dataset=%s, Model=%s, Duration=%ds, Status=%s\n",
				o.Dataset, o.Model, o.Seconds, label)
		}
	}
	return nil
}

// resolveSweep accepts either a full sweep ID or the shortened prefix that
// "history" prints.
func resolveSweep(ctx context.Context, st *store.Store, id string) (*store.SweepRow, error) {
	sweep, err := st.GetSweep(ctx, id)
	if err == nil {
		return sweep, nil
	}
	if !errors.Is(err, store.ErrSweepNotFound) {
		return nil, err
	}
	sweeps, err := st.ListSweeps(ctx, 200, 0)
	if err != nil {
		return nil, err
	}
	for _, candidate := range sweeps {
		if strings.HasPrefix(candidate.ID, id) {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("no sweep with id %s", id)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func cmdServe(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "HTTP listen address")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sweeprun serve [--addr HOST:PORT]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.DB.Close()

	server := api.NewServer(*addr, cfg.Server.AuthToken, st, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	return nil
}
