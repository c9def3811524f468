// Command tamma is the autonomous issue-to-merge agent: it picks labelled
// issues, plans, implements through a coding subprocess, opens pull
// requests, watches CI, and merges.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/version"
)

// Process exit codes.
const (
	exitOK                  = 0
	exitGeneric             = 1
	exitConfig              = 2
	exitAgentUnavailable    = 3
	exitPlatformUnavailable = 4
)

// exitError pairs an error with the process exit code it maps to.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

type rootFlags struct {
	configDir      string
	workDir        string
	logLevel       string
	pollIntervalMs int
	maxRetries     int
	approvalMode   string
	dryRun         bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "tamma",
		Short:         "Autonomous issue-to-merge engineering agent",
		Version:       version.GitCommit,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(flags.logLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config", envOr("TAMMA_CONFIG_DIR", "./config"), "configuration directory")
	pf.StringVar(&flags.workDir, "workdir", "", "workspace the coding subprocess runs in (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.IntVar(&flags.pollIntervalMs, "poll-interval-ms", 0, "engine poll interval in milliseconds (overrides config)")
	pf.IntVar(&flags.maxRetries, "max-retries", -1, "supervisor retry budget (overrides config)")
	pf.StringVar(&flags.approvalMode, "approval-mode", "", "plan approval mode: auto or manual (overrides config)")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "disable all platform mutations")

	root.AddCommand(newRunCmd(flags), newOnceCmd(flags), newPlanCmd(flags))
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		var coded *exitError
		if errors.As(err, &coded) {
			return coded.code
		}
		return exitGeneric
	}
	return exitOK
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the issue-to-merge loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := boot(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.checkAgent(ctx); err != nil {
				return err
			}

			a.health.Start(ctx)
			defer a.health.Stop()

			if a.slackRelay != nil {
				a.slackRelay.Start(ctx)
				defer a.slackRelay.Stop()
			}
			if a.janitor != nil {
				a.janitor.Start(ctx)
				defer a.janitor.Stop()
			}

			// Supervised tasks submitted over the API run beside the
			// autonomous engine loop.
			a.tasks.Start(ctx)
			defer a.tasks.Stop()

			if a.apiServer != nil {
				go func() {
					if err := a.apiServer.Start(ctx); err != nil {
						slog.Error("api server failed", "error", err)
					}
				}()
			}

			slog.Info("engine loop starting",
				"repo", a.cfg.Platform.Owner+"/"+a.cfg.Platform.Repo,
				"poll_interval", a.cfg.Engine.PollInterval,
				"dry_run", a.cfg.Engine.DryRun)
			return a.engine.Run(ctx)
		},
	}
}

func newOnceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single issue-to-merge iteration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := boot(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.checkAgent(ctx); err != nil {
				return err
			}
			return a.engine.RunOnce(ctx)
		},
	}
}

func newPlanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <issue-number>",
		Short: "Generate a development plan for one issue without touching the platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueNumber, err := strconv.Atoi(args[0])
			if err != nil || issueNumber <= 0 {
				return fmt.Errorf("issue number must be a positive integer, got %q", args[0])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := boot(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.checkAgent(ctx); err != nil {
				return err
			}

			plan, err := a.engine.PlanOnly(ctx, issueNumber)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

// boot loads .env and configuration, applies flag overrides, and wires the
// component graph.
func boot(ctx context.Context, cmd *cobra.Command, flags *rootFlags) (*app, error) {
	envPath := filepath.Join(flags.configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("no .env loaded", "path", envPath, "error", err)
	}

	cfg, err := config.Initialize(ctx, flags.configDir)
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	if err := applyOverrides(cfg, cmd, flags); err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	return buildApp(ctx, cfg)
}

// applyOverrides folds explicitly set flags over the loaded configuration.
func applyOverrides(cfg *config.Config, cmd *cobra.Command, flags *rootFlags) error {
	set := cmd.Flags()
	if set.Changed("workdir") {
		cfg.Engine.WorkingDirectory = flags.workDir
	}
	if set.Changed("poll-interval-ms") {
		if flags.pollIntervalMs <= 0 {
			return fmt.Errorf("poll-interval-ms must be positive, got %d", flags.pollIntervalMs)
		}
		cfg.Engine.PollInterval = time.Duration(flags.pollIntervalMs) * time.Millisecond
	}
	if set.Changed("max-retries") {
		if flags.maxRetries < 0 {
			return fmt.Errorf("max-retries must be non-negative, got %d", flags.maxRetries)
		}
		cfg.Engine.MaxRetries = flags.maxRetries
	}
	if set.Changed("approval-mode") {
		mode := config.ApprovalMode(flags.approvalMode)
		if !mode.IsValid() {
			return fmt.Errorf("approval-mode must be auto or manual, got %q", flags.approvalMode)
		}
		cfg.Engine.ApprovalMode = mode
	}
	if set.Changed("dry-run") {
		cfg.Engine.DryRun = flags.dryRun
	}
	return nil
}

// setupLogging installs the default logger. Output goes to stderr unless
// TAMMA_LOG_FILE names a file to append to.
func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return &exitError{code: exitConfig, err: fmt.Errorf("invalid log level %q", level)}
	}
	out := os.Stderr
	if path := os.Getenv("TAMMA_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return &exitError{code: exitConfig, err: fmt.Errorf("open log file: %w", err)}
		}
		out = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
