package agentrun

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tamma-ai/tamma/pkg/config"
)

// maxStderrBytes bounds how much stderr is retained for error reporting.
const maxStderrBytes = 64 * 1024

// SubprocessProvider runs the coding CLI as a subprocess per task.
type SubprocessProvider struct {
	cfg    *config.AgentConfig
	logger *slog.Logger

	mu      sync.Mutex
	current *exec.Cmd
	done    chan struct{}
}

// NewSubprocessProvider creates a provider from the agent configuration.
func NewSubprocessProvider(cfg *config.AgentConfig) *SubprocessProvider {
	return &SubprocessProvider{
		cfg:    cfg,
		logger: slog.Default().With("component", "agent"),
	}
}

// buildArgs assembles the CLI invocation for one task.
func (p *SubprocessProvider) buildArgs(task TaskConfig) []string {
	args := []string{
		"-p", task.Prompt,
		"--output-format", "stream-json",
	}
	if task.Model != "" {
		args = append(args, "--model", task.Model)
	}
	if task.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(task.MaxBudgetUSD, 'f', -1, 64))
	}
	if len(task.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(task.AllowedTools, ","))
	}
	if task.SkipPermissions || p.cfg.PermissionMode == config.PermissionModeBypass {
		args = append(args, "--dangerously-skip-permissions")
	}
	if task.JSONSchema != "" {
		args = append(args, "--json-schema", task.JSONSchema)
	}
	if task.ResumeSessionID != "" {
		args = append(args, "--resume", task.ResumeSessionID)
	}
	return args
}

// ExecuteTask spawns the CLI, streams progress, and returns the terminal
// result. A missing or unsuccessful terminal record produces a failure
// result with the stderr tail (or the record's first error) as the cause.
func (p *SubprocessProvider) ExecuteTask(ctx context.Context, task TaskConfig, progress ProgressFunc) (*Result, error) {
	timeout := task.Timeout
	if timeout == 0 {
		timeout = p.cfg.TaskTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.cfg.CLIPath, p.buildArgs(task)...)
	if task.WorkingDirectory != "" {
		cmd.Dir = task.WorkingDirectory
	}
	// On cancellation the CLI gets SIGTERM first; the kill follows only
	// after the grace period expires.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = p.gracePeriod()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn agent cli: %w", err)
	}
	done := make(chan struct{})
	p.mu.Lock()
	p.current = cmd
	p.done = done
	p.mu.Unlock()
	defer func() {
		close(done)
		p.mu.Lock()
		p.current = nil
		p.done = nil
		p.mu.Unlock()
	}()

	p.logger.Info("agent task started",
		"model", task.Model, "workdir", task.WorkingDirectory)

	// stderr is drained concurrently so the subprocess cannot block on a
	// full pipe; only a bounded tail is kept.
	var stderrBuf strings.Builder
	var stderrWG sync.WaitGroup
	stderrWG.Add(1)
	go func() {
		defer stderrWG.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), maxStderrBytes)
		for scanner.Scan() {
			if stderrBuf.Len() < maxStderrBytes {
				stderrBuf.WriteString(scanner.Text())
				stderrBuf.WriteString("\n")
			}
		}
	}()

	var terminal terminalResult
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		parseStreamLine(scanner.Text(), &terminal, progress)
	}

	stderrWG.Wait()
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("agent task: %w", ctx.Err())
	}

	result := &Result{
		Output:     terminal.output,
		CostUSD:    terminal.costUSD,
		SessionID:  terminal.sessionID,
		DurationMs: terminal.durationMs,
	}
	if result.DurationMs == 0 {
		result.DurationMs = elapsed.Milliseconds()
	}

	if terminal.seen && terminal.success {
		result.Success = true
		p.logger.Info("agent task completed",
			"costUsd", result.CostUSD, "durationMs", result.DurationMs)
		return result, nil
	}

	switch {
	case len(terminal.errors) > 0:
		result.Error = terminal.errors[0]
	case strings.TrimSpace(stderrBuf.String()) != "":
		result.Error = strings.TrimSpace(stderrBuf.String())
	case waitErr != nil:
		result.Error = waitErr.Error()
	default:
		result.Error = "agent exited without a terminal result"
	}
	p.logger.Warn("agent task failed", "error", result.Error)
	return result, nil
}

// IsAvailable probes the CLI with a version query.
func (p *SubprocessProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, p.cfg.CLIPath, "--version").Run() == nil
}

func (p *SubprocessProvider) gracePeriod() time.Duration {
	if p.cfg.DisposeGracePeriod > 0 {
		return p.cfg.DisposeGracePeriod
	}
	return 10 * time.Second
}

// Dispose terminates any live subprocess: SIGTERM, then a kill once the
// grace period expires without an exit.
func (p *SubprocessProvider) Dispose() error {
	p.mu.Lock()
	cmd := p.current
	done := p.done
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-done:
		return nil
	case <-time.After(p.gracePeriod()):
	}

	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill agent subprocess: %w", err)
		}
	}
	return nil
}
