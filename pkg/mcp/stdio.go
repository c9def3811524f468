package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// stdioMaxFrameBytes bounds a single newline-delimited frame from the child.
const stdioMaxFrameBytes = 10 * 1024 * 1024

// stdioKillGrace is how long Close waits after SIGTERM before SIGKILL.
const stdioKillGrace = 5 * time.Second

// stdioTransport frames newline-delimited JSON over a child process's
// stdin/stdout. stderr is forwarded to the log at debug level.
type stdioTransport struct {
	callbacks

	command string
	args    []string
	env     map[string]string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
	done      chan struct{}
}

func newStdioTransport(command string, args []string, env map[string]string) *stdioTransport {
	return &stdioTransport{
		command: command,
		args:    args,
		env:     env,
		done:    make(chan struct{}),
	}
}

func (t *stdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd != nil {
		return fmt.Errorf("stdio transport already connected")
	}

	cmd := exec.Command(t.command, t.args...)
	// Inherit parent environment + config overrides. Template vars are
	// already resolved by the config loader.
	env := os.Environ()
	for k, v := range t.env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin

	go t.readLoop(stdout)
	go t.drainStderr(stderr)
	go func() {
		err := cmd.Wait()
		select {
		case <-t.done:
			// Expected exit after Close.
		default:
			if err != nil {
				t.emitError(fmt.Errorf("mcp server %q exited: %w", t.command, err))
			}
		}
		t.closeOnce.Do(func() {
			close(t.done)
			t.emitClose()
		})
	}()

	_ = ctx // connection is immediate once the process starts
	return nil
}

// readLoop delivers one frame per stdout line.
func (t *stdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), stdioMaxFrameBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		t.emitMessage(frame)
	}
	if err := scanner.Err(); err != nil {
		t.emitError(fmt.Errorf("read stdout: %w", err))
	}
}

func (t *stdioTransport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		slog.Debug("MCP server stderr", "command", t.command, "line", scanner.Text())
	}
}

// Send writes one newline-terminated frame to the child's stdin. Writes are
// serialised; stdin is write-only from this side.
func (t *stdioTransport) Send(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin == nil {
		return fmt.Errorf("stdio transport not connected")
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to %q stdin: %w", t.command, err)
	}
	return nil
}

// Close closes stdin (the polite shutdown signal for MCP servers), then
// escalates to SIGTERM/SIGKILL if the process lingers.
func (t *stdioTransport) Close() error {
	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	t.stdin = nil
	t.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		_ = stdin.Close()
	}

	select {
	case <-t.done:
		return nil
	case <-time.After(stdioKillGrace):
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-t.done:
			return nil
		case <-time.After(stdioKillGrace):
			return cmd.Process.Kill()
		}
	}
	return nil
}
