package scrum

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunnerStatus reports what the runner is doing.
type RunnerStatus string

const (
	RunnerStatusIdle    RunnerStatus = "idle"
	RunnerStatusWorking RunnerStatus = "working"
)

const defaultBacklogCapacity = 16

// ErrBacklogFull is returned by Submit when the task backlog is at capacity.
var ErrBacklogFull = errors.New("task backlog full")

// Executor runs one task to a terminal state. Satisfied by *Supervisor.
type Executor interface {
	Execute(ctx context.Context, task Task) (*Context, error)
}

// Runner feeds submitted tasks to the supervisor one at a time. The backlog
// is in memory only; a restart loses queued tasks.
type Runner struct {
	exec     Executor
	backlog  chan Task
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        RunnerStatus
	currentTaskID string
	processed     int
	lastActivity  time.Time
}

// RunnerHealth is a point-in-time snapshot of the runner.
type RunnerHealth struct {
	Status        RunnerStatus `json:"status"`
	CurrentTaskID string       `json:"currentTaskId,omitempty"`
	Processed     int          `json:"processed"`
	Backlog       int          `json:"backlog"`
	LastActivity  time.Time    `json:"lastActivity"`
}

// NewRunner builds a runner over the given executor. capacity bounds the
// backlog; zero or negative selects the default.
func NewRunner(exec Executor, capacity int) *Runner {
	if capacity <= 0 {
		capacity = defaultBacklogCapacity
	}
	return &Runner{
		exec:         exec,
		backlog:      make(chan Task, capacity),
		logger:       slog.Default().With("component", "scrum.runner"),
		stopCh:       make(chan struct{}),
		status:       RunnerStatusIdle,
		lastActivity: time.Now().UTC(),
	}
}

// Submit queues a task and returns its ID, assigning one when the caller left
// it empty. Returns ErrBacklogFull when the backlog is at capacity.
func (r *Runner) Submit(task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	select {
	case r.backlog <- task:
		r.logger.Info("task queued", "task_id", task.ID, "task_type", task.TaskType, "backlog", len(r.backlog))
		return task.ID, nil
	default:
		return "", ErrBacklogFull
	}
}

// Start begins the drain loop in a goroutine. Call it once.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop signals the drain loop to exit and waits for it. An in-flight task
// finishes first; queued tasks are dropped. Safe to call multiple times.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Health returns the current runner snapshot.
func (r *Runner) Health() RunnerHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunnerHealth{
		Status:        r.status,
		CurrentTaskID: r.currentTaskID,
		Processed:     r.processed,
		Backlog:       len(r.backlog),
		LastActivity:  r.lastActivity,
	}
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()
	r.logger.Info("task runner started", "capacity", cap(r.backlog))

	for {
		// A stop signal wins over queued work so shutdown never starts
		// another task.
		select {
		case <-r.stopCh:
			r.logStopped()
			return
		case <-ctx.Done():
			r.logStopped()
			return
		default:
		}

		select {
		case <-r.stopCh:
			r.logStopped()
			return
		case <-ctx.Done():
			r.logStopped()
			return
		case task := <-r.backlog:
			r.process(ctx, task)
		}
	}
}

func (r *Runner) logStopped() {
	r.logger.Info("task runner stopped", "dropped", len(r.backlog))
}

func (r *Runner) process(ctx context.Context, task Task) {
	r.setWorking(task.ID)
	defer r.setIdle()

	start := time.Now()
	tc, err := r.exec.Execute(ctx, task)
	if err != nil {
		r.logger.Error("task failed",
			"task_id", task.ID, "duration", time.Since(start), "error", err)
		return
	}
	r.logger.Info("task completed",
		"task_id", task.ID, "state", tc.State, "duration", time.Since(start))
}

func (r *Runner) setWorking(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = RunnerStatusWorking
	r.currentTaskID = taskID
	r.lastActivity = time.Now().UTC()
}

func (r *Runner) setIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = RunnerStatusIdle
	r.currentTaskID = ""
	r.processed++
	r.lastActivity = time.Now().UTC()
}
