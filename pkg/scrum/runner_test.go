package scrum

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExecutor records executed tasks. When gate is non-nil, Execute blocks
// until the gate closes.
type stubExecutor struct {
	mu    sync.Mutex
	tasks []Task
	gate  chan struct{}
	err   error
}

func (s *stubExecutor) Execute(ctx context.Context, task Task) (*Context, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
		}
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &Context{Task: task, State: StateCompleted}, nil
}

func (s *stubExecutor) executed() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks...)
}

func TestRunner_SubmitAssignsID(t *testing.T) {
	r := NewRunner(&stubExecutor{}, 2)

	id, err := r.Submit(Task{Description: "add flag"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	id, err = r.Submit(Task{ID: "t-7", Description: "add flag"})
	require.NoError(t, err)
	assert.Equal(t, "t-7", id)
}

func TestRunner_ProcessesBacklogInOrder(t *testing.T) {
	exec := &stubExecutor{}
	r := NewRunner(exec, 4)
	r.Start(context.Background())
	defer r.Stop()

	for _, id := range []string{"t-1", "t-2", "t-3"} {
		_, err := r.Submit(Task{ID: id, Description: "work"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return r.Health().Processed == 3 },
		time.Second, time.Millisecond)

	got := exec.executed()
	require.Len(t, got, 3)
	assert.Equal(t, "t-1", got[0].ID)
	assert.Equal(t, "t-2", got[1].ID)
	assert.Equal(t, "t-3", got[2].ID)
	assert.Equal(t, RunnerStatusIdle, r.Health().Status)
}

func TestRunner_SubmitFullBacklog(t *testing.T) {
	r := NewRunner(&stubExecutor{}, 1)

	_, err := r.Submit(Task{Description: "first"})
	require.NoError(t, err)

	_, err = r.Submit(Task{Description: "second"})
	assert.ErrorIs(t, err, ErrBacklogFull)
}

func TestRunner_ShutdownFinishesInFlightAndDropsQueued(t *testing.T) {
	exec := &stubExecutor{gate: make(chan struct{})}
	r := NewRunner(exec, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	_, err := r.Submit(Task{ID: "t-1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.Health().Status == RunnerStatusWorking },
		time.Second, time.Millisecond)

	_, err = r.Submit(Task{ID: "t-2"})
	require.NoError(t, err)

	// Cancellation unblocks the in-flight task; the loop must then exit
	// without starting the queued one.
	cancel()
	r.Stop()

	got := exec.executed()
	require.Len(t, got, 1, "queued task is not started after shutdown")
	assert.Equal(t, "t-1", got[0].ID)
	assert.Equal(t, 1, r.Health().Backlog)
}

func TestRunner_ExecutorFailureKeepsDraining(t *testing.T) {
	exec := &stubExecutor{err: errors.New("planner offline")}
	r := NewRunner(exec, 4)
	r.Start(context.Background())
	defer r.Stop()

	_, err := r.Submit(Task{ID: "t-1"})
	require.NoError(t, err)
	_, err = r.Submit(Task{ID: "t-2"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.Health().Processed == 2 },
		time.Second, time.Millisecond)
	assert.Len(t, exec.executed(), 2)
}
