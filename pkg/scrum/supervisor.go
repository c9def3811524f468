package scrum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/engine"
	"github.com/tamma-ai/tamma/pkg/events"
	"github.com/tamma-ai/tamma/pkg/knowledge"
	"github.com/tamma-ai/tamma/pkg/models"
)

const defaultReviewThreshold = 0.7

// Planner produces the enriched plan for a task. Satisfied by an adapter
// over the engine's planning step.
type Planner interface {
	GeneratePlan(ctx context.Context, task Task) (*models.DevelopmentPlan, error)
}

// Implementer drives one coding attempt, resuming a previous attempt's agent
// session when one is given. Satisfied by engine.Engine.
type Implementer interface {
	Implement(ctx context.Context, plan *models.DevelopmentPlan, branch, feedback, resumeSession string) (*agentrun.Result, error)
}

// Approver is the user interface consulted for plans that are not
// auto-approved. reason is surfaced on denial.
type Approver interface {
	RequestApproval(ctx context.Context, plan *models.DevelopmentPlan, risk RiskLevel, check *knowledge.CheckResult) (approved bool, reason string, err error)
}

// Supervisor runs one task at a time through planning, approval, bounded
// implementation retries, review, and learning capture.
//
// The task context is mutated only by the supervisor goroutine, always under
// mu, so Snapshot can serve concurrent readers.
type Supervisor struct {
	cfg       *config.EngineConfig
	agentCfg  *config.AgentConfig
	planner   Planner
	impl      Implementer
	approver  Approver
	reviewer  Reviewer
	checker   *knowledge.Checker
	capture   *knowledge.CaptureService
	pub       *events.Publisher
	logger    *slog.Logger
	threshold float64

	mu        sync.Mutex
	tc        *Context
	paused    bool
	cancelled bool
	resumeCh  chan struct{}
}

// New wires a supervisor. approver may be nil when every plan is
// auto-approvable; reviewer defaults to the heuristic reviewer.
func New(cfg *config.EngineConfig, agentCfg *config.AgentConfig, planner Planner, impl Implementer,
	approver Approver, reviewer Reviewer, checker *knowledge.Checker, capture *knowledge.CaptureService,
	pub *events.Publisher) *Supervisor {
	threshold := cfg.ReviewThreshold
	if threshold <= 0 {
		threshold = defaultReviewThreshold
	}
	if reviewer == nil {
		reviewer = &HeuristicReviewer{Threshold: threshold}
	}
	return &Supervisor{
		cfg:       cfg,
		agentCfg:  agentCfg,
		planner:   planner,
		impl:      impl,
		approver:  approver,
		reviewer:  reviewer,
		checker:   checker,
		capture:   capture,
		pub:       pub,
		logger:    slog.Default().With("component", "scrum"),
		threshold: threshold,
	}
}

// Snapshot returns a copy of the current task context, or nil when idle.
func (s *Supervisor) Snapshot() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tc == nil {
		return nil
	}
	copied := *s.tc
	return &copied
}

// Pause suspends the supervisor at the next stage boundary. The task
// context is preserved for a later Resume.
func (s *Supervisor) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.cancelled {
		return
	}
	s.paused = true
	s.resumeCh = make(chan struct{})
}

// Resume continues a paused task.
func (s *Supervisor) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resumeCh)
}

// Cancel terminates the current task at the next stage boundary.
func (s *Supervisor) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if s.paused {
		s.paused = false
		close(s.resumeCh)
	}
}

// update runs fn with the context lock held. Every task-context mutation
// goes through here so Snapshot never observes a torn write.
func (s *Supervisor) update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Execute runs one task to a terminal state. The returned context is the
// caller's copy of the full supervision record.
func (s *Supervisor) Execute(ctx context.Context, task Task) (*Context, error) {
	tc := &Context{
		Task:      task,
		State:     StateIdle,
		StartedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.tc = tc
	// Cancellation is per task; a pause outlives it until Resume.
	s.cancelled = false
	s.mu.Unlock()

	evt := s.pub.TaskReceived(task.ID, string(task.TaskType), task.Description, task.IssueNumber)
	s.update(func() { tc.appendEvent(evt) })

	// The cause is recorded before the terminal transition so any observer
	// that sees the final state also sees why.
	err := s.run(ctx, tc)
	switch {
	case err == nil:
		s.transition(tc, StateCompleted)
		s.captureLearning(ctx, tc, true, "")
	case errors.Is(err, engine.ErrCancelled):
		s.update(func() { tc.recordError(err) })
		s.transition(tc, StateCancelled)
	default:
		s.update(func() { tc.recordError(err) })
		s.transition(tc, StateFailed)
		s.captureLearning(ctx, tc, false, err.Error())
	}

	return s.Snapshot(), err
}

func (s *Supervisor) run(ctx context.Context, tc *Context) error {
	// PLANNING: enriched plan plus risk assessment.
	if err := s.checkpoint(ctx, tc); err != nil {
		return err
	}
	s.transition(tc, StatePlanning)
	plan, err := s.planner.GeneratePlan(ctx, tc.Task)
	if err != nil {
		return err
	}
	risk := ClassifyRisk(plan, s.cfg.HighRiskPatterns)
	s.update(func() {
		tc.Plan = plan
		tc.RiskLevel = risk
	})

	// Knowledge check before approval.
	check, err := s.runKnowledgeCheck(ctx, tc, plan)
	if err != nil {
		return err
	}

	// AWAITING_APPROVAL.
	if err := s.checkpoint(ctx, tc); err != nil {
		return err
	}
	if err := s.awaitApproval(ctx, tc, check); err != nil {
		return err
	}

	// IMPLEMENTING / REVIEWING loop, bounded by the retry budget. The agent
	// session from a successful attempt is resumed on review-driven retries,
	// so the agent keeps its working memory of the change.
	feedback := ""
	session := ""
	for {
		if err := s.checkpoint(ctx, tc); err != nil {
			return err
		}
		s.transition(tc, StateImplementing)
		result, err := s.impl.Implement(ctx, plan, tc.Task.Branch, feedback, session)
		if err != nil {
			if engine.Terminal(err) {
				return err
			}
			feedback = ""
			if retryErr := s.consumeRetry(tc, err); retryErr != nil {
				return retryErr
			}
			continue
		}
		session = result.SessionID

		s.update(func() {
			tc.Implementation = &Implementation{
				Attempt:    tc.RetryCount + 1,
				Output:     result.Output,
				CostUSD:    result.CostUSD,
				DurationMs: result.DurationMs,
			}
		})

		if err := s.checkpoint(ctx, tc); err != nil {
			return err
		}
		s.transition(tc, StateReviewing)
		review, err := s.reviewer.Review(ctx, plan, result, s.agentCfg.MaxBudgetUSD)
		if err != nil {
			return fmt.Errorf("review: %w", err)
		}
		review.Approved = review.Score >= s.threshold
		s.update(func() {
			tc.Review = review
			tc.appendEvent(s.pub.ReviewCompleted(tc.Task.ID, review.Score, review.Approved))
		})

		if review.Approved {
			return nil
		}
		feedback = joinFeedback(review.Feedback)
		if retryErr := s.consumeRetry(tc, fmt.Errorf("%w: review score %.2f below %.2f",
			engine.ErrImplementationFailed, review.Score, s.threshold)); retryErr != nil {
			return retryErr
		}
	}
}

// consumeRetry increments the retry counter, failing the task once the
// budget is exhausted. A task that exhausts its retries never re-enters
// implementation.
func (s *Supervisor) consumeRetry(tc *Context, cause error) error {
	var retries int
	s.update(func() {
		tc.recordError(cause)
		tc.RetryCount++
		retries = tc.RetryCount
	})
	if retries > s.cfg.MaxRetries {
		return fmt.Errorf("retry budget exhausted after %d attempts: %w", retries, cause)
	}
	s.logger.Info("retrying implementation",
		"task", tc.Task.ID, "retry", retries, "cause", cause)
	return nil
}

func (s *Supervisor) runKnowledgeCheck(ctx context.Context, tc *Context, plan *models.DevelopmentPlan) (*knowledge.CheckResult, error) {
	if s.checker == nil {
		return nil, nil
	}
	check, err := s.checker.Check(ctx, knowledge.TaskContext{
		TaskType:    tc.Task.TaskType,
		Description: tc.Task.Description,
		ProjectID:   tc.Task.ProjectID,
	}, plan)
	if err != nil {
		return nil, fmt.Errorf("knowledge check: %w", err)
	}
	s.update(func() {
		for _, l := range check.Learnings {
			tc.Learnings = append(tc.Learnings, l.Entry.Title)
		}
	})
	if !check.CanProceed {
		return nil, fmt.Errorf("%w: %d critical prohibitions match this plan",
			engine.ErrEscalationRequired, len(check.Blockers))
	}
	return check, nil
}

// awaitApproval bypasses for low-risk plans when configured, otherwise asks
// the approver. Denial is terminal.
func (s *Supervisor) awaitApproval(ctx context.Context, tc *Context, check *knowledge.CheckResult) error {
	s.transition(tc, StateAwaitingApproval)
	if tc.RiskLevel == RiskLow && s.cfg.AutoApproveLowRisk {
		s.logger.Info("low-risk plan auto-approved", "task", tc.Task.ID)
		return nil
	}
	if s.approver == nil {
		s.logger.Warn("no approver wired, plan proceeds unreviewed",
			"task", tc.Task.ID, "risk", tc.RiskLevel)
		return nil
	}

	s.update(func() {
		tc.appendEvent(s.pub.ApprovalRequested(tc.Task.ID, string(tc.RiskLevel)))
	})
	approved, reason, err := s.approver.RequestApproval(ctx, tc.Plan, tc.RiskLevel, check)
	if err != nil {
		return fmt.Errorf("request approval: %w", err)
	}
	s.update(func() {
		tc.appendEvent(s.pub.ApprovalResolved(tc.Task.ID, string(tc.RiskLevel), approved, reason))
	})
	if !approved {
		return fmt.Errorf("%w: %s", engine.ErrApprovalDenied, reason)
	}
	return nil
}

func (s *Supervisor) captureLearning(ctx context.Context, tc *Context, success bool, failReason string) {
	if s.capture == nil {
		return
	}
	entry, err := s.capture.Capture(ctx, knowledge.TaskOutcome{
		Task: knowledge.TaskContext{
			TaskType:    tc.Task.TaskType,
			Description: tc.Task.Description,
			ProjectID:   tc.Task.ProjectID,
		},
		Plan:       tc.Plan,
		Success:    success,
		FailReason: failReason,
	})
	if err != nil {
		s.logger.Warn("learning capture failed", "task", tc.Task.ID, "error", err)
		return
	}
	if entry != nil {
		s.update(func() {
			tc.Learnings = append(tc.Learnings, entry.Title)
			tc.appendEvent(s.pub.LearningCaptured(tc.Task.ID, entry.ID, entry.Title))
		})
	}
}

// checkpoint blocks while paused and aborts on cancellation. Called at
// every stage boundary so pause and cancel take effect between stages,
// never mid-operation.
func (s *Supervisor) checkpoint(ctx context.Context, tc *Context) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", engine.ErrCancelled, ctx.Err())
		default:
		}

		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return fmt.Errorf("%w: task cancelled", engine.ErrCancelled)
		}
		if !s.paused {
			s.mu.Unlock()
			return nil
		}
		resume := s.resumeCh
		prev := tc.State
		s.mu.Unlock()

		s.transition(tc, StatePaused)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", engine.ErrCancelled, ctx.Err())
		case <-resume:
			s.transition(tc, prev)
		}
	}
}

// transition records and publishes a state change, appending the task-scoped
// event to the context log.
func (s *Supervisor) transition(tc *Context, next State) {
	s.mu.Lock()
	prev := tc.State
	if prev == next {
		s.mu.Unlock()
		return
	}
	tc.State = next
	tc.UpdatedAt = time.Now().UTC()
	retry := tc.RetryCount
	s.mu.Unlock()

	s.logger.Debug("state transition", "task", tc.Task.ID, "from", prev, "to", next)
	evt := s.pub.TaskState(tc.Task.ID, string(prev), string(next), retry)
	s.update(func() { tc.appendEvent(evt) })
}
