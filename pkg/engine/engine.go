// Package engine implements the issue-to-merge state machine: select an
// issue, plan, branch, implement through the agent provider, open a pull
// request, watch CI, and merge.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/docs"
	"github.com/tamma-ai/tamma/pkg/events"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/permissions"
	"github.com/tamma-ai/tamma/pkg/platform"
)

const (
	defaultCIPollInterval = 30 * time.Second
	defaultCITimeout      = 30 * time.Minute

	// planContextTokens is the budget requested from the aggregator when
	// assembling repository context for the planning prompt.
	planContextTokens = 4000
)

// ContextProvider assembles repository context for prompts. Satisfied by
// aggregator.Aggregator; nil disables context enrichment.
type ContextProvider interface {
	GetContext(ctx context.Context, req *models.ContextRequest) (*models.ContextResponse, error)
}

// PermissionGate resolves the permission surface consulted before agent
// tasks and merges. Satisfied by permissions.Resolver; nil leaves every
// operation ungated.
type PermissionGate interface {
	Resolve(ctx context.Context, agentType, projectID string) (*permissions.PermissionSet, error)
}

// DocFetcher pulls the reference documents an issue body links to, for
// embedding in the planning context. Satisfied by docs.Service; nil skips
// document enrichment.
type DocFetcher interface {
	FetchReferenced(ctx context.Context, text string) []docs.Doc
}

// Engine owns one issue lifecycle at a time. All state lives in ec; the
// pipeline entry points are serialized, so ec has a single writer.
type Engine struct {
	cfg      *config.EngineConfig
	platCfg  *config.PlatformConfig
	agentCfg *config.AgentConfig

	platform platform.GitPlatform
	agent    agentrun.Provider
	contexts ContextProvider
	docs     DocFetcher
	pub      *events.Publisher
	logger   *slog.Logger

	// Permission gate; installed via SetPermissions before the loop starts.
	perms     PermissionGate
	agentType string
	projectID string

	// pipeMu serializes the pipeline entry points (RunOnce, PlanOnly,
	// Implement). The agent works a single checkout, so pipelines must
	// never overlap.
	pipeMu sync.Mutex

	mu sync.Mutex
	ec Context

	// iteration outcome counters and cumulative agent spend, read by the
	// metrics collector.
	countMu sync.Mutex
	counts  map[string]int64
	costUSD float64

	// decisions carries manual approval outcomes into parked pipelines,
	// oldest first. Both the engine loop and supervised tasks can be
	// parked at once.
	decisionMu sync.Mutex
	decisions  []chan bool

	// sleep is replaced in tests to skip CI poll waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires an engine from its ports. contexts may be nil.
func New(cfg *config.EngineConfig, platCfg *config.PlatformConfig, agentCfg *config.AgentConfig,
	plat platform.GitPlatform, agent agentrun.Provider, contexts ContextProvider, pub *events.Publisher) *Engine {
	return &Engine{
		cfg:      cfg,
		platCfg:  platCfg,
		agentCfg: agentCfg,
		platform: plat,
		agent:    agent,
		contexts: contexts,
		pub:      pub,
		logger:   slog.Default().With("component", "engine"),
		ec:       Context{State: StateIdle},
		counts:   make(map[string]int64),
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// SetPermissions installs the permission gate. agentType names the role the
// sets were written for; projectID scopes resolution, usually owner/repo.
// Must be called before Run; a nil gate disables permission checks.
func (e *Engine) SetPermissions(gate PermissionGate, agentType, projectID string) {
	e.perms = gate
	e.agentType = agentType
	e.projectID = projectID
}

// SetDocFetcher installs the reference-document fetcher. Must be called
// before Run.
func (e *Engine) SetDocFetcher(fetcher DocFetcher) {
	e.docs = fetcher
}

// Status returns a snapshot for the status API.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{State: e.ec.State}
	if e.ec.Issue != nil {
		st.IssueNumber = e.ec.Issue.Number
		st.IssueTitle = e.ec.Issue.Title
	}
	st.Branch = e.ec.Branch
	if e.ec.PR != nil {
		st.PRNumber = e.ec.PR.Number
		st.PRURL = e.ec.PR.URL
	}
	return st
}

// Iteration outcomes tracked per RunOnce call.
const (
	IterationCompleted = "completed"
	IterationNoIssue   = "no_issue"
	IterationError     = "error"
)

func (e *Engine) recordIteration(outcome string) {
	e.countMu.Lock()
	e.counts[outcome]++
	e.countMu.Unlock()
}

// IterationCounts returns a copy of the per-outcome iteration counters.
func (e *Engine) IterationCounts() map[string]int64 {
	e.countMu.Lock()
	defer e.countMu.Unlock()
	out := make(map[string]int64, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}

// recordAgentCost folds a run's reported spend into the running total.
// Failed runs report cost too.
func (e *Engine) recordAgentCost(result *agentrun.Result) {
	if result == nil || result.CostUSD <= 0 {
		return
	}
	e.countMu.Lock()
	e.costUSD += result.CostUSD
	e.countMu.Unlock()
}

// AgentCostUSD returns the cumulative spend reported by agent runs.
func (e *Engine) AgentCostUSD() float64 {
	e.countMu.Lock()
	defer e.countMu.Unlock()
	return e.costUSD
}

// Run executes iterations until ctx is cancelled, pausing PollInterval
// between them.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("iteration failed", "error", err)
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return nil
		}
	}
}

// RunOnce executes a single issue-to-merge iteration. A clean pass ends in
// COMPLETED then resets to IDLE; an empty issue list is not an error. Any
// failure is recorded, published, and followed by a reset to IDLE.
func (e *Engine) RunOnce(ctx context.Context) (err error) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()

	outcome := IterationCompleted
	defer func() {
		if err != nil {
			outcome = IterationError
			e.fail(err)
		}
		e.recordIteration(outcome)
		e.reset()
	}()

	issue, err := e.selectIssue(ctx)
	if err != nil {
		return err
	}
	if issue == nil {
		outcome = IterationNoIssue
		return nil
	}

	analysis, err := e.analyzeIssue(ctx, issue)
	if err != nil {
		return err
	}

	plan, err := e.generatePlan(ctx, issue, analysis)
	if err != nil {
		return err
	}

	forceManual, err := e.checkPlanPermissions(ctx, plan)
	if err != nil {
		return err
	}

	if err := e.awaitApproval(ctx, forceManual); err != nil {
		return err
	}

	branch, err := e.createBranch(ctx, issue)
	if err != nil {
		return err
	}

	if _, err := e.implement(ctx, plan, branch, ""); err != nil {
		return err
	}

	pr, err := e.createPR(ctx, issue, plan, branch)
	if err != nil {
		return err
	}

	if err := e.monitorAndMerge(ctx, issue, pr); err != nil {
		return err
	}

	e.setState(StateCompleted)
	e.logger.Info("issue completed", "issue", issue.Number, "pr", pr.Number)
	return nil
}

// PlanOnly analyzes one issue and generates a plan without any platform
// mutation. Used by the plan subcommand.
func (e *Engine) PlanOnly(ctx context.Context, issueNumber int) (*models.DevelopmentPlan, error) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()

	issue, err := e.platform.GetIssue(ctx, issueNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch issue #%d: %w", issueNumber, err)
	}
	e.mu.Lock()
	e.ec.Issue = issue
	e.mu.Unlock()
	defer e.reset()

	analysis, err := e.analyzeIssue(ctx, issue)
	if err != nil {
		return nil, err
	}
	return e.generatePlan(ctx, issue, analysis)
}

// Approve resolves the oldest pending manual approval. Returns false when
// nothing was waiting.
func (e *Engine) Approve(approved bool) bool {
	e.decisionMu.Lock()
	var ch chan bool
	if len(e.decisions) > 0 {
		ch = e.decisions[0]
		e.decisions = e.decisions[1:]
	}
	e.decisionMu.Unlock()
	if ch == nil {
		return false
	}
	ch <- approved
	return true
}

// selectIssue picks the oldest open issue carrying every include label and
// none of the exclude labels. Returns nil when no issue qualifies.
func (e *Engine) selectIssue(ctx context.Context) (*models.Issue, error) {
	e.setState(StateSelectingIssue)

	issues, err := e.platform.ListIssues(ctx, platform.IssueFilter{Labels: e.platCfg.IssueLabels})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	var picked *models.Issue
	for i := range issues {
		if issues[i].HasAnyLabel(e.platCfg.ExcludeLabels) {
			continue
		}
		picked = &issues[i]
		break
	}
	if picked == nil {
		e.logger.Debug("no eligible issues")
		return nil, nil
	}

	e.mu.Lock()
	e.ec.Issue = picked
	e.mu.Unlock()
	e.pub.IssueSelected(picked.Number, picked.Title, picked.URL)
	e.logger.Info("issue selected", "issue", picked.Number, "title", picked.Title)

	if e.cfg.DryRun {
		return picked, nil
	}
	if e.platCfg.BotUsername != "" {
		if err := e.platform.AssignIssue(ctx, picked.Number, []string{e.platCfg.BotUsername}); err != nil {
			e.logger.Warn("failed to assign issue", "issue", picked.Number, "error", err)
		}
	}
	comment := fmt.Sprintf("Starting automated work on this issue (branch `%s`).", BranchName(picked.Number, picked.Title))
	if err := e.platform.AddIssueComment(ctx, picked.Number, comment); err != nil {
		e.logger.Warn("failed to post start comment", "issue", picked.Number, "error", err)
	}
	return picked, nil
}

// analyzeIssue assembles the planning context: issue body, comments, inline
// #N references resolved to their titles, and any reference documents the
// body links to.
func (e *Engine) analyzeIssue(ctx context.Context, issue *models.Issue) (string, error) {
	e.setState(StateAnalyzing)

	var related []models.Issue
	for _, n := range issue.RelatedIssues {
		ref, err := e.platform.GetIssue(ctx, n)
		if err != nil {
			e.logger.Warn("failed to resolve issue reference", "issue", n, "error", err)
			continue
		}
		related = append(related, *ref)
	}

	text := analysisText(issue, related)
	if e.docs != nil {
		if refs := e.docs.FetchReferenced(ctx, issue.Body); len(refs) > 0 {
			text += referencedDocsText(refs)
		}
	}
	return text, nil
}

// generatePlan runs the agent in planning mode against the plan schema.
func (e *Engine) generatePlan(ctx context.Context, issue *models.Issue, analysis string) (*models.DevelopmentPlan, error) {
	e.setState(StateGeneratingPlan)

	repoContext := e.fetchContext(ctx, issue)
	task := agentrun.TaskConfig{
		Prompt:           buildPlanningPrompt(analysis, repoContext),
		Model:            e.agentCfg.Model,
		MaxBudgetUSD:     e.agentCfg.MaxBudgetUSD,
		AllowedTools:     e.agentCfg.AllowedTools,
		SkipPermissions:  e.agentCfg.PermissionMode == config.PermissionModeBypass,
		JSONSchema:       planSchema,
		WorkingDirectory: e.cfg.WorkingDirectory,
	}
	if err := e.applyGate(ctx, &task); err != nil {
		return nil, err
	}
	result, err := e.agent.ExecuteTask(ctx, task, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanGeneration, err)
	}
	e.recordAgentCost(result)
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrPlanGeneration, result.Error)
	}

	var plan models.DevelopmentPlan
	if err := json.Unmarshal([]byte(result.Output), &plan); err != nil {
		return nil, fmt.Errorf("%w: parse plan: %v", ErrPlanGeneration, err)
	}
	if plan.Summary == "" || len(plan.FileChanges) == 0 {
		return nil, fmt.Errorf("%w: plan missing summary or file changes", ErrPlanGeneration)
	}
	plan.IssueNumber = issue.Number
	if !plan.EstimatedComplexity.IsValid() {
		plan.EstimatedComplexity = models.ComplexityMedium
	}

	e.mu.Lock()
	e.ec.Plan = &plan
	e.ec.AgentSessionID = result.SessionID
	e.mu.Unlock()
	e.pub.PlanGenerated(issue.Number, plan.Summary, string(plan.EstimatedComplexity), len(plan.FileChanges))
	return &plan, nil
}

// fetchContext asks the aggregator for repository context. Best-effort: a
// retrieval failure degrades the prompt, it does not fail the plan.
func (e *Engine) fetchContext(ctx context.Context, issue *models.Issue) string {
	if e.contexts == nil {
		return ""
	}
	resp, err := e.contexts.GetContext(ctx, &models.ContextRequest{
		Query:     issue.Title + " " + issue.Body,
		TaskType:  models.TaskTypePlanning,
		MaxTokens: planContextTokens,
	})
	if err != nil {
		e.logger.Warn("context retrieval failed", "issue", issue.Number, "error", err)
		return ""
	}
	return resp.Text
}

// awaitApproval blocks until Approve is called when in manual mode or when
// the permission gate demanded approval for this plan. Otherwise a no-op.
func (e *Engine) awaitApproval(ctx context.Context, forceManual bool) error {
	e.setState(StateAwaitingApproval)
	if e.cfg.ApprovalMode != config.ApprovalModeManual && !forceManual {
		return nil
	}

	// Arm before publishing so a subscriber reacting to the event finds
	// the decision pending.
	ch := e.armDecision()

	e.mu.Lock()
	issue, summary := 0, ""
	if e.ec.Issue != nil {
		issue = e.ec.Issue.Number
	}
	if e.ec.Plan != nil {
		summary = e.ec.Plan.Summary
	}
	e.mu.Unlock()
	e.pub.ApprovalPending(issue, summary)

	approved, err := e.waitDecision(ctx, ch)
	if err != nil {
		return err
	}
	e.pub.ApprovalDecision(issue, approved)
	if !approved {
		return ErrApprovalDenied
	}
	return nil
}

// armDecision queues a fresh one-shot channel for Approve to resolve.
func (e *Engine) armDecision() chan bool {
	ch := make(chan bool, 1)
	e.decisionMu.Lock()
	e.decisions = append(e.decisions, ch)
	e.decisionMu.Unlock()
	return ch
}

func (e *Engine) waitDecision(ctx context.Context, ch chan bool) (bool, error) {
	select {
	case <-ctx.Done():
		e.disarmDecision(ch)
		return false, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case approved := <-ch:
		return approved, nil
	}
}

func (e *Engine) disarmDecision(ch chan bool) {
	e.decisionMu.Lock()
	defer e.decisionMu.Unlock()
	for i, c := range e.decisions {
		if c == ch {
			e.decisions = append(e.decisions[:i], e.decisions[i+1:]...)
			return
		}
	}
}

// AwaitDecision parks the caller on the manual approval surface until
// Approve resolves it or ctx ends. The supervised task path uses this so
// the approval endpoint covers both pipelines; the engine loop goes through
// awaitApproval, which also manages state and events.
func (e *Engine) AwaitDecision(ctx context.Context) (bool, error) {
	return e.waitDecision(ctx, e.armDecision())
}

// createBranch creates feature/<n>-<slug> off the default branch, appending
// -1, -2, … until the name is free.
func (e *Engine) createBranch(ctx context.Context, issue *models.Issue) (string, error) {
	e.setState(StateCreatingBranch)

	base := e.platCfg.DefaultBranch
	if base == "" {
		repo, err := e.platform.GetRepository(ctx)
		if err != nil {
			return "", fmt.Errorf("resolve default branch: %w", err)
		}
		base = repo.DefaultBranch
	}

	name := BranchName(issue.Number, issue.Title)
	candidate := name
	for suffix := 1; ; suffix++ {
		_, err := e.platform.GetBranch(ctx, candidate)
		if platform.IsNotFound(err) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("check branch %q: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d", name, suffix)
	}

	if !e.cfg.DryRun {
		if _, err := e.platform.CreateBranch(ctx, candidate, base); err != nil {
			return "", fmt.Errorf("create branch %q: %w", candidate, err)
		}
	}

	e.mu.Lock()
	e.ec.Branch = candidate
	e.mu.Unlock()
	e.pub.BranchCreated(issue.Number, candidate)
	return candidate, nil
}

// implement drives the coding subprocess for the engine loop, carrying the
// agent session through the iteration context so a later CI-fix run resumes
// it.
func (e *Engine) implement(ctx context.Context, plan *models.DevelopmentPlan, branch, feedback string) (*agentrun.Result, error) {
	e.mu.Lock()
	resume := e.ec.AgentSessionID
	e.mu.Unlock()

	result, err := e.implementWith(ctx, plan, branch, feedback, resume)
	if err != nil {
		return result, err
	}
	e.mu.Lock()
	e.ec.AgentSessionID = result.SessionID
	e.mu.Unlock()
	return result, nil
}

// implementWith runs one coding attempt, resuming the given agent session.
// It leaves the iteration context untouched: the supervised path owns its
// session outside the engine, so nothing here may leak into the next loop
// iteration.
func (e *Engine) implementWith(ctx context.Context, plan *models.DevelopmentPlan, branch, feedback, resume string) (*agentrun.Result, error) {
	e.setState(StateImplementing)

	taskID := fmt.Sprintf("issue-%d", plan.IssueNumber)
	task := agentrun.TaskConfig{
		Prompt:           buildImplementationPrompt(plan, branch, feedback),
		Model:            e.agentCfg.Model,
		MaxBudgetUSD:     e.agentCfg.MaxBudgetUSD,
		AllowedTools:     e.agentCfg.AllowedTools,
		SkipPermissions:  e.agentCfg.PermissionMode == config.PermissionModeBypass,
		ResumeSessionID:  resume,
		WorkingDirectory: e.cfg.WorkingDirectory,
	}
	if err := e.applyGate(ctx, &task); err != nil {
		return nil, err
	}
	result, err := e.agent.ExecuteTask(ctx, task, func(evt agentrun.ProgressEvent) {
		e.pub.AgentProgress(taskID, string(evt.Kind), evt.Text, evt.ToolName)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrImplementationFailed, err)
	}
	e.recordAgentCost(result)
	if !result.Success {
		return result, classifyAgentFailure(result.Error)
	}
	return result, nil
}

// Implement runs one supervised coding attempt, optionally with review
// feedback appended to the prompt and a previous attempt's agent session to
// resume. Blocks while another pipeline holds the checkout and returns the
// engine to idle afterwards, so nothing carries into the loop's next
// iteration.
func (e *Engine) Implement(ctx context.Context, plan *models.DevelopmentPlan, branch, feedback, resumeSession string) (*agentrun.Result, error) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	defer e.setState(StateIdle)
	return e.implementWith(ctx, plan, branch, feedback, resumeSession)
}

// classifyAgentFailure maps a subprocess error message onto the failure
// taxonomy: cost-cap and escalation messages are terminal, everything else
// is retryable.
func classifyAgentFailure(message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "budget") || strings.Contains(lower, "cost limit"):
		return fmt.Errorf("%w: %s", ErrCostLimitExceeded, message)
	case strings.Contains(lower, "escalat"):
		return fmt.Errorf("%w: %s", ErrEscalationRequired, message)
	default:
		return fmt.Errorf("%w: %s", ErrImplementationFailed, message)
	}
}

// createPR opens the pull request with a Closes footer, plan summary, risk
// notes, and configured labels.
func (e *Engine) createPR(ctx context.Context, issue *models.Issue, plan *models.DevelopmentPlan, branch string) (*models.PullRequest, error) {
	e.setState(StateCreatingPR)

	if e.cfg.DryRun {
		pr := &models.PullRequest{Number: 0, HeadBranch: branch, State: models.PRStateOpen}
		e.mu.Lock()
		e.ec.PR = pr
		e.mu.Unlock()
		return pr, nil
	}

	base := e.platCfg.DefaultBranch
	if base == "" {
		base = "main"
	}
	pr, err := e.platform.CreatePR(ctx, platform.NewPullRequest{
		Title:  prTitle(issue, plan),
		Body:   prBody(issue, plan),
		Head:   branch,
		Base:   base,
		Labels: e.platCfg.PRLabels,
	})
	if err != nil {
		return nil, fmt.Errorf("create pr for #%d: %w", issue.Number, err)
	}

	e.mu.Lock()
	e.ec.PR = pr
	e.mu.Unlock()
	e.pub.PRCreated(issue.Number, pr.Number, pr.URL)
	e.logger.Info("pull request opened", "issue", issue.Number, "pr", pr.Number)
	return pr, nil
}

// monitorAndMerge polls CI until success, failure, or the deadline. On
// success it merges, deletes the branch, and closes the issue; failure and
// timeout leave the PR intact.
func (e *Engine) monitorAndMerge(ctx context.Context, issue *models.Issue, pr *models.PullRequest) error {
	e.setState(StateMonitoringPR)
	if e.cfg.DryRun {
		return nil
	}

	interval := e.cfg.CIPollInterval
	if interval <= 0 {
		interval = defaultCIPollInterval
	}
	timeout := e.cfg.CITimeout
	if timeout <= 0 {
		timeout = defaultCITimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		current, err := e.platform.GetPR(ctx, pr.Number)
		if err != nil {
			return fmt.Errorf("poll pr #%d: %w", pr.Number, err)
		}

		status, err := e.platform.GetCIStatus(ctx, current.HeadSHA)
		if err != nil {
			return fmt.Errorf("poll ci for pr #%d: %w", pr.Number, err)
		}

		switch status.State {
		case models.CIStateFailure, models.CIStateError:
			return fmt.Errorf("%w: pr #%d (%d of %d checks failed)",
				ErrCIFailed, pr.Number, status.FailureCount, status.TotalCount)
		case models.CIStateSuccess:
			// Mergeability may still be computing; an explicit false
			// blocks the merge until it flips or the deadline passes.
			if !current.MergeBlocked() {
				return e.merge(ctx, issue, current)
			}
			e.logger.Info("ci green but pr not mergeable, waiting", "pr", pr.Number)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: pr #%d after %s", ErrCITimeout, pr.Number, timeout)
		}
		if err := e.sleep(ctx, interval); err != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}
	}
}

func (e *Engine) merge(ctx context.Context, issue *models.Issue, pr *models.PullRequest) error {
	if err := e.checkMergePermission(ctx, pr.Number); err != nil {
		return err
	}

	method := e.cfg.MergeMethod
	if !method.IsValid() {
		method = models.MergeMethodSquash
	}
	if err := e.platform.MergePR(ctx, pr.Number, method); err != nil {
		return fmt.Errorf("merge pr #%d: %w", pr.Number, err)
	}
	e.pub.PRMerged(issue.Number, pr.Number, pr.URL)

	if err := e.platform.DeleteBranch(ctx, pr.HeadBranch); err != nil {
		e.logger.Warn("failed to delete merged branch", "branch", pr.HeadBranch, "error", err)
	}

	comment := fmt.Sprintf("Resolved by #%d.", pr.Number)
	if err := e.platform.AddIssueComment(ctx, issue.Number, comment); err != nil {
		e.logger.Warn("failed to post close comment", "issue", issue.Number, "error", err)
	}
	closed := "closed"
	if err := e.platform.UpdateIssue(ctx, issue.Number, platform.IssueUpdate{State: &closed}); err != nil {
		return fmt.Errorf("close issue #%d: %w", issue.Number, err)
	}
	return nil
}

// setState records and publishes a state transition.
func (e *Engine) setState(next State) {
	e.mu.Lock()
	prev := e.ec.State
	e.ec.State = next
	issue := 0
	if e.ec.Issue != nil {
		issue = e.ec.Issue.Number
	}
	e.mu.Unlock()

	e.logger.Debug("state transition", "from", prev, "to", next)
	e.pub.EngineState(string(prev), string(next), issue)
}

// fail records an error transition before the reset to idle.
func (e *Engine) fail(err error) {
	e.mu.Lock()
	state := e.ec.State
	issue := 0
	if e.ec.Issue != nil {
		issue = e.ec.Issue.Number
	}
	e.ec.State = StateError
	e.mu.Unlock()

	e.logger.Error("engine error", "state", state, "error", err)
	e.pub.EngineError(issue, string(state), err.Error())
}

func (e *Engine) reset() {
	e.mu.Lock()
	prev := e.ec.State
	e.ec.reset()
	e.mu.Unlock()
	if prev != StateIdle {
		e.pub.EngineState(string(prev), string(StateIdle), 0)
	}
}
