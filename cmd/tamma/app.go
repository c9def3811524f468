package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tamma-ai/tamma/pkg/aggregator"
	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/api"
	"github.com/tamma-ai/tamma/pkg/cleanup"
	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/docs"
	"github.com/tamma-ai/tamma/pkg/engine"
	"github.com/tamma-ai/tamma/pkg/events"
	"github.com/tamma-ai/tamma/pkg/knowledge"
	"github.com/tamma-ai/tamma/pkg/masking"
	"github.com/tamma-ai/tamma/pkg/mcp"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/permissions"
	"github.com/tamma-ai/tamma/pkg/platform"
	"github.com/tamma-ai/tamma/pkg/rag"
	"github.com/tamma-ai/tamma/pkg/retrieval"
	"github.com/tamma-ai/tamma/pkg/scrum"
	"github.com/tamma-ai/tamma/pkg/slack"
	"github.com/tamma-ai/tamma/pkg/warnings"
)

const wsWriteTimeout = 10 * time.Second

// app holds every wired component for one process lifetime.
type app struct {
	cfg *config.Config

	platform   *platform.GitHubClient
	agent      *agentrun.SubprocessProvider
	mcpManager *mcp.Manager
	health     *mcp.HealthMonitor
	warnings   *warnings.Registry
	aggregator *aggregator.Aggregator

	bus        *events.Bus
	pub        *events.Publisher
	conns      *events.ConnectionManager
	engine     *engine.Engine
	supervisor *scrum.Supervisor
	tasks      *scrum.Runner
	apiServer  *api.Server
	slackRelay *slack.Relay
	janitor    *cleanup.Service
}

// enginePlanner adapts the engine's mutation-free planning path to the
// supervisor's Planner port.
type enginePlanner struct {
	eng *engine.Engine
}

func (p *enginePlanner) GeneratePlan(ctx context.Context, task scrum.Task) (*models.DevelopmentPlan, error) {
	if task.IssueNumber == 0 {
		return nil, fmt.Errorf("task %s carries no issue number", task.ID)
	}
	return p.eng.PlanOnly(ctx, task.IssueNumber)
}

// apiApprover parks supervised plans on the engine's manual approval surface,
// so POST /api/v1/approval resolves both pipelines.
type apiApprover struct {
	eng *engine.Engine
}

func (a *apiApprover) RequestApproval(ctx context.Context, _ *models.DevelopmentPlan, _ scrum.RiskLevel, _ *knowledge.CheckResult) (bool, string, error) {
	approved, err := a.eng.AwaitDecision(ctx)
	if err != nil {
		return false, "", err
	}
	if !approved {
		return false, "denied via approval endpoint", nil
	}
	return true, "", nil
}

// buildApp wires the full component graph from configuration. The agent
// subprocess is not probed here; commands that need it call checkAgent.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, warnings: warnings.NewRegistry()}

	plat, err := platform.NewGitHubClient(cfg.Platform)
	if err != nil {
		return nil, &exitError{code: exitPlatformUnavailable, err: fmt.Errorf("platform client: %w", err)}
	}
	plat.SetWarnings(a.warnings)
	a.platform = plat
	a.agent = agentrun.NewSubprocessProvider(cfg.Agent)

	masker := masking.NewService(cfg.MCPServers, cfg.Masking)

	a.mcpManager = mcp.NewManager(cfg.MCPServers)
	a.mcpManager.SetMasker(masker)
	a.mcpManager.ConnectAll(ctx)
	a.health = mcp.NewHealthMonitor(a.mcpManager, a.warnings)

	agg, pipeline := buildAggregator(cfg, a.mcpManager)
	a.aggregator = agg

	a.bus = events.NewBus()
	a.pub = events.NewPublisher(a.bus)
	a.pub.SetMasker(masker)
	a.conns = events.NewConnectionManager(a.bus, wsWriteTimeout)

	a.engine = engine.New(cfg.Engine, cfg.Platform, cfg.Agent, a.platform, a.agent, a.aggregator, a.pub)

	gate, err := buildPermissions(cfg)
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	if gate != nil {
		a.engine.SetPermissions(gate, cfg.Agent.AgentType, cfg.Platform.Owner+"/"+cfg.Platform.Repo)
	}

	var docSvc *docs.Service
	if cfg.Docs != nil && cfg.Docs.Enabled {
		docSvc = docs.NewService(cfg.Docs, os.Getenv(cfg.Platform.TokenEnv))
		a.engine.SetDocFetcher(docSvc)
	}

	checker, capture, err := buildKnowledge(cfg)
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	// Supervised plans above the auto-approve line wait on the approval
	// endpoint; without the API nobody could resolve them.
	var approver scrum.Approver
	if cfg.API.Enabled {
		approver = &apiApprover{eng: a.engine}
	}
	a.supervisor = scrum.New(cfg.Engine, cfg.Agent,
		&enginePlanner{eng: a.engine}, a.engine, approver, nil, checker, capture, a.pub)
	a.tasks = scrum.NewRunner(a.supervisor, 0)

	if cfg.API.Enabled {
		a.apiServer = api.NewServer(cfg.API, api.Dependencies{
			Engine:      a.engine,
			Supervisor:  a.supervisor,
			Tasks:       a.tasks,
			Aggregator:  a.aggregator,
			MCP:         a.mcpManager,
			Health:      a.health,
			Platform:    a.platform,
			Warnings:    a.warnings,
			ConnManager: a.conns,
		})
	}

	if n := cfg.Notifications; n != nil && n.Slack != nil && n.Slack.Enabled {
		if notifier := slack.NewNotifier(os.Getenv(n.Slack.TokenEnv), n.Slack.Channel); notifier != nil {
			a.slackRelay = slack.NewRelay(notifier, a.bus)
		} else {
			slog.Warn("slack notifications configured but token is empty",
				"token_env", n.Slack.TokenEnv)
		}
	}

	if cfg.Cleanup != nil && cfg.Cleanup.Enabled {
		targets := []cleanup.Target{
			{Name: "context_responses", Purge: a.aggregator.PurgeExpired},
			{Name: "rag_results", Purge: pipeline.PurgeExpired},
			{Name: "mcp_capabilities", Purge: a.mcpManager.CapabilityCache().PurgeExpired},
		}
		if docSvc != nil {
			targets = append(targets, cleanup.Target{Name: "reference_docs", Purge: docSvc.PurgeExpired})
		}
		a.janitor = cleanup.NewService(cfg.Cleanup.Interval, targets...)
	}
	return a, nil
}

// buildAggregator assembles the retrieval sources and the RAG pipeline.
// The pipeline is returned alongside so the janitor can reach its result
// cache. The vector source needs an embedding service and is not wired; its
// contribution reports as unavailable when requested.
func buildAggregator(cfg *config.Config, manager *mcp.Manager) (*aggregator.Aggregator, *rag.Pipeline) {
	keyword := retrieval.NewKeywordSource(cfg.Aggregator.Sources[models.SourceKeyword].MaxChunks)
	workdir := cfg.Engine.WorkingDirectory
	if workdir != "" {
		indexed, err := retrieval.IndexWorkspace(keyword, workdir)
		if err != nil {
			slog.Warn("workspace indexing incomplete", "workdir", workdir, "error", err)
		}
		slog.Info("workspace indexed", "workdir", workdir, "files", indexed)
	}

	mcpSource := retrieval.NewMCPSource(manager, cfg.Aggregator.Sources[models.SourceMCP].MaxChunks)

	pipeline := rag.NewPipeline(cfg.RAG, []rag.Fetcher{
		rag.NewSourceFetcher(keyword),
		rag.NewSourceFetcher(mcpSource),
	}, map[models.SourceKind]float64{
		models.SourceKeyword: 1.0,
		models.SourceMCP:     0.5,
	})

	sources := []retrieval.ContextSource{keyword, mcpSource, retrieval.NewRAGSource(pipeline)}
	return aggregator.New(cfg.Aggregator, cfg.RAG.Ranking, sources), pipeline
}

// buildPermissions loads permission sets from permissions.yaml in the config
// directory. A missing or empty file leaves the engine ungated.
func buildPermissions(cfg *config.Config) (*permissions.Resolver, error) {
	sets, err := permissions.Load(filepath.Join(cfg.ConfigDir(), "permissions.yaml"))
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, nil
	}
	store := permissions.NewMemoryStore(nil)
	for _, set := range sets {
		store.Put(set)
	}
	return permissions.NewResolver(store, 0, 0), nil
}

// buildKnowledge loads seed entries from knowledge.yaml in the config
// directory and assembles the checker and capture services.
func buildKnowledge(cfg *config.Config) (*knowledge.Checker, *knowledge.CaptureService, error) {
	entries, err := knowledge.LoadEntries(filepath.Join(cfg.ConfigDir(), "knowledge.yaml"))
	if err != nil {
		return nil, nil, err
	}
	store := knowledge.NewMemoryStore(entries...)
	detector := knowledge.NewDuplicateDetector(cfg.Knowledge.TitleThreshold, cfg.Knowledge.KeywordThreshold)
	return knowledge.NewChecker(store, cfg.Knowledge), knowledge.NewCaptureService(store, detector), nil
}

// checkAgent probes the coding CLI once before any work starts.
func (a *app) checkAgent(ctx context.Context) error {
	if !a.agent.IsAvailable(ctx) {
		return &exitError{
			code: exitAgentUnavailable,
			err:  fmt.Errorf("agent CLI %q is not available", a.cfg.Agent.CLIPath),
		}
	}
	return nil
}

// Close releases every component in reverse dependency order.
func (a *app) Close() {
	if err := a.aggregator.Dispose(); err != nil {
		slog.Error("aggregator dispose failed", "error", err)
	}
	if err := a.agent.Dispose(); err != nil {
		slog.Error("agent dispose failed", "error", err)
	}
	if err := a.mcpManager.Close(); err != nil {
		slog.Error("mcp manager close failed", "error", err)
	}
}
