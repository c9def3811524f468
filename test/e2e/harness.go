// Package e2e boots the full engine-through-API stack against an in-memory
// GitHub and a scripted agent provider, and exercises it over real HTTP and
// WebSocket connections.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/aggregator"
	"github.com/tamma-ai/tamma/pkg/api"
	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/engine"
	"github.com/tamma-ai/tamma/pkg/events"
	"github.com/tamma-ai/tamma/pkg/knowledge"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/platform"
	"github.com/tamma-ai/tamma/pkg/retrieval"
	"github.com/tamma-ai/tamma/pkg/scrum"
)

const (
	testOwner    = "acme"
	testRepo     = "widgets"
	testTokenEnv = "TAMMA_E2E_GITHUB_TOKEN"
)

// TestApp boots a complete tamma instance for e2e testing: real engine,
// aggregator, event bus, and API server; fake GitHub; scripted agent.
type TestApp struct {
	Config struct {
		Agent    *config.AgentConfig
		Engine   *config.EngineConfig
		Platform *config.PlatformConfig
	}

	GitHub *fakeGitHub
	Agent  *ScriptedAgent

	Bus        *events.Bus
	Publisher  *events.Publisher
	Engine     *engine.Engine
	Supervisor *scrum.Supervisor
	Tasks      *scrum.Runner
	Knowledge  *knowledge.MemoryStore
	Aggregator *aggregator.Aggregator
	ConnMgr    *events.ConnectionManager
	Server     *httptest.Server

	BaseURL string
	WSURL   string

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	agent         *ScriptedAgent
	approvalMode  config.ApprovalMode
	excludeLabels []string
	sources       []retrieval.ContextSource
	engineTweak   func(*config.EngineConfig)
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithAgent sets a pre-scripted agent provider.
func WithAgent(agent *ScriptedAgent) TestAppOption {
	return func(c *testAppConfig) { c.agent = agent }
}

// WithApprovalMode sets the engine approval mode (default auto).
func WithApprovalMode(mode config.ApprovalMode) TestAppOption {
	return func(c *testAppConfig) { c.approvalMode = mode }
}

// WithExcludeLabels sets the labels that disqualify an issue.
func WithExcludeLabels(labels ...string) TestAppOption {
	return func(c *testAppConfig) { c.excludeLabels = labels }
}

// WithContextSources wires an aggregator over the given retrieval sources
// into the engine and the API. Without this option the engine runs with
// context enrichment disabled.
func WithContextSources(sources ...retrieval.ContextSource) TestAppOption {
	return func(c *testAppConfig) { c.sources = sources }
}

// WithEngineTweak mutates the engine config after defaults are applied.
func WithEngineTweak(tweak func(*config.EngineConfig)) TestAppOption {
	return func(c *testAppConfig) { c.engineTweak = tweak }
}

// issuePlanner adapts the engine's planning path to the supervisor's port,
// matching the production wiring.
type issuePlanner struct {
	eng *engine.Engine
}

func (p *issuePlanner) GeneratePlan(ctx context.Context, task scrum.Task) (*models.DevelopmentPlan, error) {
	return p.eng.PlanOnly(ctx, task.IssueNumber)
}

// endpointApprover parks supervised plans on the engine's manual approval
// surface so POST /api/v1/approval resolves them.
type endpointApprover struct {
	eng *engine.Engine
}

func (a *endpointApprover) RequestApproval(ctx context.Context, _ *models.DevelopmentPlan, _ scrum.RiskLevel, _ *knowledge.CheckResult) (bool, string, error) {
	approved, err := a.eng.AwaitDecision(ctx)
	if err != nil {
		return false, "", err
	}
	if !approved {
		return false, "denied via approval endpoint", nil
	}
	return true, "", nil
}

// NewTestApp creates and starts a full tamma test instance. Shutdown is
// registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{approvalMode: config.ApprovalModeAuto}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.agent == nil {
		tc.agent = NewScriptedAgent()
	}

	gh := newFakeGitHub(testOwner, testRepo, "main")
	t.Cleanup(gh.Close)
	t.Setenv(testTokenEnv, "e2e-test-token")

	agentCfg := config.DefaultAgentConfig()

	engCfg := config.DefaultEngineConfig()
	engCfg.ApprovalMode = tc.approvalMode
	// CI is scripted, so poll without waiting; the timeout only needs to
	// outlast a few scripted pending states.
	engCfg.CIPollInterval = time.Millisecond
	engCfg.CITimeout = 5 * time.Second
	if tc.engineTweak != nil {
		tc.engineTweak(engCfg)
	}

	platCfg := config.DefaultPlatformConfig()
	platCfg.BaseURL = gh.URL()
	platCfg.TokenEnv = testTokenEnv
	platCfg.Owner = testOwner
	platCfg.Repo = testRepo
	platCfg.IssueLabels = []string{"ai-ready"}
	platCfg.ExcludeLabels = tc.excludeLabels
	platCfg.BotUsername = "tamma-bot"
	platCfg.PRLabels = []string{"automated"}

	plat, err := platform.NewGitHubClient(platCfg)
	require.NoError(t, err)

	bus := events.NewBus()
	pub := events.NewPublisher(bus)

	var agg *aggregator.Aggregator
	var contexts engine.ContextProvider
	if len(tc.sources) > 0 {
		agg = aggregator.New(config.DefaultAggregatorConfig(), config.DefaultRAGConfig().Ranking, tc.sources)
		contexts = agg
	}

	eng := engine.New(engCfg, platCfg, agentCfg, plat, tc.agent, contexts, pub)
	connMgr := events.NewConnectionManager(bus, 5*time.Second)

	store := knowledge.NewMemoryStore()
	capture := knowledge.NewCaptureService(store, knowledge.NewDuplicateDetector(0, 0))
	sup := scrum.New(engCfg, agentCfg, &issuePlanner{eng: eng}, eng,
		&endpointApprover{eng: eng}, nil, nil, capture, pub)
	runner := scrum.NewRunner(sup, 0)
	runCtx, cancelRun := context.WithCancel(context.Background())
	runner.Start(runCtx)
	t.Cleanup(func() {
		cancelRun()
		runner.Stop()
	})

	deps := api.Dependencies{
		Engine:      eng,
		Platform:    plat,
		ConnManager: connMgr,
		Supervisor:  sup,
		Tasks:       runner,
	}
	// Only assign when present: a typed-nil *Aggregator would make the
	// interface field non-nil and trip the stats endpoint.
	if agg != nil {
		deps.Aggregator = agg
	}
	server := httptest.NewServer(api.NewServer(config.DefaultAPIConfig(), deps).Routes())
	t.Cleanup(server.Close)

	app := &TestApp{
		GitHub:     gh,
		Agent:      tc.agent,
		Bus:        bus,
		Publisher:  pub,
		Engine:     eng,
		Supervisor: sup,
		Tasks:      runner,
		Knowledge:  store,
		Aggregator: agg,
		ConnMgr:    connMgr,
		Server:     server,
		BaseURL:    server.URL,
		WSURL:      "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		t:          t,
	}
	app.Config.Agent = agentCfg
	app.Config.Engine = engCfg
	app.Config.Platform = platCfg
	return app
}

// RunIteration executes one engine iteration synchronously.
func (app *TestApp) RunIteration() error {
	return app.Engine.RunOnce(context.Background())
}

// StartIteration runs one engine iteration in the background and returns the
// channel its error lands on. Used by approval tests, where RunOnce blocks
// until the HTTP approval arrives.
func (app *TestApp) StartIteration() <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- app.Engine.RunOnce(context.Background())
	}()
	return done
}

// WaitIteration waits for a started iteration to finish.
func (app *TestApp) WaitIteration(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(30 * time.Second):
		t.Fatal("iteration did not finish within 30s")
		return nil
	}
}

// WaitForEngineState polls the status API until the engine reports the given
// state.
func (app *TestApp) WaitForEngineState(t *testing.T, state string) {
	t.Helper()
	var last string
	require.Eventually(t, func() bool {
		status := app.getJSON(t, "/api/v1/status", http.StatusOK)
		eng, _ := status["engine"].(map[string]interface{})
		last, _ = eng["state"].(string)
		return last == state
	}, 10*time.Second, 5*time.Millisecond,
		"engine did not reach state %q (last: %s)", state, last)
}

// SubmitTask posts a supervised task over the API and returns its ID.
func (app *TestApp) SubmitTask(t *testing.T, description string, issue int) string {
	t.Helper()
	resp := app.postJSON(t, "/api/v1/supervisor/tasks",
		map[string]interface{}{"description": description, "issueNumber": issue},
		http.StatusAccepted)
	id, _ := resp["taskId"].(string)
	require.NotEmpty(t, id)
	return id
}

// WaitForTaskState polls the status API until the supervisor reports the
// given task state.
func (app *TestApp) WaitForTaskState(t *testing.T, state string) {
	t.Helper()
	var last string
	require.Eventually(t, func() bool {
		status := app.getJSON(t, "/api/v1/status", http.StatusOK)
		sup, _ := status["supervisor"].(map[string]interface{})
		last, _ = sup["state"].(string)
		return last == state
	}, 10*time.Second, 5*time.Millisecond,
		"supervisor did not reach state %q (last: %s)", state, last)
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) postJSON(t *testing.T, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// getMetrics fetches the raw Prometheus exposition text.
func (app *TestApp) getMetrics(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(app.BaseURL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
