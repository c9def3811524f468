package api

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/aggregator"
	"github.com/tamma-ai/tamma/pkg/mcp"
)

func scrapeMetrics(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_EngineIterationsByOutcome(t *testing.T) {
	ts := testServer(Dependencies{Engine: &fakeEngine{counts: map[string]int64{
		"completed": 5,
		"no_issue":  12,
		"error":     2,
	}, costUSD: 3.75}})
	defer ts.Close()

	body := scrapeMetrics(t, ts.URL)
	assert.Contains(t, body, `tamma_engine_iterations_total{outcome="completed"} 5`)
	assert.Contains(t, body, `tamma_engine_iterations_total{outcome="no_issue"} 12`)
	assert.Contains(t, body, `tamma_engine_iterations_total{outcome="error"} 2`)
	assert.Contains(t, body, "tamma_agent_cost_usd_total 3.75")
}

type fakePlatformStats struct {
	retries int64
}

func (f *fakePlatformStats) RetryCount() int64 { return f.retries }

func TestMetrics_PlatformRetries(t *testing.T) {
	ts := testServer(Dependencies{Platform: &fakePlatformStats{retries: 7}})
	defer ts.Close()

	assert.Contains(t, scrapeMetrics(t, ts.URL), "tamma_platform_retries_total 7")
}

func TestMetrics_AggregatorCounters(t *testing.T) {
	ts := testServer(Dependencies{Aggregator: &fakeAggregator{stats: aggregator.Stats{
		Requests:     9,
		CacheHits:    4,
		Failures:     1,
		TokensServed: 3200,
		AvgLatencyMs: 12.5,
		AvgDedupRate: 0.25,
		CacheEntries: 2,
	}}})
	defer ts.Close()

	body := scrapeMetrics(t, ts.URL)
	assert.Contains(t, body, "tamma_aggregator_requests_total 9")
	assert.Contains(t, body, "tamma_aggregator_cache_hits_total 4")
	assert.Contains(t, body, "tamma_aggregator_tokens_served_total 3200")
	assert.Contains(t, body, "tamma_aggregator_latency_ms_avg 12.5")
	assert.Contains(t, body, "tamma_aggregator_dedup_rate_avg 0.25")
}

func TestMetrics_MCPPerServer(t *testing.T) {
	ts := testServer(Dependencies{MCP: &fakeMCP{
		metrics: map[string]mcp.MetricsSnapshot{
			"github": {TotalRequests: 20, FailureCount: 3, AvgLatencyMs: 40, LastRequestAt: time.Now()},
		},
	}})
	defer ts.Close()

	body := scrapeMetrics(t, ts.URL)
	assert.Contains(t, body, `tamma_mcp_requests_total{server="github"} 20`)
	assert.Contains(t, body, `tamma_mcp_request_failures_total{server="github"} 3`)
}

func TestMetrics_ProcessCollectorsRegistered(t *testing.T) {
	ts := testServer(Dependencies{})
	defer ts.Close()
	assert.Contains(t, scrapeMetrics(t, ts.URL), "go_goroutines")
}
