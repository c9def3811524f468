package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// statusCollector exposes engine, aggregator, MCP, and platform counters at
// scrape time, reading each component's own snapshot instead of
// instrumenting the hot paths.
type statusCollector struct {
	engine     EngineControl
	aggregator ContextStats
	mcp        MCPOverview
	platform   PlatformStats

	engineIterations *prometheus.Desc
	agentCost        *prometheus.Desc

	aggRequests     *prometheus.Desc
	aggCacheHits    *prometheus.Desc
	aggFailures     *prometheus.Desc
	aggTokens       *prometheus.Desc
	aggLatency      *prometheus.Desc
	aggDedupRate    *prometheus.Desc
	aggCacheEntries *prometheus.Desc

	mcpRequests *prometheus.Desc
	mcpFailures *prometheus.Desc
	mcpLatency  *prometheus.Desc

	platformRetries *prometheus.Desc
}

func newStatusCollector(eng EngineControl, agg ContextStats, mgr MCPOverview, plat PlatformStats) *statusCollector {
	return &statusCollector{
		engine:     eng,
		aggregator: agg,
		mcp:        mgr,
		platform:   plat,

		engineIterations: prometheus.NewDesc("tamma_engine_iterations_total",
			"Engine iterations by terminal outcome.", []string{"outcome"}, nil),
		agentCost: prometheus.NewDesc("tamma_agent_cost_usd_total",
			"Cumulative spend reported by coding agent runs in US dollars.", nil, nil),

		aggRequests: prometheus.NewDesc("tamma_aggregator_requests_total",
			"Context requests served by the aggregator.", nil, nil),
		aggCacheHits: prometheus.NewDesc("tamma_aggregator_cache_hits_total",
			"Context requests answered from the response cache.", nil, nil),
		aggFailures: prometheus.NewDesc("tamma_aggregator_failures_total",
			"Context requests where every source failed.", nil, nil),
		aggTokens: prometheus.NewDesc("tamma_aggregator_tokens_served_total",
			"Context tokens returned across all requests.", nil, nil),
		aggLatency: prometheus.NewDesc("tamma_aggregator_latency_ms_avg",
			"Mean context assembly latency in milliseconds.", nil, nil),
		aggDedupRate: prometheus.NewDesc("tamma_aggregator_dedup_rate_avg",
			"Mean fraction of retrieved chunks removed by deduplication.", nil, nil),
		aggCacheEntries: prometheus.NewDesc("tamma_aggregator_cache_entries",
			"Live entries in the aggregator response cache.", nil, nil),

		mcpRequests: prometheus.NewDesc("tamma_mcp_requests_total",
			"JSON-RPC requests issued per MCP server.", []string{"server"}, nil),
		mcpFailures: prometheus.NewDesc("tamma_mcp_request_failures_total",
			"Failed JSON-RPC requests per MCP server.", []string{"server"}, nil),
		mcpLatency: prometheus.NewDesc("tamma_mcp_request_latency_ms_avg",
			"Mean JSON-RPC request latency per MCP server in milliseconds.", []string{"server"}, nil),

		platformRetries: prometheus.NewDesc("tamma_platform_retries_total",
			"Rate-limit retries performed against the Git platform.", nil, nil),
	}
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.engineIterations
	ch <- c.agentCost
	ch <- c.aggRequests
	ch <- c.aggCacheHits
	ch <- c.aggFailures
	ch <- c.aggTokens
	ch <- c.aggLatency
	ch <- c.aggDedupRate
	ch <- c.aggCacheEntries
	ch <- c.mcpRequests
	ch <- c.mcpFailures
	ch <- c.mcpLatency
	ch <- c.platformRetries
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	if c.engine != nil {
		for outcome, count := range c.engine.IterationCounts() {
			ch <- prometheus.MustNewConstMetric(c.engineIterations, prometheus.CounterValue, float64(count), outcome)
		}
		ch <- prometheus.MustNewConstMetric(c.agentCost, prometheus.CounterValue, c.engine.AgentCostUSD())
	}

	if c.aggregator != nil {
		stats := c.aggregator.Stats()
		ch <- prometheus.MustNewConstMetric(c.aggRequests, prometheus.CounterValue, float64(stats.Requests))
		ch <- prometheus.MustNewConstMetric(c.aggCacheHits, prometheus.CounterValue, float64(stats.CacheHits))
		ch <- prometheus.MustNewConstMetric(c.aggFailures, prometheus.CounterValue, float64(stats.Failures))
		ch <- prometheus.MustNewConstMetric(c.aggTokens, prometheus.CounterValue, float64(stats.TokensServed))
		ch <- prometheus.MustNewConstMetric(c.aggLatency, prometheus.GaugeValue, stats.AvgLatencyMs)
		ch <- prometheus.MustNewConstMetric(c.aggDedupRate, prometheus.GaugeValue, stats.AvgDedupRate)
		ch <- prometheus.MustNewConstMetric(c.aggCacheEntries, prometheus.GaugeValue, float64(stats.CacheEntries))
	}

	if c.mcp != nil {
		for server, snap := range c.mcp.MetricsSummary() {
			ch <- prometheus.MustNewConstMetric(c.mcpRequests, prometheus.CounterValue, float64(snap.TotalRequests), server)
			ch <- prometheus.MustNewConstMetric(c.mcpFailures, prometheus.CounterValue, float64(snap.FailureCount), server)
			ch <- prometheus.MustNewConstMetric(c.mcpLatency, prometheus.GaugeValue, snap.AvgLatencyMs, server)
		}
	}

	if c.platform != nil {
		ch <- prometheus.MustNewConstMetric(c.platformRetries, prometheus.CounterValue, float64(c.platform.RetryCount()))
	}
}
