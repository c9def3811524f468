package retrieval

import (
	"context"
	"log/slog"

	"github.com/tamma-ai/tamma/pkg/mcp"
	"github.com/tamma-ai/tamma/pkg/models"
)

// ResourceProvider is the slice of the MCP manager the resource source
// needs. Satisfied by mcp.Manager.
type ResourceProvider interface {
	ConnectedServers() []string
	ServerResources(name string) []mcp.Resource
	ReadResource(ctx context.Context, server, uri string) (content []byte, cacheHit bool, err error)
}

// mcpResourceRelevance is the flat relevance assigned to MCP resource
// chunks; servers report no similarity score, so ranking differentiates
// them by fusion position only.
const mcpResourceRelevance = 0.5

// MCPSource wraps the resources of every connected MCP server as context
// chunks, up to maxChunks per retrieval.
type MCPSource struct {
	base
	provider  ResourceProvider
	maxChunks int
	logger    *slog.Logger
}

// NewMCPSource creates an MCP resource source over the given provider.
func NewMCPSource(provider ResourceProvider, maxChunks int) *MCPSource {
	if maxChunks <= 0 {
		maxChunks = 5
	}
	return &MCPSource{
		base:      base{name: "mcp", kind: models.SourceMCP},
		provider:  provider,
		maxChunks: maxChunks,
		logger:    slog.Default().With("source", "mcp"),
	}
}

// Initialize is a no-op; connections are owned by the manager.
func (s *MCPSource) Initialize(context.Context) error { return nil }

// IsAvailable reports whether any server is connected.
func (s *MCPSource) IsAvailable(context.Context) bool {
	return len(s.provider.ConnectedServers()) > 0
}

// Retrieve fetches up to maxChunks resource bodies across connected
// servers. Individual read failures are logged and skipped; CacheHit is set
// only when every returned chunk came from the cache.
func (s *MCPSource) Retrieve(ctx context.Context, query Query) Result {
	return s.run(func() ([]models.ContextChunk, bool, error) {
		limit := s.maxChunks
		if query.TopK > 0 && query.TopK < limit {
			limit = query.TopK
		}

		var chunks []models.ContextChunk
		allCached := true
		for _, server := range s.provider.ConnectedServers() {
			for _, resource := range s.provider.ServerResources(server) {
				if len(chunks) >= limit {
					break
				}
				content, cached, err := s.provider.ReadResource(ctx, server, resource.URI)
				if err != nil {
					s.logger.Debug("resource read failed",
						"server", server, "uri", resource.URI, "error", err)
					continue
				}
				if !cached {
					allCached = false
				}
				text := string(content)
				chunks = append(chunks, models.ContextChunk{
					ID:         server + "/" + resource.URI,
					Content:    text,
					Source:     models.SourceMCP,
					Relevance:  mcpResourceRelevance,
					TokenCount: EstimateTokens(text),
					Metadata: models.ChunkMetadata{
						URL: resource.URI,
					},
				})
			}
			if len(chunks) >= limit {
				break
			}
		}
		return chunks, allCached && len(chunks) > 0, nil
	})
}

// Dispose releases nothing; connections are owned by the manager.
func (s *MCPSource) Dispose() error { return nil }
