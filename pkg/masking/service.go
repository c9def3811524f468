// Package masking redacts secrets from MCP tool results, resource content,
// and event text. Patterns are compiled once at startup; the service holds
// no per-request state and is safe for concurrent use.
package masking

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/tamma-ai/tamma/pkg/config"
)

// RedactedNotice replaces content that could not be safely masked.
const RedactedNotice = "[REDACTED: masking failed, content withheld]"

// compiledPattern pairs a compiled regex with its replacement.
type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Service applies per-server masking to MCP content and group-based masking
// to event text.
type Service struct {
	patterns       map[string]*compiledPattern
	serverPatterns map[string][]string // server → custom pattern keys
	servers        map[string]*config.MaskingConfig
	event          config.EventMaskingConfig
	logger         *slog.Logger
}

// NewService compiles the built-in library plus every enabled server's
// custom patterns. Patterns that fail to compile are logged and skipped.
func NewService(servers map[string]config.MCPServerConfig, event *config.EventMaskingConfig) *Service {
	s := &Service{
		patterns:       make(map[string]*compiledPattern),
		serverPatterns: make(map[string][]string),
		servers:        make(map[string]*config.MaskingConfig),
		logger:         slog.Default().With("component", "masking"),
	}
	if event != nil {
		s.event = *event
	}

	for name, p := range builtinPatterns {
		regex, err := regexp.Compile(p.pattern)
		if err != nil {
			s.logger.Error("built-in masking pattern does not compile, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &compiledPattern{name: name, regex: regex, replacement: p.replacement}
	}

	for serverID, serverCfg := range servers {
		dm := serverCfg.DataMasking
		if dm == nil || !dm.Enabled {
			continue
		}
		s.servers[serverID] = dm
		for i, custom := range dm.CustomPatterns {
			name := fmt.Sprintf("custom:%s:%d", serverID, i)
			regex, err := regexp.Compile(custom.Pattern)
			if err != nil {
				s.logger.Error("custom masking pattern does not compile, skipping",
					"pattern", name, "server", serverID, "error", err)
				continue
			}
			s.patterns[name] = &compiledPattern{name: name, regex: regex, replacement: custom.Replacement}
			s.serverPatterns[serverID] = append(s.serverPatterns[serverID], name)
		}
	}
	return s
}

// MaskToolResult masks content fetched from the named server. Fail-closed:
// when masking is enabled but no configured pattern survived compilation,
// the payload is withheld rather than passed through unmasked. Servers
// without masking configured pass through untouched.
func (s *Service) MaskToolResult(content, serverID string) string {
	if s == nil || content == "" {
		return content
	}
	cfg, ok := s.servers[serverID]
	if !ok {
		return content
	}
	resolved := s.resolve(cfg, serverID)
	if len(resolved) == 0 {
		s.logger.Error("masking enabled but no usable patterns, withholding content",
			"server", serverID)
		return RedactedNotice
	}
	return apply(content, resolved)
}

// MaskEventText masks free-text event fields. Fail-open: events are
// observability, so an unusable configuration passes text through.
func (s *Service) MaskEventText(text string) string {
	if s == nil || !s.event.Enabled || text == "" {
		return text
	}
	names, ok := patternGroups[s.event.PatternGroup]
	if !ok {
		return text
	}
	var resolved []*compiledPattern
	for _, name := range names {
		if p, ok := s.patterns[name]; ok {
			resolved = append(resolved, p)
		}
	}
	return apply(text, resolved)
}

// resolve expands a server's masking config into compiled patterns: groups
// first, then individually named patterns, then the server's customs. A
// config that enables masking without naming anything gets the default
// group.
func (s *Service) resolve(cfg *config.MaskingConfig, serverID string) []*compiledPattern {
	groups := cfg.PatternGroups
	if len(groups) == 0 && len(cfg.Patterns) == 0 && len(cfg.CustomPatterns) == 0 {
		groups = []string{defaultGroup}
	}

	seen := make(map[string]bool)
	var resolved []*compiledPattern
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if p, ok := s.patterns[name]; ok {
			resolved = append(resolved, p)
			return
		}
		s.logger.Warn("unknown masking pattern", "pattern", name, "server", serverID)
	}

	for _, group := range groups {
		names, ok := patternGroups[group]
		if !ok {
			s.logger.Warn("unknown masking pattern group", "group", group, "server", serverID)
			continue
		}
		for _, name := range names {
			add(name)
		}
	}
	for _, name := range cfg.Patterns {
		add(name)
	}
	for _, name := range s.serverPatterns[serverID] {
		add(name)
	}
	return resolved
}

func apply(content string, patterns []*compiledPattern) string {
	masked := content
	for _, p := range patterns {
		masked = p.regex.ReplaceAllString(masked, p.replacement)
	}
	return masked
}
