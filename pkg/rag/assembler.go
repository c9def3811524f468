package rag

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/tamma-ai/tamma/pkg/models"
)

// PackByTokens selects chunks in order while the running token total stays
// within maxTokens. Oversized chunks are skipped, not truncated, so a later
// smaller chunk can still fit.
func PackByTokens(chunks []models.ContextChunk, maxTokens int) []models.ContextChunk {
	if maxTokens <= 0 {
		return nil
	}
	var packed []models.ContextChunk
	used := 0
	for _, chunk := range chunks {
		if used+chunk.TokenCount > maxTokens {
			continue
		}
		packed = append(packed, chunk)
		used += chunk.TokenCount
	}
	return packed
}

// Render serialises chunks to text in the requested format, preserving
// chunk order and attributing each chunk to its source.
func Render(chunks []models.ContextChunk, format models.OutputFormat, includeScores bool) string {
	switch format {
	case models.FormatMarkdown:
		return renderMarkdown(chunks, includeScores)
	case models.FormatXML:
		return renderXML(chunks, includeScores)
	default:
		return renderPlain(chunks, includeScores)
	}
}

func attribution(chunk *models.ContextChunk) string {
	if chunk.Metadata.FilePath != "" {
		if span := chunk.LineSpan(); span > 0 {
			return fmt.Sprintf("%s:%d-%d", chunk.Metadata.FilePath, chunk.Metadata.StartLine, chunk.Metadata.EndLine)
		}
		return chunk.Metadata.FilePath
	}
	if chunk.Metadata.URL != "" {
		return chunk.Metadata.URL
	}
	return chunk.ID
}

func renderPlain(chunks []models.ContextChunk, includeScores bool) string {
	var sb strings.Builder
	for i := range chunks {
		chunk := &chunks[i]
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(fmt.Sprintf("[%s] %s", chunk.Source, attribution(chunk)))
		if includeScores {
			sb.WriteString(fmt.Sprintf(" (relevance %.3f)", chunk.Relevance))
		}
		sb.WriteString("\n")
		sb.WriteString(chunk.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMarkdown(chunks []models.ContextChunk, includeScores bool) string {
	var sb strings.Builder
	for i := range chunks {
		chunk := &chunks[i]
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("## %s — %s\n", chunk.Source, attribution(chunk)))
		if includeScores {
			sb.WriteString(fmt.Sprintf("_relevance: %.3f_\n", chunk.Relevance))
		}
		sb.WriteString("\n")
		lang := chunk.Metadata.Language
		if chunk.Metadata.FilePath != "" {
			sb.WriteString(fmt.Sprintf("```%s\n%s\n```\n", lang, chunk.Content))
		} else {
			sb.WriteString(chunk.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func renderXML(chunks []models.ContextChunk, includeScores bool) string {
	var sb strings.Builder
	sb.WriteString("<context>\n")
	for i := range chunks {
		chunk := &chunks[i]
		sb.WriteString(fmt.Sprintf("  <chunk source=%q ref=%q", chunk.Source, attribution(chunk)))
		if includeScores {
			sb.WriteString(fmt.Sprintf(" relevance=%q", fmt.Sprintf("%.3f", chunk.Relevance)))
		}
		sb.WriteString(">")
		_ = xml.EscapeText(&sb, []byte(chunk.Content))
		sb.WriteString("</chunk>\n")
	}
	sb.WriteString("</context>\n")
	return sb.String()
}
