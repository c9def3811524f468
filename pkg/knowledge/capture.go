package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tamma-ai/tamma/pkg/models"
)

// TaskOutcome summarises a finished task for learning capture.
type TaskOutcome struct {
	Task       TaskContext
	Plan       *models.DevelopmentPlan
	Success    bool
	FailReason string
}

// CaptureService turns task outcomes into learning entries, skipping
// near-duplicates of what the store already holds.
type CaptureService struct {
	store    Store
	detector *DuplicateDetector
	logger   *slog.Logger
}

// NewCaptureService creates a capture service.
func NewCaptureService(store Store, detector *DuplicateDetector) *CaptureService {
	return &CaptureService{
		store:    store,
		detector: detector,
		logger:   slog.Default().With("component", "learning-capture"),
	}
}

// Capture builds a learning from the outcome and stores it unless a
// duplicate exists. Returns the stored entry, or nil when skipped.
func (s *CaptureService) Capture(ctx context.Context, outcome TaskOutcome) (*models.KnowledgeEntry, error) {
	entry := buildLearning(outcome)

	existing, err := s.store.Entries(ctx, outcome.Task.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("fetch existing learnings: %w", err)
	}
	if dup := s.detector.FindDuplicate(&entry, existing); dup != nil {
		s.logger.Info("learning skipped as duplicate",
			"title", entry.Title, "duplicateOf", dup.ID)
		return nil, nil
	}

	if err := s.store.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("store learning: %w", err)
	}
	s.logger.Info("learning captured", "id", entry.ID, "title", entry.Title)
	return &entry, nil
}

// buildLearning renders the success or failure template for an outcome.
func buildLearning(outcome TaskOutcome) models.KnowledgeEntry {
	var title, description string
	query := BuildQuery(outcome.Task, outcome.Plan)

	summary := outcome.Task.Description
	if outcome.Plan != nil && outcome.Plan.Summary != "" {
		summary = outcome.Plan.Summary
	}
	if outcome.Success {
		title = fmt.Sprintf("Completed: %s", summary)
		description = fmt.Sprintf("Task %q completed successfully.", summary)
		if outcome.Plan != nil && outcome.Plan.Approach != "" {
			description += fmt.Sprintf(" Approach: %s", outcome.Plan.Approach)
		}
	} else {
		title = fmt.Sprintf("Failed: %s", summary)
		description = fmt.Sprintf("Task %q failed: %s", summary, outcome.FailReason)
	}
	if paths := query.FilePaths; len(paths) > 0 {
		description += fmt.Sprintf(" Touched: %s.", strings.Join(paths, ", "))
	}

	return models.KnowledgeEntry{
		ID:          uuid.NewString(),
		Kind:        models.KnowledgeLearning,
		Priority:    models.PriorityMedium,
		Title:       title,
		Description: description,
		Keywords:    query.Keywords,
		ProjectID:   outcome.Task.ProjectID,
	}
}
