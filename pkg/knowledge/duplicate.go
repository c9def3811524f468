package knowledge

import "github.com/tamma-ai/tamma/pkg/models"

// clearMissRatio defines the lower edge of the mid-band: a title scoring
// below titleThreshold × clearMissRatio is clearly dissimilar and skips
// the keyword check entirely.
const clearMissRatio = 0.6

// DuplicateDetector decides whether a candidate learning duplicates an
// existing entry. Title similarity (Dice bigrams) decides outright at the
// extremes; the mid-band falls back to keyword overlap (Jaccard).
type DuplicateDetector struct {
	titleThreshold   float64
	keywordThreshold float64
}

// NewDuplicateDetector creates a detector with the given thresholds.
func NewDuplicateDetector(titleThreshold, keywordThreshold float64) *DuplicateDetector {
	if titleThreshold <= 0 {
		titleThreshold = 0.8
	}
	if keywordThreshold <= 0 {
		keywordThreshold = 0.5
	}
	return &DuplicateDetector{
		titleThreshold:   titleThreshold,
		keywordThreshold: keywordThreshold,
	}
}

// IsDuplicate reports whether candidate duplicates existing.
func (d *DuplicateDetector) IsDuplicate(candidate, existing *models.KnowledgeEntry) bool {
	titleSim := DiceBigramSimilarity(candidate.Title, existing.Title)
	if titleSim >= d.titleThreshold {
		return true
	}
	if titleSim < d.titleThreshold*clearMissRatio {
		return false
	}
	return JaccardOverlap(candidate.Keywords, existing.Keywords) >= d.keywordThreshold
}

// FindDuplicate returns the first entry the candidate duplicates, or nil.
func (d *DuplicateDetector) FindDuplicate(candidate *models.KnowledgeEntry, entries []models.KnowledgeEntry) *models.KnowledgeEntry {
	for i := range entries {
		if entries[i].Kind != models.KnowledgeLearning {
			continue
		}
		if d.IsDuplicate(candidate, &entries[i]) {
			return &entries[i]
		}
	}
	return nil
}
