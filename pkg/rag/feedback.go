package rag

import "sync"

// feedbackWeight scales how strongly accumulated feedback moves a chunk's
// relevance during ranking.
const feedbackWeight = 0.1

// FeedbackTracker accumulates per-chunk usefulness signals from completed
// tasks and converts them into small ranking adjustments.
type FeedbackTracker struct {
	mu      sync.RWMutex
	helpful map[string]int
	noise   map[string]int
}

// NewFeedbackTracker creates an empty tracker.
func NewFeedbackTracker() *FeedbackTracker {
	return &FeedbackTracker{
		helpful: make(map[string]int),
		noise:   make(map[string]int),
	}
}

// RecordHelpful marks a chunk as having contributed to a successful task.
func (t *FeedbackTracker) RecordHelpful(chunkID string) {
	t.mu.Lock()
	t.helpful[chunkID]++
	t.mu.Unlock()
}

// RecordNoise marks a chunk as retrieved but unused.
func (t *FeedbackTracker) RecordNoise(chunkID string) {
	t.mu.Lock()
	t.noise[chunkID]++
	t.mu.Unlock()
}

// Adjustment returns the relevance delta for a chunk in
// [-feedbackWeight, +feedbackWeight], proportional to the helpful/noise
// ratio. Unknown chunks get zero.
func (t *FeedbackTracker) Adjustment(chunkID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	helpful := t.helpful[chunkID]
	noise := t.noise[chunkID]
	total := helpful + noise
	if total == 0 {
		return 0
	}
	return feedbackWeight * float64(helpful-noise) / float64(total)
}
