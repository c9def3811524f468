package knowledge

import (
	"strings"

	"github.com/bmatcuk/doublestar"
)

// JaccardOverlap computes |A ∩ B| / |A ∪ B| over lowercased keyword sets.
// Empty input on either side scores 0.
func JaccardOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, kw := range a {
		setA[strings.ToLower(kw)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, kw := range b {
		setB[strings.ToLower(kw)] = struct{}{}
	}

	intersection := 0
	for kw := range setA {
		if _, ok := setB[kw]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// PatternOverlap returns the fraction of query paths matched by at least
// one of the entry's globs. No patterns or no paths scores 0.
func PatternOverlap(patterns, paths []string) float64 {
	if len(patterns) == 0 || len(paths) == 0 {
		return 0
	}
	matched := 0
	for _, path := range paths {
		for _, pattern := range patterns {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(paths))
}

// DiceBigramSimilarity computes the Sørensen–Dice coefficient over
// character bigrams of the lowercased inputs. Identical strings score 1;
// strings shorter than two characters only match exactly.
func DiceBigramSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}

	bigramsA := bigramCounts(a)
	bigramsB := bigramCounts(b)
	totalA := len(a) - 1
	totalB := len(b) - 1

	overlap := 0
	for bigram, countA := range bigramsA {
		if countB, ok := bigramsB[bigram]; ok {
			overlap += min(countA, countB)
		}
	}
	return 2 * float64(overlap) / float64(totalA+totalB)
}

func bigramCounts(s string) map[string]int {
	counts := make(map[string]int, len(s))
	for i := 0; i+2 <= len(s); i++ {
		counts[s[i:i+2]]++
	}
	return counts
}
