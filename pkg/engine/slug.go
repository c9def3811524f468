package engine

import (
	"fmt"
	"strings"
	"unicode"
)

// maxSlugLen bounds the slugified title portion of a branch name.
const maxSlugLen = 50

// Slugify lowercases the title and collapses every non-alphanumeric run
// into a single hyphen, trimming leading and trailing hyphens.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

// BranchName builds the feature branch name for an issue.
func BranchName(issueNumber int, title string) string {
	slug := Slugify(title)
	if slug == "" {
		return fmt.Sprintf("feature/%d", issueNumber)
	}
	return fmt.Sprintf("feature/%d-%s", issueNumber, slug)
}
