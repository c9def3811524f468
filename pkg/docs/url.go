package docs

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// githubBlobTreePattern matches github.com blob and tree paths:
// /{owner}/{repo}/{blob|tree}/{ref}/{path...}
var githubBlobTreePattern = regexp.MustCompile(`^/([^/]+)/([^/]+)/(blob|tree)/([^/]+)(?:/(.*))?$`)

// ConvertToRawURL rewrites a github.com blob or tree URL to its
// raw.githubusercontent.com equivalent. Anything else passes through
// unchanged, including URLs that are already raw.
func ConvertToRawURL(docURL string) string {
	parsed, err := url.Parse(docURL)
	if err != nil {
		return docURL
	}
	if parsed.Host == "raw.githubusercontent.com" {
		return docURL
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return docURL
	}
	matches := githubBlobTreePattern.FindStringSubmatch(parsed.Path)
	if matches == nil {
		return docURL
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/refs/heads/%s/%s",
		matches[1], matches[2], matches[4], matches[5])
}

// ValidateURL checks that a document URL uses http or https and, when a
// domain allowlist is given, that the host is on it.
func ValidateURL(rawURL string, allowedDomains []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q: only http and https allowed", parsed.Scheme)
	}
	if len(allowedDomains) > 0 {
		host := strings.ToLower(parsed.Hostname())
		for _, domain := range allowedDomains {
			if host == domain || host == "www."+domain {
				return nil
			}
		}
		return fmt.Errorf("domain %q not in allowed list", host)
	}
	return nil
}

// urlPattern finds http(s) URLs in free text. Whitespace, quotes, and the
// closing delimiters of markdown links terminate a match.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractURLs returns the distinct URLs referenced in text, in order of
// first appearance. Trailing sentence punctuation is trimmed.
func ExtractURLs(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, match := range urlPattern.FindAllString(text, -1) {
		u := strings.TrimRight(match, ".,;:!?")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
