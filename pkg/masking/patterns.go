package masking

// builtinPattern is one named masking regex before compilation.
type builtinPattern struct {
	pattern     string
	replacement string
	description string
}

// builtinPatterns covers the secret shapes a coding agent is likely to meet
// in tool results, resource content, and repository files.
var builtinPatterns = map[string]builtinPattern{
	"api_key": {
		pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{16,})["']?`,
		replacement: `"api_key": "__MASKED_API_KEY__"`,
		description: "API keys",
	},
	"password": {
		pattern:     `(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
		replacement: `"password": "__MASKED_PASSWORD__"`,
		description: "Passwords",
	},
	"token": {
		pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`,
		replacement: `"token": "__MASKED_TOKEN__"`,
		description: "Access tokens",
	},
	"certificate": {
		pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
		replacement: `__MASKED_CERTIFICATE__`,
		description: "PEM certificates and keys",
	},
	"ssh_key": {
		pattern:     `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`,
		replacement: `__MASKED_SSH_KEY__`,
		description: "SSH public keys",
	},
	"private_key": {
		pattern:     `(?i)private[_-]?key["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`,
		replacement: `"private_key": "__MASKED_PRIVATE_KEY__"`,
		description: "Private keys",
	},
	"secret_key": {
		pattern:     `(?i)secret[_-]?key["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`,
		replacement: `"secret_key": "__MASKED_SECRET_KEY__"`,
		description: "Secret keys",
	},
	"aws_access_key": {
		pattern:     `\bAKIA[A-Z0-9]{16}\b`,
		replacement: `__MASKED_AWS_ACCESS_KEY__`,
		description: "AWS access key IDs",
	},
	"aws_secret_key": {
		pattern:     `(?i)aws[_-]?secret[_-]?access[_-]?key["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`,
		replacement: `"aws_secret_access_key": "__MASKED_AWS_SECRET__"`,
		description: "AWS secret keys",
	},
	"github_token": {
		pattern:     `\bgh[pousr]_[A-Za-z0-9_]{36,255}\b`,
		replacement: `__MASKED_GITHUB_TOKEN__`,
		description: "GitHub tokens",
	},
	"slack_token": {
		pattern:     `xox[baprs]-[A-Za-z0-9-]{10,72}`,
		replacement: `__MASKED_SLACK_TOKEN__`,
		description: "Slack tokens",
	},
	"email": {
		pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
		replacement: `__MASKED_EMAIL__`,
		description: "Email addresses",
	},
	"base64_secret": {
		pattern:     `\b[A-Za-z0-9+/]{40,}={0,2}\b`,
		replacement: `__MASKED_BASE64_VALUE__`,
		description: "Long base64 values",
	},
}

// defaultGroup is applied when a server enables masking without naming
// patterns.
const defaultGroup = "secrets"

// patternGroups bundle built-in patterns under config-friendly names.
// Group order fixes application order.
var patternGroups = map[string][]string{
	"basic": {"api_key", "password"},
	"secrets": {
		"api_key", "password", "token", "private_key", "secret_key",
		"github_token", "slack_token",
	},
	"security": {
		"api_key", "password", "token", "certificate", "ssh_key",
		"private_key", "secret_key", "email",
	},
	"cloud": {"aws_access_key", "aws_secret_key", "api_key", "token"},
	"all": {
		"api_key", "password", "token", "certificate", "ssh_key",
		"private_key", "secret_key", "aws_access_key", "aws_secret_key",
		"github_token", "slack_token", "email", "base64_secret",
	},
}
