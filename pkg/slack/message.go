package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"failed":    ":x:",
	"cancelled": ":no_entry_sign:",
}

var statusLabel = map[string]string{
	"completed": "Task Completed",
	"failed":    "Task Failed",
	"cancelled": "Task Cancelled",
}

// ApprovalNotice describes a plan waiting for a human decision.
type ApprovalNotice struct {
	TaskKey   string // threading key, e.g. "issue-42"
	Title     string // one-line headline
	Summary   string // plan summary
	RiskLevel string // empty when the requester has no risk assessment
}

// OutcomeNotice describes a terminal task outcome.
type OutcomeNotice struct {
	TaskKey      string
	Status       string // completed, failed, cancelled
	Detail       string // e.g. "merged PR #99"
	LinkURL      string // optional PR / dashboard link
	ErrorMessage string
}

// BuildApprovalMessage creates Block Kit blocks for an approval request.
func BuildApprovalMessage(notice ApprovalNotice) []goslack.Block {
	header := fmt.Sprintf(":bell: *Approval required* — %s", notice.Title)
	if notice.RiskLevel != "" {
		header += fmt.Sprintf("\n*Risk:* %s", notice.RiskLevel)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}
	if notice.Summary != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(notice.Summary), false, false),
			nil, nil,
		))
	}
	blocks = append(blocks, markerContext(notice.TaskKey))
	return blocks
}

// BuildOutcomeMessage creates Block Kit blocks for a terminal notification.
func BuildOutcomeMessage(notice OutcomeNotice) []goslack.Block {
	emoji := statusEmoji[notice.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[notice.Status]
	if label == "" {
		label = "Task " + notice.Status
	}

	header := fmt.Sprintf("%s *%s*", emoji, label)
	if notice.Detail != "" {
		header += " — " + notice.Detail
	}
	if notice.ErrorMessage != "" {
		header += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(notice.ErrorMessage))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if notice.LinkURL != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "View Pull Request", false, false))
		btn.URL = notice.LinkURL
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	blocks = append(blocks, markerContext(notice.TaskKey))
	return blocks
}

func markerContext(taskKey string) goslack.Block {
	return goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType, Marker(taskKey), false, false))
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated)_"
}
