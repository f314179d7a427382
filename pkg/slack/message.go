package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var severityEmoji = map[string]string{
	"critical": ":red_circle:",
	"high":     ":large_orange_circle:",
	"medium":   ":large_yellow_circle:",
	"low":      ":large_blue_circle:",
}

// ReviewRequest is the context a chat backend needs to render a HIL review
// request for an investigation awaiting human sign-off.
type ReviewRequest struct {
	InvestigationID  string
	Title            string
	Severity         string
	AIDecision       string
	AIConfidence     float64
	AIAssessment     string
	AIRecommendation string
}

func investigationURL(investigationID, dashboardURL string) string {
	return fmt.Sprintf("%s/investigations/%s", dashboardURL, investigationID)
}

// reviewFingerprint is embedded in a review-request message so a later
// resolution notice can locate the original message via FindMessageByFingerprint.
func reviewFingerprint(investigationID string) string {
	return fmt.Sprintf("investigation:%s", investigationID)
}

// BuildReviewRequestMessage creates Block Kit blocks for a HIL review
// request, with interactive Approve/Reject buttons carrying the
// investigation id as their value.
func BuildReviewRequestMessage(req ReviewRequest, dashboardURL string) []goslack.Block {
	emoji := severityEmoji[req.Severity]
	if emoji == "" {
		emoji = ":white_circle:"
	}

	header := fmt.Sprintf("%s *Human review requested* — %s", emoji, req.Title)
	summary := fmt.Sprintf("*AI verdict:* %s (confidence %.0f%%)\n%s",
		req.AIDecision, req.AIConfidence*100, truncateForSlack(req.AIAssessment))

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, summary, false, false),
			nil, nil,
		),
		goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, reviewFingerprint(req.InvestigationID), false, false),
		),
	}

	approve := goslack.NewButtonBlockElement("", req.InvestigationID,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Approve", false, false))
	approve.ActionID = "approve"

	reject := goslack.NewButtonBlockElement("", req.InvestigationID,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Reject", false, false))
	reject.ActionID = "reject"

	viewLink := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "View in Dashboard", false, false))
	viewLink.URL = investigationURL(req.InvestigationID, dashboardURL)
	viewLink.ActionID = "view"

	blocks = append(blocks, goslack.NewActionBlock("", approve, reject, viewLink))
	return blocks
}

// BuildReviewResolvedMessage creates the threaded reply posted once a
// review has been resolved, regardless of which channel resolved it.
func BuildReviewResolvedMessage(decision, source, reviewer string) []goslack.Block {
	text := fmt.Sprintf(":white_check_mark: Resolved as *%s* via %s", decision, source)
	if reviewer != "" {
		text += fmt.Sprintf(" by %s", reviewer)
	}
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

func truncateForSlack(text string) string {
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — view full assessment in dashboard)_"
}
