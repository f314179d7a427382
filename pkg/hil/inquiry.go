package hil

import (
	"context"
	"fmt"
	"strings"

	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
)

// InquirySystemPrompt instructs the model to answer a reviewer's follow-up
// question using only the supplied investigation context and prior turns.
const InquirySystemPrompt = `You are a SOC analyst assistant answering a reviewer's follow-up question about an investigation awaiting their decision. Use only the supplied context and prior conversation. Answer in two or three plain sentences, no markdown, no JSON.`

// QATurn is one exchange in a PendingReview's follow-up thread.
type QATurn struct {
	Question string
	Answer   string
}

// InquiryHandler answers reviewer follow-up questions posted in a chat
// thread beneath a HUMAN_REVIEW_REQUESTED message, using the full
// investigation context plus whatever Q/A has already happened in that
// thread.
type InquiryHandler struct {
	model integrations.ChatModel
}

// NewInquiryHandler returns a handler that answers through model.
func NewInquiryHandler(model integrations.ChatModel) *InquiryHandler {
	return &InquiryHandler{model: model}
}

// Answer builds a compact context from review and prior, then returns the
// model's plain-text reply to question.
func (h *InquiryHandler) Answer(ctx context.Context, review models.PendingReview, prior []QATurn, question string) (string, error) {
	userPrompt := inquiryContext(review, prior, question)
	answer, err := h.model.Complete(ctx, InquirySystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("hil: inquiry: model complete: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func inquiryContext(review models.PendingReview, prior []QATurn, question string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "AI decision: %s (confidence %.2f)\n", review.AIDecision, review.AIConfidence)
	if review.AIAssessment != "" {
		fmt.Fprintf(&b, "Assessment: %s\n", review.AIAssessment)
	}
	if review.AIRecommendation != "" {
		fmt.Fprintf(&b, "Recommendation: %s\n", review.AIRecommendation)
	}

	if len(review.Findings) > 0 {
		b.WriteString("Findings:\n")
		for _, f := range review.Findings {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Severity, f.Description)
		}
	}
	if len(review.Enrichments) > 0 {
		b.WriteString("Enrichments:\n")
		for _, e := range review.Enrichments {
			fmt.Fprintf(&b, "- %s via %s: %s\n", e.ObservableKey, e.Analyzer, e.Verdict)
		}
	}
	if len(review.MISPContext.ThreatActors) > 0 {
		fmt.Fprintf(&b, "MISP threat actors: %s\n", strings.Join(review.MISPContext.ThreatActors, ", "))
	}
	if len(review.MISPContext.Campaigns) > 0 {
		fmt.Fprintf(&b, "MISP campaigns: %s\n", strings.Join(review.MISPContext.Campaigns, ", "))
	}

	if len(prior) > 0 {
		b.WriteString("Prior thread Q/A:\n")
		for _, t := range prior {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", t.Question, t.Answer)
		}
	}

	fmt.Fprintf(&b, "New question: %s\n", question)
	return b.String()
}
