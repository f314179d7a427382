package nodes

import (
	"context"
	"fmt"

	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

// HumanReview requests an analyst decision the first time it runs for a
// given verdict: it emits HUMAN_REVIEW_REQUESTED (immediate commit, so the
// dashboard sees it right away) and suspends. The pkg/hil resolver is
// responsible for resolving the PendingReview and calling Engine.Resume,
// which re-enters this node with st.PendingReview already populated —
// on that second entry the node just records the chat-originated decision
// (dashboard decisions are already persisted by the REST handler and must
// not be double-emitted) and returns control to the routing layer.
func HumanReview(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	if st.PendingReview == nil {
		decision := models.DecisionEscalate
		confidence := 0.0
		assessment := ""
		recommendation := ""
		if st.Verdict != nil {
			decision = st.Verdict.Decision
			confidence = st.Verdict.Confidence
			assessment = st.Verdict.Reasoning
			recommendation = st.Verdict.Recommendation
		}

		params := emitter.HumanReviewRequestedParams{
			AIDecision:       decision,
			AIConfidence:     confidence,
			AIAssessment:     assessment,
			AIRecommendation: recommendation,
			Findings:         st.Findings,
			Enrichments:      st.Enrichments,
			MISPContext:      st.MISPContext,
		}
		ev, err := rc.Emitter.HumanReviewRequested(ctx, st.InvestigationID, params, st.Version)
		if err != nil {
			return st, fmt.Errorf("human review: emit requested: %w", err)
		}
		st.Version = ev.Version
		return st, workflow.ErrSuspend
	}

	if st.PendingReview.Source == "chat" {
		ev, err := rc.Emitter.HumanDecisionReceived(ctx, q, st.InvestigationID, st.PendingReview.Decision, st.PendingReview.Reviewer, st.PendingReview.Feedback, "chat", st.Version)
		if err != nil {
			return st, fmt.Errorf("human review: emit decision received: %w", err)
		}
		st.Version = ev.Version
	}
	return st, nil
}
