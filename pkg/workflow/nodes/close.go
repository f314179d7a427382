package nodes

import (
	"context"
	"fmt"

	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

// Close derives the closure resolution from human decision > verdict >
// supervisor decision > default, then emits INVESTIGATION_CLOSED. The exact
// wording here ("rejected by analyst", "closed by ai verdict") is what
// pkg/projector's deriveFinalStatus pattern-matches to pick the terminal
// status — keep them in sync if either changes.
func Close(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	resolution, verdictDecision := closureResolution(st)

	ev, err := rc.Emitter.InvestigationClosed(ctx, q, st.InvestigationID, resolution, verdictDecision, st.TheHiveCaseID, st.Version)
	if err != nil {
		return st, fmt.Errorf("close: emit: %w", err)
	}
	st.Version = ev.Version
	st.Phase = models.PhaseClosed
	st.ClosureReason = resolution
	return st, nil
}

func closureResolution(st *workflow.State) (string, models.VerdictDecision) {
	verdictDecision := models.DecisionClose
	if st.Verdict != nil {
		verdictDecision = st.Verdict.Decision
	}

	switch {
	case st.Cancelled:
		return "closed: investigation cancelled by operator", verdictDecision

	case st.PendingReview != nil && st.PendingReview.Decision == models.HumanReject:
		reason := st.PendingReview.Feedback
		if reason == "" {
			reason = "no reason given"
		}
		return fmt.Sprintf("rejected by analyst: %s", reason), verdictDecision

	case st.TheHiveCaseID != nil:
		return fmt.Sprintf("escalated to incident response, case %s", *st.TheHiveCaseID), verdictDecision

	case st.Verdict != nil && st.Verdict.Decision == models.DecisionClose:
		return fmt.Sprintf("closed by ai verdict: %s", st.Verdict.Reasoning), verdictDecision

	case st.SupervisorDecision != nil && st.SupervisorDecision.NextAction == models.ActionClose:
		return fmt.Sprintf("closed by supervisor: %s", st.SupervisorDecision.ActionReasoning), verdictDecision

	default:
		return "closed: no further action required", verdictDecision
	}
}

func closeDescription(st *workflow.State) string {
	if st.Verdict != nil {
		return st.Verdict.Reasoning
	}
	return st.Title
}
