package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/gbrigandi/soctalk/pkg/llmparse"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

type verdictResponse struct {
	Decision       string   `json:"decision"`
	Confidence     float64  `json:"confidence"`
	Impact         string   `json:"impact"`
	Urgency        string   `json:"urgency"`
	Evidence       []string `json:"evidence"`
	Recommendation string   `json:"recommendation"`
	Reasoning      string   `json:"reasoning"`
}

// Verdict calls the reasoning model with the full investigation context and
// parses a Verdict. needs_more_info increments the retry counter the
// routing layer uses to force escalation once MaxVerdictRetries is hit.
func Verdict(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	v := callVerdict(ctx, rc, st)
	if v.Decision == models.DecisionNeedsMoreInfo {
		st.VerdictRetryCount++
	}

	ev, err := rc.Emitter.VerdictRendered(ctx, q, st.InvestigationID, v, st.Version)
	if err != nil {
		return st, fmt.Errorf("verdict: emit: %w", err)
	}
	st.Version = ev.Version
	st.Verdict = &v
	return st, nil
}

func callVerdict(ctx context.Context, rc workflow.RunConfig, st *workflow.State) models.Verdict {
	fallback := models.Verdict{Decision: models.DecisionNeedsMoreInfo, Reasoning: "fallback: verdict model call failed or response unparseable"}

	if rc.ReasoningModel == nil {
		return fallback
	}

	raw, err := rc.ReasoningModel.Complete(ctx, VerdictSystemPrompt, verdictContext(st))
	if err != nil {
		return fallback
	}

	var resp verdictResponse
	if !llmparse.ExtractJSON(raw, &resp) {
		return fallback
	}

	decision := models.VerdictDecision(strings.ToLower(resp.Decision))
	switch decision {
	case models.DecisionClose, models.DecisionEscalate, models.DecisionNeedsMoreInfo:
	default:
		decision = models.DecisionNeedsMoreInfo
	}

	return models.Verdict{
		Decision:       decision,
		Confidence:     resp.Confidence,
		Impact:         resp.Impact,
		Urgency:        resp.Urgency,
		Evidence:       resp.Evidence,
		Recommendation: resp.Recommendation,
		Reasoning:      resp.Reasoning,
	}
}

func verdictContext(st *workflow.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\nmax_severity: %s\n", st.Title, st.MaxSeverity)
	fmt.Fprintf(&b, "malicious_observables: %d of %d\n", st.MaliciousCount(), len(st.Observables))
	for _, e := range st.Enrichments {
		if e.Kind == models.EnrichmentResult {
			fmt.Fprintf(&b, "enrichment %s via %s: %s (confidence %.2f)\n", e.ObservableKey, e.Analyzer, e.Verdict, e.Confidence)
		}
	}
	for _, f := range st.Findings {
		fmt.Fprintf(&b, "finding [%s] %s: %s\n", f.Severity, f.Source, f.Description)
	}
	if len(st.MISPContext.ThreatActors) > 0 {
		fmt.Fprintf(&b, "misp threat actors: %v\n", st.MISPContext.ThreatActors)
	}
	return b.String()
}
