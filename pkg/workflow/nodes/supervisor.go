// Package nodes implements the workflow graph's node functions: supervisor,
// the three enrichment workers, verdict, HIL, and close.
package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/gbrigandi/soctalk/pkg/llmparse"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

type supervisorResponse struct {
	NextAction            string  `json:"next_action"`
	ActionReasoning       string  `json:"action_reasoning"`
	TPConfidence          float64 `json:"tp_confidence"`
	ConfidenceReasoning   string  `json:"confidence_reasoning"`
	SpecificInstructions  string  `json:"specific_instructions"`
}

// Supervisor builds a context summary, asks the fast model which node runs
// next, and emits SUPERVISOR_DECISION. At MaxIterations it forces VERDICT
// regardless of what the model said.
func Supervisor(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	st.IterationCount++

	decision := callSupervisor(ctx, rc, st)
	if st.IterationCount >= workflow.MaxIterations {
		decision.NextAction = models.ActionVerdict
		decision.ActionReasoning = "iteration bound reached, forcing verdict"
	}

	ev, err := rc.Emitter.SupervisorDecisionRendered(ctx, q, st.InvestigationID, decision, st.Version)
	if err != nil {
		return st, fmt.Errorf("supervisor: emit decision: %w", err)
	}
	st.Version = ev.Version
	st.SupervisorDecision = &decision
	return st, nil
}

func callSupervisor(ctx context.Context, rc workflow.RunConfig, st *workflow.State) models.SupervisorDecision {
	fallback := models.SupervisorDecision{
		NextAction:      models.ActionEnrich,
		ActionReasoning: "fallback: supervisor model call failed or response unparseable",
	}

	if rc.FastModel == nil {
		return fallback
	}

	raw, err := rc.FastModel.Complete(ctx, SupervisorSystemPrompt, supervisorContext(st))
	if err != nil {
		return fallback
	}

	var resp supervisorResponse
	if !llmparse.ExtractJSON(raw, &resp) {
		return fallback
	}

	return models.SupervisorDecision{
		NextAction:           models.SupervisorAction(strings.ToUpper(resp.NextAction)),
		ActionReasoning:      resp.ActionReasoning,
		TPConfidence:         resp.TPConfidence,
		ConfidenceReasoning:  resp.ConfidenceReasoning,
		SpecificInstructions: resp.SpecificInstructions,
	}
}

// supervisorContext renders the investigation's current state into a
// compact text block for the model: phase, alert/observable tallies,
// enrichment verdict counts, last error, prior decision, MISP presence.
func supervisorContext(st *workflow.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "phase: %s\n", st.Phase)
	fmt.Fprintf(&b, "alerts: %d, observables: %d, pending_observables: %d\n",
		len(st.Alerts), len(st.Observables), len(st.PendingObservables()))

	tally := map[models.EnrichmentVerdict]int{}
	for _, e := range st.Enrichments {
		if e.Kind == models.EnrichmentResult {
			tally[e.Verdict]++
		}
	}
	fmt.Fprintf(&b, "enrichment verdicts: malicious=%d suspicious=%d benign=%d\n",
		tally[models.VerdictMalicious], tally[models.VerdictSuspicious], tally[models.VerdictBenign])

	if st.LastError != "" {
		fmt.Fprintf(&b, "last_error: %s\n", st.LastError)
	}
	if st.SupervisorDecision != nil {
		fmt.Fprintf(&b, "prior_decision: %s (%s)\n", st.SupervisorDecision.NextAction, st.SupervisorDecision.ActionReasoning)
	}
	if len(st.MISPContext.ThreatActors) > 0 || len(st.MISPContext.Campaigns) > 0 || st.MISPContext.WarninglistHit {
		fmt.Fprintf(&b, "misp_context: threat_actors=%v campaigns=%v warninglist_hit=%v\n",
			st.MISPContext.ThreatActors, st.MISPContext.Campaigns, st.MISPContext.WarninglistHit)
	}
	return b.String()
}
