// Package emitter is a typed facade over the event store and projector: one
// method per business event, each building the event payload, appending it,
// and projecting it in the same call. Most emissions defer their commit to
// the caller's own transaction; HumanReviewRequested commits immediately so
// the dashboard can see the pending review while the workflow is suspended.
package emitter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/projector"
	"github.com/gbrigandi/soctalk/pkg/store"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Emitter wraps Store+Projector. db is used only by emissions that must
// commit immediately, outside the caller's transaction.
type Emitter struct {
	db *sql.DB
}

// New returns an Emitter. db must be the pool every caller's transactions
// are also opened from.
func New(db *sql.DB) *Emitter {
	return &Emitter{db: db}
}

func (e *Emitter) emit(
	ctx context.Context, q Querier, aggregateID uuid.UUID, eventType models.EventType,
	data, metadata map[string]any, expectedVersion *int, idempotencyKey *string,
) (*models.Event, error) {
	ev, err := store.New(q).Append(ctx, aggregateID, models.AggregateTypeInvestigation, eventType,
		data, metadata, expectedVersion, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("emit %s: %w", eventType, err)
	}
	if err := projector.New(q).Project(ctx, *ev); err != nil {
		return nil, fmt.Errorf("project %s: %w", eventType, err)
	}
	return ev, nil
}

// emitImmediate opens and commits its own transaction against e.db,
// bypassing whatever transaction the caller may be holding. Used only where
// external visibility before the workflow proceeds is required.
func (e *Emitter) emitImmediate(
	ctx context.Context, aggregateID uuid.UUID, eventType models.EventType,
	data, metadata map[string]any, expectedVersion *int, idempotencyKey *string,
) (*models.Event, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin immediate-commit transaction for %s: %w", eventType, err)
	}
	defer func() { _ = tx.Rollback() }()

	ev, err := e.emit(ctx, tx, aggregateID, eventType, data, metadata, expectedVersion, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit immediate event %s: %w", eventType, err)
	}
	return ev, nil
}

func obsData(o models.Observable) map[string]any {
	return map[string]any{"value": o.Value, "type": string(o.Type)}
}

// InvestigationCreated starts a brand-new aggregate. Idempotency key
// "inv-created-<id>" makes retried poller/correlator batches safe.
func (e *Emitter) InvestigationCreated(ctx context.Context, q Querier, investigationID uuid.UUID, title string, maxSeverity models.Severity) (*models.Event, error) {
	key := "inv-created-" + investigationID.String()
	data := map[string]any{"title": title, "max_severity": string(maxSeverity)}
	return e.emit(ctx, q, investigationID, models.EventInvestigationCreated, data, nil, nil, &key)
}

// InvestigationStarted transitions pending → in_progress.
func (e *Emitter) InvestigationStarted(ctx context.Context, q Querier, investigationID uuid.UUID, title string, expectedVersion int) (*models.Event, error) {
	key := "inv-started-" + investigationID.String()
	data := map[string]any{"title": title}
	return e.emit(ctx, q, investigationID, models.EventInvestigationStarted, data, nil, &expectedVersion, &key)
}

// InvestigationPaused records an operator pause.
func (e *Emitter) InvestigationPaused(ctx context.Context, q Querier, investigationID uuid.UUID, expectedVersion int) (*models.Event, error) {
	return e.emit(ctx, q, investigationID, models.EventInvestigationPaused, map[string]any{}, nil, &expectedVersion, nil)
}

// InvestigationResumed records an operator resume out of pause.
func (e *Emitter) InvestigationResumed(ctx context.Context, q Querier, investigationID uuid.UUID, expectedVersion int) (*models.Event, error) {
	return e.emit(ctx, q, investigationID, models.EventInvestigationResumed, map[string]any{}, nil, &expectedVersion, nil)
}

// InvestigationCancelled records an operator cancellation; the engine checks
// this between node executions and routes to close deterministically.
func (e *Emitter) InvestigationCancelled(ctx context.Context, q Querier, investigationID uuid.UUID, reason string, expectedVersion int) (*models.Event, error) {
	data := map[string]any{"reason": reason}
	return e.emit(ctx, q, investigationID, models.EventInvestigationCancelled, data, nil, &expectedVersion, nil)
}

// InvestigationClosed finalizes an investigation. resolution's exact wording
// drives the projector's final-status derivation (see pkg/projector).
func (e *Emitter) InvestigationClosed(
	ctx context.Context, q Querier, investigationID uuid.UUID, resolution string,
	verdictDecision models.VerdictDecision, theHiveCaseID *string, expectedVersion int,
) (*models.Event, error) {
	data := map[string]any{"resolution": resolution, "verdict_decision": string(verdictDecision)}
	if theHiveCaseID != nil {
		data["thehive_case_id"] = *theHiveCaseID
	}
	return e.emit(ctx, q, investigationID, models.EventInvestigationClosed, data, nil, &expectedVersion, nil)
}

// AlertCorrelated records one alert placed into this investigation by the
// correlator.
func (e *Emitter) AlertCorrelated(ctx context.Context, q Querier, investigationID uuid.UUID, alert models.Alert, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"alert_id":    alert.ID,
		"rule_id":     alert.RuleID,
		"description": alert.Description,
		"agent_name":  alert.AgentName,
		"severity":    string(alert.Severity),
		"timestamp":   alert.Timestamp,
	}
	return e.emit(ctx, q, investigationID, models.EventAlertCorrelated, data, nil, &expectedVersion, nil)
}

// ObservableExtracted records one newly-seen observable. Callers must only
// invoke this for composite keys (value+type) not already recorded for this
// investigation — the projector trusts this and always increments
// observable_count on receipt.
func (e *Emitter) ObservableExtracted(ctx context.Context, q Querier, investigationID uuid.UUID, obs models.Observable, expectedVersion int) (*models.Event, error) {
	return e.emit(ctx, q, investigationID, models.EventObservableExtracted, obsData(obs), nil, &expectedVersion, nil)
}

// EnrichmentRequested marks the start of one analyzer call against one
// observable. Idempotency key is per (observable, analyzer) so a retried
// worker step never records the same enrichment request twice.
func (e *Emitter) EnrichmentRequested(ctx context.Context, q Querier, investigationID uuid.UUID, obs models.Observable, analyzer string, expectedVersion int) (*models.Event, error) {
	key := fmt.Sprintf("enrich-req-%s-%s-%s", investigationID, obs.Key(), analyzer)
	data := map[string]any{"observable_value": obs.Value, "observable_type": string(obs.Type), "analyzer": analyzer}
	return e.emit(ctx, q, investigationID, models.EventEnrichmentRequested, data, nil, &expectedVersion, &key)
}

// EnrichmentCompleted records a successful analyzer result.
func (e *Emitter) EnrichmentCompleted(ctx context.Context, q Querier, investigationID uuid.UUID, obs models.Observable, enr models.Enrichment, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"observable_value": obs.Value,
		"observable_type":  string(obs.Type),
		"analyzer":         enr.Analyzer,
		"verdict":          string(enr.Verdict),
		"confidence":       enr.Confidence,
		"details":          enr.Details,
	}
	return e.emit(ctx, q, investigationID, models.EventEnrichmentCompleted, data, nil, &expectedVersion, nil)
}

// EnrichmentFailed records an analyzer call that exhausted its retry budget.
func (e *Emitter) EnrichmentFailed(ctx context.Context, q Querier, investigationID uuid.UUID, obs models.Observable, analyzer, errMsg string, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"observable_value": obs.Value,
		"observable_type":  string(obs.Type),
		"analyzer":         analyzer,
		"error":            errMsg,
	}
	return e.emit(ctx, q, investigationID, models.EventEnrichmentFailed, data, nil, &expectedVersion, nil)
}

// PhaseChanged moves the investigation to a new workflow phase.
func (e *Emitter) PhaseChanged(ctx context.Context, q Querier, investigationID uuid.UUID, phase models.Phase, expectedVersion int) (*models.Event, error) {
	data := map[string]any{"phase": string(phase)}
	return e.emit(ctx, q, investigationID, models.EventPhaseChanged, data, nil, &expectedVersion, nil)
}

// SupervisorDecisionRendered records the supervisor node's routing choice.
func (e *Emitter) SupervisorDecisionRendered(ctx context.Context, q Querier, investigationID uuid.UUID, d models.SupervisorDecision, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"next_action":            string(d.NextAction),
		"action_reasoning":       d.ActionReasoning,
		"tp_confidence":          d.TPConfidence,
		"confidence_reasoning":   d.ConfidenceReasoning,
		"specific_instructions":  d.SpecificInstructions,
	}
	return e.emit(ctx, q, investigationID, models.EventSupervisorDecision, data, nil, &expectedVersion, nil)
}

// VerdictRendered records the verdict node's output.
func (e *Emitter) VerdictRendered(ctx context.Context, q Querier, investigationID uuid.UUID, v models.Verdict, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"decision":       string(v.Decision),
		"confidence":     v.Confidence,
		"impact":         v.Impact,
		"urgency":        v.Urgency,
		"evidence":       v.Evidence,
		"recommendation": v.Recommendation,
		"reasoning":      v.Reasoning,
	}
	return e.emit(ctx, q, investigationID, models.EventVerdictRendered, data, nil, &expectedVersion, nil)
}

// HumanReviewRequestedParams bundles the PendingReview snapshot fields the
// HIL node must supply.
type HumanReviewRequestedParams struct {
	AIDecision       models.VerdictDecision
	AIConfidence     float64
	AIAssessment     string
	AIRecommendation string
	Findings         []models.Finding
	Enrichments      []models.Enrichment
	MISPContext      models.MISPContext
}

// HumanReviewRequested suspends the workflow for human approval. It commits
// immediately, outside the caller's transaction, so the dashboard observes
// the pending review while the engine is suspended — per SPEC_FULL.md §4.4.
// Idempotency key is NOT used here: each human-review suspension is a fresh
// request even if a prior one for the same investigation already resolved.
func (e *Emitter) HumanReviewRequested(ctx context.Context, investigationID uuid.UUID, p HumanReviewRequestedParams, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"ai_decision":       string(p.AIDecision),
		"ai_confidence":     p.AIConfidence,
		"ai_assessment":     p.AIAssessment,
		"ai_recommendation": p.AIRecommendation,
		"findings":          p.Findings,
		"enrichments":       p.Enrichments,
		"misp_context":      p.MISPContext,
	}
	return e.emitImmediate(ctx, investigationID, models.EventHumanReviewRequested, data, nil, &expectedVersion, nil)
}

// HumanDecisionReceived records a resolved review. source is "chat" or
// "dashboard"; the HIL node must not call this for dashboard-sourced
// decisions, which the REST handler has already persisted directly.
func (e *Emitter) HumanDecisionReceived(ctx context.Context, q Querier, investigationID uuid.UUID, decision models.HumanDecision, reviewer, feedback, source string, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"decision": string(decision),
		"reviewer": reviewer,
		"feedback": feedback,
		"source":   source,
	}
	return e.emit(ctx, q, investigationID, models.EventHumanDecisionReceived, data, nil, &expectedVersion, nil)
}

// TheHiveCaseCreated records a successful escalation to the IR system.
// The per-investigation idempotency key keeps a retried thehive_worker step
// from recording a second case-created event; it does not stop the
// case itself from being created again.
func (e *Emitter) TheHiveCaseCreated(ctx context.Context, q Querier, investigationID uuid.UUID, caseID string, expectedVersion int) (*models.Event, error) {
	key := "thehive-case-" + investigationID.String()
	data := map[string]any{"case_id": caseID}
	return e.emit(ctx, q, investigationID, models.EventTheHiveCaseCreated, data, nil, &expectedVersion, &key)
}

// AnalyzerInvoked marks the start of a raw analyzer HTTP call (distinct from
// EnrichmentRequested: this tracks per-analyzer operational stats only).
func (e *Emitter) AnalyzerInvoked(ctx context.Context, q Querier, investigationID uuid.UUID, analyzer string, expectedVersion int) (*models.Event, error) {
	data := map[string]any{"analyzer": analyzer}
	return e.emit(ctx, q, investigationID, models.EventAnalyzerInvoked, data, nil, &expectedVersion, nil)
}

// AnalyzerCompleted records the outcome and latency of an analyzer call.
// errMsg is empty on success.
func (e *Emitter) AnalyzerCompleted(ctx context.Context, q Querier, investigationID uuid.UUID, analyzer string, responseTimeMs float64, errMsg string, expectedVersion int) (*models.Event, error) {
	data := map[string]any{"analyzer": analyzer, "response_time_ms": responseTimeMs, "error": errMsg}
	return e.emit(ctx, q, investigationID, models.EventAnalyzerCompleted, data, nil, &expectedVersion, nil)
}

// MISPContextAdded records threat-intel context accumulated by the MISP worker.
func (e *Emitter) MISPContextAdded(ctx context.Context, q Querier, investigationID uuid.UUID, mc models.MISPContext, expectedVersion int) (*models.Event, error) {
	data := map[string]any{
		"threat_actors":   mc.ThreatActors,
		"campaigns":       mc.Campaigns,
		"warninglist_hit": mc.WarninglistHit,
	}
	return e.emit(ctx, q, investigationID, models.EventMISPContextAdded, data, nil, &expectedVersion, nil)
}

// WazuhQueried records one Wazuh worker query for the investigation timeline.
func (e *Emitter) WazuhQueried(ctx context.Context, q Querier, investigationID uuid.UUID, query string, expectedVersion int) (*models.Event, error) {
	data := map[string]any{"query": query}
	return e.emit(ctx, q, investigationID, models.EventWazuhQueried, data, nil, &expectedVersion, nil)
}
