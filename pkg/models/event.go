package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the stable, append-only-log event name. Handlers in
// pkg/projector switch on this value; never rename a constant once events
// carrying it exist in a store.
type EventType string

const (
	EventInvestigationCreated   EventType = "investigation.created"
	EventInvestigationStarted   EventType = "investigation.started"
	EventInvestigationPaused    EventType = "investigation.paused"
	EventInvestigationResumed   EventType = "investigation.resumed"
	EventInvestigationCancelled EventType = "investigation.cancelled"
	EventInvestigationClosed    EventType = "investigation.closed"
	EventAlertCorrelated        EventType = "alert.correlated"
	EventObservableExtracted    EventType = "observable.extracted"
	EventEnrichmentRequested    EventType = "enrichment.requested"
	EventEnrichmentCompleted    EventType = "enrichment.completed"
	EventEnrichmentFailed       EventType = "enrichment.failed"
	EventPhaseChanged           EventType = "phase.changed"
	EventSupervisorDecision     EventType = "supervisor.decision"
	EventVerdictRendered        EventType = "verdict.rendered"
	EventHumanReviewRequested   EventType = "human.review_requested"
	EventHumanDecisionReceived  EventType = "human.decision_received"
	EventTheHiveCaseCreated     EventType = "thehive.case_created"
	EventAnalyzerInvoked        EventType = "analyzer.invoked"
	EventAnalyzerCompleted      EventType = "analyzer.completed"
	EventMISPContextAdded       EventType = "misp.context_added"
	EventWazuhQueried           EventType = "wazuh.queried"
)

// Event is a single immutable row in the append-only event log.
//
// Invariants (enforced by pkg/store, never by callers):
//   - (AggregateID, Version) is unique and versions are contiguous from 1.
//   - IdempotencyKey, when non-empty, is globally unique.
//   - once appended, an Event is never mutated or deleted.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	AggregateID    uuid.UUID      `json:"aggregate_id"`
	AggregateType  string         `json:"aggregate_type"`
	EventType      EventType      `json:"event_type"`
	Version        int            `json:"version"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
}

// AggregateTypeInvestigation is the only aggregate type SocTalk emits today;
// the store does not assume it, so a new aggregate type needs no store change.
const AggregateTypeInvestigation = "Investigation"
