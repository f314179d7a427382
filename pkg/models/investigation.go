package models

import (
	"time"

	"github.com/google/uuid"
)

// Investigation is the read model projected from an aggregate's event
// stream (pkg/projector). It is rebuildable: deleting the row and replaying
// every event for the aggregate through the projector reproduces it.
type Investigation struct {
	ID                   uuid.UUID           `json:"id"`
	Title                string              `json:"title"`
	Status               InvestigationStatus `json:"status"`
	Phase                Phase               `json:"phase"`
	AlertCount           int                 `json:"alert_count"`
	ObservableCount      int                 `json:"observable_count"`
	MaliciousCount       int                 `json:"malicious_count"`
	SuspiciousCount      int                 `json:"suspicious_count"`
	CleanCount           int                 `json:"clean_count"`
	TimeToTriageSeconds  *float64            `json:"time_to_triage_seconds,omitempty"`
	TimeToVerdictSeconds *float64            `json:"time_to_verdict_seconds,omitempty"`
	ClosedAt             *time.Time          `json:"closed_at,omitempty"`
	VerdictDecision      *string             `json:"verdict_decision,omitempty"`
	VerdictConfidence    *float64            `json:"verdict_confidence,omitempty"`
	VerdictReasoning     *string             `json:"verdict_reasoning,omitempty"`
	MaxSeverity          Severity            `json:"max_severity"`
	TheHiveCaseID        *string             `json:"thehive_case_id,omitempty"`
	Tags                 []string            `json:"tags"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// --- In-memory workflow entities (spec.md §3 "In-memory entities") ---
//
// These are ordinary tree-shaped value types held in workflow.State during
// one engine run and serialized wholesale by the checkpointer; they are NOT
// read-model rows. Investigations own Alerts; Alerts own Observables;
// Enrichments reference an Observable by composite key (value+type), never
// a back-pointer, so ownership stays a tree (spec.md §9 "no cyclic ownership").

// Alert is a single SIEM alert correlated into an investigation.
type Alert struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"rule_id"`
	Description string         `json:"description"`
	AgentName   string         `json:"agent_name"`
	Severity    Severity       `json:"severity"`
	Timestamp   time.Time      `json:"timestamp"`
	Observables []Observable   `json:"observables"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Observable is a security-relevant data point extracted from an alert.
type Observable struct {
	Value string         `json:"value"`
	Type  ObservableType `json:"type"`
}

// Key is the composite identity Enrichment and Finding use to reference an
// Observable by value instead of holding a pointer back into the Alert tree.
func (o Observable) Key() string {
	return string(o.Type) + ":" + o.Value
}

// Enrichment is a tagged sum type: either a successful analyzer Result or a
// Failed attempt. Exactly one of Result/Failed is populated, selected by
// Kind — this replaces Python-style hasattr() duck typing (spec.md §9).
type EnrichmentKind string

const (
	EnrichmentResult EnrichmentKind = "result"
	EnrichmentFailed EnrichmentKind = "failed"
)

// Enrichment holds the outcome of invoking one analyzer against one
// observable.
type Enrichment struct {
	Kind           EnrichmentKind    `json:"kind"`
	ObservableKey  string            `json:"observable_key"`
	Analyzer       string            `json:"analyzer"`
	Verdict        EnrichmentVerdict `json:"verdict,omitempty"`
	Confidence     float64           `json:"confidence,omitempty"`
	Details        string            `json:"details,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Finding is a derived piece of context produced by a worker (currently
// only the MISP worker), carrying its own severity independent of the
// originating alert.
type Finding struct {
	Source      string   `json:"source"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// MISPContext aggregates threat-intel context accumulated across the MISP
// worker's observable lookups for one investigation.
type MISPContext struct {
	ThreatActors   []string `json:"threat_actors"`
	Campaigns      []string `json:"campaigns"`
	WarninglistHit bool     `json:"warninglist_hit"`
}
