// Package workflow executes the directed, conditionally-routed graph that
// drives one investigation from creation to closure. Nodes are pure
// transformations over State; IO goes through collaborators passed in a
// per-run RunConfig that the checkpointer never persists.
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// MaxIterations bounds the supervisor↔worker loop (spec.md §4.8): once the
// supervisor's iteration counter reaches this, it forces next_action=VERDICT.
const MaxIterations = 10

// MaxVerdictRetries bounds route_from_verdict's needs_more_info loop before
// forcing escalation to human review.
const MaxVerdictRetries = 2

// ReviewInjection carries the resolved human decision into a suspended
// state on resume. Never persisted independent of the checkpoint it's
// merged into.
type ReviewInjection struct {
	Decision models.HumanDecision `json:"decision"`
	Feedback string               `json:"feedback"`
	Reviewer string               `json:"reviewer"`
	Source   string               `json:"source"` // "chat" | "dashboard"
}

// State is the dict the engine threads through every node. It is persisted
// wholesale by the checkpointer between steps and is self-contained: no
// field may reference a live collaborator.
type State struct {
	InvestigationID uuid.UUID      `json:"investigation_id"`
	Version         int            `json:"version"`
	Title           string         `json:"title"`
	MaxSeverity     models.Severity `json:"max_severity"`
	Phase           models.Phase   `json:"phase"`

	Alerts      []models.Alert      `json:"alerts"`
	Observables []models.Observable `json:"observables"`
	Enrichments []models.Enrichment `json:"enrichments"`
	Findings    []models.Finding    `json:"findings"`
	MISPContext models.MISPContext  `json:"misp_context"`

	MISPChecked map[string]bool `json:"misp_checked"` // observable key -> searched

	SupervisorDecision *models.SupervisorDecision `json:"supervisor_decision,omitempty"`
	Verdict            *models.Verdict            `json:"verdict,omitempty"`

	IterationCount    int `json:"iteration_count"`
	VerdictRetryCount int `json:"verdict_retry_count"`

	LastError string `json:"last_error,omitempty"`
	Cancelled bool   `json:"cancelled"`

	PendingReview *ReviewInjection `json:"pending_review,omitempty"`

	TheHiveCaseID *string `json:"thehive_case_id,omitempty"`
	ClosureReason string  `json:"closure_reason,omitempty"`
}

// NewState seeds a fresh state for a newly-created investigation.
func NewState(investigationID uuid.UUID, title string, maxSeverity models.Severity, alerts []models.Alert) *State {
	var observables []models.Observable
	seen := map[string]bool{}
	for _, a := range alerts {
		for _, o := range a.Observables {
			if seen[o.Key()] {
				continue
			}
			seen[o.Key()] = true
			observables = append(observables, o)
		}
	}
	return &State{
		InvestigationID: investigationID,
		Title:           title,
		MaxSeverity:     maxSeverity,
		Phase:           models.PhaseTriage,
		Alerts:          alerts,
		Observables:     observables,
		MISPChecked:     map[string]bool{},
	}
}

// EnrichedKeys returns the set of observable keys that already have at
// least one recorded enrichment result.
func (s *State) EnrichedKeys() map[string]bool {
	out := make(map[string]bool, len(s.Enrichments))
	for _, e := range s.Enrichments {
		out[e.ObservableKey] = true
	}
	return out
}

// PendingObservables returns observables with no enrichment recorded yet, in
// original order.
func (s *State) PendingObservables() []models.Observable {
	enriched := s.EnrichedKeys()
	var out []models.Observable
	for _, o := range s.Observables {
		if !enriched[o.Key()] {
			out = append(out, o)
		}
	}
	return out
}

// MaliciousCount counts enrichment results classified malicious.
func (s *State) MaliciousCount() int {
	n := 0
	for _, e := range s.Enrichments {
		if e.Kind == models.EnrichmentResult && e.Verdict == models.VerdictMalicious {
			n++
		}
	}
	return n
}

// ToSnapshotState marshals State into the generic map the checkpointer
// persists.
func (s *State) ToSnapshotState() (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow state: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state to map: %w", err)
	}
	return m, nil
}

// FromSnapshotState rebuilds a typed State from a checkpoint's generic map.
func FromSnapshotState(m map[string]any) (*State, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot state: %w", err)
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot state: %w", err)
	}
	if s.MISPChecked == nil {
		s.MISPChecked = map[string]bool{}
	}
	return &s, nil
}
