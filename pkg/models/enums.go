package models

// Severity orders alert/investigation severity. Higher is worse.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank gives the total order used for max() and priority-queue comparisons.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the severity's position in the total order (higher = worse).
// Unknown severities rank below SeverityLow so malformed input never wins a
// max() comparison against a real severity.
func (s Severity) Rank() int {
	return severityRank[s]
}

// MaxSeverity returns whichever of a, b ranks higher.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// InvestigationStatus is the top-level lifecycle status of an investigation.
// See spec.md §4.8 for the transition diagram.
type InvestigationStatus string

const (
	StatusPending     InvestigationStatus = "pending"
	StatusInProgress  InvestigationStatus = "in_progress"
	StatusPaused      InvestigationStatus = "paused"
	StatusEscalated   InvestigationStatus = "escalated"
	StatusClosed      InvestigationStatus = "closed"
	StatusAutoClosed  InvestigationStatus = "auto_closed"
	StatusRejected    InvestigationStatus = "rejected"
	StatusCancelled   InvestigationStatus = "cancelled"
)

// Terminal reports whether the status is one of the five terminal states.
func (s InvestigationStatus) Terminal() bool {
	switch s {
	case StatusEscalated, StatusClosed, StatusAutoClosed, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// Phase is the workflow-engine phase of an investigation, distinct from Status.
type Phase string

const (
	PhaseTriage     Phase = "triage"
	PhaseEnrichment Phase = "enrichment"
	PhaseAnalysis   Phase = "analysis"
	PhaseVerdict    Phase = "verdict"
	PhaseHuman      Phase = "human_review"
	PhaseEscalation Phase = "escalation"
	PhaseClosed     Phase = "closed"
)

// EnrichmentVerdict is the analyzer-assigned classification of an observable.
type EnrichmentVerdict string

const (
	VerdictMalicious  EnrichmentVerdict = "malicious"
	VerdictSuspicious EnrichmentVerdict = "suspicious"
	VerdictBenign     EnrichmentVerdict = "benign"
	VerdictUnknown    EnrichmentVerdict = "unknown"
)

// VerdictDecision is the AI-rendered disposition of an investigation.
type VerdictDecision string

const (
	DecisionClose         VerdictDecision = "close"
	DecisionEscalate      VerdictDecision = "escalate"
	DecisionNeedsMoreInfo VerdictDecision = "needs_more_info"
)

// SupervisorAction is the next workflow step chosen by the supervisor node.
type SupervisorAction string

const (
	ActionInvestigate   SupervisorAction = "INVESTIGATE"
	ActionEnrich        SupervisorAction = "ENRICH"
	ActionContextualize SupervisorAction = "CONTEXTUALIZE"
	ActionVerdict       SupervisorAction = "VERDICT"
	ActionClose         SupervisorAction = "CLOSE"
)

// HumanDecision is the outcome of a human review, from either channel.
type HumanDecision string

const (
	HumanApprove     HumanDecision = "approve"
	HumanReject      HumanDecision = "reject"
	HumanMoreInfo    HumanDecision = "more_info"
)

// PendingReviewStatus is the lifecycle status of a PendingReview row.
type PendingReviewStatus string

const (
	ReviewPending     PendingReviewStatus = "pending"
	ReviewApproved    PendingReviewStatus = "approved"
	ReviewRejected    PendingReviewStatus = "rejected"
	ReviewInfoRequest PendingReviewStatus = "info_requested"
	ReviewExpired     PendingReviewStatus = "expired"
)

// MapHumanDecision translates a human decision into the PendingReview status
// it resolves to. Used by the projector's HUMAN_DECISION_RECEIVED rule.
func MapHumanDecision(d HumanDecision) PendingReviewStatus {
	switch d {
	case HumanApprove:
		return ReviewApproved
	case HumanReject:
		return ReviewRejected
	case HumanMoreInfo:
		return ReviewInfoRequest
	default:
		return ReviewPending
	}
}

// ObservableType enumerates the observable kinds the correlator, enrichment
// workers, and analyzer-routing logic all switch on.
type ObservableType string

const (
	ObservableIP     ObservableType = "ip"
	ObservableDomain ObservableType = "domain"
	ObservableURL    ObservableType = "url"
	ObservableHash   ObservableType = "hash"
	ObservableEmail  ObservableType = "email"
	ObservableFQDN   ObservableType = "fqdn"
)
