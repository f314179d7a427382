package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingReview is a snapshot of an investigation awaiting human sign-off,
// shown on the dashboard and resolvable from either the dashboard or chat.
// See pkg/hil.
type PendingReview struct {
	ID               uuid.UUID           `json:"id"`
	InvestigationID  uuid.UUID           `json:"investigation_id"`
	Status           PendingReviewStatus `json:"status"`
	AIDecision       VerdictDecision     `json:"ai_decision"`
	AIConfidence     float64             `json:"ai_confidence"`
	AIAssessment     string              `json:"ai_assessment"`
	AIRecommendation string              `json:"ai_recommendation"`
	Findings         []Finding           `json:"findings"`
	Enrichments      []Enrichment        `json:"enrichments"`
	MISPContext      MISPContext         `json:"misp_context"`
	CreatedAt        time.Time           `json:"created_at"`
	ExpiresAt        *time.Time          `json:"expires_at,omitempty"`
	RespondedAt      *time.Time          `json:"responded_at,omitempty"`
	Reviewer         string              `json:"reviewer,omitempty"`
	Feedback         string              `json:"feedback,omitempty"`
	WorkflowResumedAt *time.Time         `json:"workflow_resumed_at,omitempty"`
}

// Resolution is what either channel (dashboard or chat) submits to resolve
// a PendingReview. The resolver applies it under a row lock / CAS and the
// first caller to land it wins; the loser sees ErrAlreadyResolved.
type Resolution struct {
	Decision HumanDecision `json:"decision"`
	Reviewer string        `json:"reviewer"`
	Feedback string        `json:"feedback,omitempty"`
}
