// Package hil implements the dual-channel human-in-the-loop resolution
// described by the workflow's human_review suspension point: a dashboard
// resolver with a pessimistic row lock, a chat-side poll-for-race loop, a
// background scanner that drives resolved reviews back into the workflow
// engine, and an inquiry handler for threaded follow-up questions.
package hil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/store"
)

// ErrAlreadyResolved is returned when a dashboard caller loses the race: the
// PendingReview row is no longer pending by the time the lock is acquired.
var ErrAlreadyResolved = errors.New("hil: pending review already resolved")

// ErrNoPendingReview is returned by PollStatus when an investigation has no
// review row at all (never suspended, or already scanned and cleaned up).
var ErrNoPendingReview = errors.New("hil: no pending review for investigation")

// Resolver applies decisions submitted through either channel. The
// dashboard path takes a pessimistic row lock to serialise with concurrent
// dashboard calls (spec: "dashboard-side updates must use SELECT ... FOR
// UPDATE"); the chat path only ever reads status, relying on the dashboard
// path's lock plus the projector's idempotent status transition to avoid
// double-application.
type Resolver struct {
	db      *sql.DB
	emitter *emitter.Emitter
}

// NewResolver returns a Resolver bound to db and emitter.
func NewResolver(db *sql.DB, emt *emitter.Emitter) *Resolver {
	return &Resolver{db: db, emitter: emt}
}

// ResolveDashboard applies a dashboard-submitted decision under a row lock.
// Unlike a chat-originated decision (persisted when the suspended workflow
// resumes, see pkg/workflow/nodes.HumanReview), the dashboard path persists
// HUMAN_DECISION_RECEIVED itself, here, with source="dashboard" — the
// resume loop only needs to drive the already-decided workflow forward.
func (r *Resolver) ResolveDashboard(ctx context.Context, investigationID uuid.UUID, res models.Resolution) (*models.Event, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("hil: resolve dashboard: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pendingID uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM pending_reviews WHERE investigation_id = $1 AND status = $2 FOR UPDATE`,
		investigationID, models.ReviewPending,
	).Scan(&pendingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("hil: resolve dashboard: lock pending review: %w", err)
	}

	version, err := store.New(tx).GetLatestVersion(ctx, investigationID)
	if err != nil {
		return nil, fmt.Errorf("hil: resolve dashboard: latest version: %w", err)
	}

	ev, err := r.emitter.HumanDecisionReceived(ctx, tx, investigationID, res.Decision, res.Reviewer, res.Feedback, "dashboard", version)
	if err != nil {
		return nil, fmt.Errorf("hil: resolve dashboard: emit decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("hil: resolve dashboard: commit: %w", err)
	}
	return ev, nil
}

// ReviewContext is the minimal context a chat backend needs to render a
// review request outside the dashboard.
type ReviewContext struct {
	InvestigationID  uuid.UUID
	Title            string
	Severity         models.Severity
	AIDecision       models.VerdictDecision
	AIConfidence     float64
	AIAssessment     string
	AIRecommendation string
}

// GetReviewContext loads the title, severity and AI verdict backing the
// current pending review, for a chat backend to render in its own message.
func (r *Resolver) GetReviewContext(ctx context.Context, investigationID uuid.UUID) (ReviewContext, error) {
	rc := ReviewContext{InvestigationID: investigationID}
	err := r.db.QueryRowContext(ctx, `
		SELECT i.title, i.max_severity, p.ai_decision, p.ai_confidence, p.ai_assessment, p.ai_recommendation
		FROM pending_reviews p
		JOIN investigations i ON i.id = p.investigation_id
		WHERE p.investigation_id = $1 AND p.status = $2
		ORDER BY p.created_at DESC LIMIT 1`,
		investigationID, models.ReviewPending,
	).Scan(&rc.Title, &rc.Severity, &rc.AIDecision, &rc.AIConfidence, &rc.AIAssessment, &rc.AIRecommendation)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewContext{}, ErrNoPendingReview
	}
	if err != nil {
		return ReviewContext{}, fmt.Errorf("hil: get review context: %w", err)
	}
	return rc, nil
}

// PollStatus is the non-locking read the chat backend polls every
// PollInterval while awaiting its own button press. It relies on the
// dashboard path's row lock plus this plain read to detect the race rather
// than taking a lock of its own (spec: "chat-side updates must query
// PendingReview without a row lock").
func (r *Resolver) PollStatus(ctx context.Context, investigationID uuid.UUID) (models.PendingReviewStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM pending_reviews WHERE investigation_id = $1 ORDER BY created_at DESC LIMIT 1`,
		investigationID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoPendingReview
	}
	if err != nil {
		return "", fmt.Errorf("hil: poll status: %w", err)
	}
	return models.PendingReviewStatus(status), nil
}
