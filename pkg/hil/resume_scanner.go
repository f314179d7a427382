package hil

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/checkpoint"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

// ResumeScanner implements the background loop described in the HIL
// resolver's resume path: it finds PendingReviews that a channel has
// already decided but whose workflow has not yet been resumed, and drives
// each one through Engine.Resume.
type ResumeScanner struct {
	db           *sql.DB
	checkpointer *checkpoint.Checkpointer
	engine       *workflow.Engine
	batchSize    int
}

// NewResumeScanner returns a scanner bound to db, checkpointer and engine,
// scanning in batches of at most 10 per spec's "batches ≤10" tunable.
func NewResumeScanner(db *sql.DB, cp *checkpoint.Checkpointer, eng *workflow.Engine) *ResumeScanner {
	return &ResumeScanner{db: db, checkpointer: cp, engine: eng, batchSize: 10}
}

type resumeCandidate struct {
	investigationID uuid.UUID
	status          models.PendingReviewStatus
	reviewer        string
	feedback        string
}

// ScanOnce resumes at most one batch of ready reviews and returns how many
// it actually resumed. It never resumes an investigation whose status is
// paused, cancelled, or already terminal-closed.
func (s *ResumeScanner) ScanOnce(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pr.investigation_id, pr.status, pr.reviewer, pr.feedback
		FROM pending_reviews pr
		JOIN investigations i ON i.id = pr.investigation_id
		WHERE pr.status IN ($1, $2, $3)
		  AND pr.workflow_resumed_at IS NULL
		  AND i.status NOT IN ($4, $5, $6, $7)
		ORDER BY pr.created_at
		LIMIT $8`,
		models.ReviewApproved, models.ReviewRejected, models.ReviewInfoRequest,
		models.StatusPaused, models.StatusCancelled, models.StatusClosed, models.StatusAutoClosed,
		s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("hil: resume scan: query candidates: %w", err)
	}

	var candidates []resumeCandidate
	for rows.Next() {
		var c resumeCandidate
		var reviewer, feedback sql.NullString
		if err := rows.Scan(&c.investigationID, &c.status, &reviewer, &feedback); err != nil {
			rows.Close()
			return 0, fmt.Errorf("hil: resume scan: scan candidate: %w", err)
		}
		c.reviewer = reviewer.String
		c.feedback = feedback.String
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("hil: resume scan: %w", err)
	}
	rows.Close()

	resumed := 0
	for _, c := range candidates {
		threadID := checkpoint.ThreadID(c.investigationID.String())
		interrupts, err := s.checkpointer.Interrupts(ctx, threadID)
		if err != nil {
			slog.Error("resume scan: load interrupts failed", "investigation_id", c.investigationID, "error", err)
			continue
		}
		if !hasHumanReviewInterrupt(interrupts) {
			continue
		}

		decision := workflow.ReviewInjection{
			Decision: decisionFromReviewStatus(c.status),
			Reviewer: c.reviewer,
			Feedback: c.feedback,
			Source:   "dashboard",
		}
		if _, err := s.engine.Resume(ctx, c.investigationID, decision); err != nil {
			slog.Error("resume scan: engine resume failed", "investigation_id", c.investigationID, "error", err)
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE pending_reviews SET workflow_resumed_at = now() WHERE investigation_id = $1`,
			c.investigationID); err != nil {
			slog.Error("resume scan: mark resumed failed", "investigation_id", c.investigationID, "error", err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Run polls ScanOnce every interval until ctx is cancelled.
func (s *ResumeScanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil {
				slog.Error("resume scan failed", "error", err)
			}
		}
	}
}

func hasHumanReviewInterrupt(interrupts []checkpoint.Interrupt) bool {
	for _, in := range interrupts {
		if in.Node == workflow.NodeHumanReview {
			return true
		}
	}
	return false
}

func decisionFromReviewStatus(status models.PendingReviewStatus) models.HumanDecision {
	switch status {
	case models.ReviewApproved:
		return models.HumanApprove
	case models.ReviewRejected:
		return models.HumanReject
	default:
		return models.HumanMoreInfo
	}
}
