package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// listPendingReviews returns reviews awaiting a human decision, oldest
// first so the dashboard naturally queues the longest-waiting alert.
// ?include_expired=true also returns reviews whose status has moved to
// expired; ?severity= filters by the owning investigation's max severity.
func (s *Server) listPendingReviews(c *gin.Context) {
	limit := parseLimit(c)

	query := `SELECT r.id, r.investigation_id, r.status, r.ai_decision, r.ai_confidence, r.ai_assessment,
	          r.ai_recommendation, r.findings, r.enrichments, r.misp_context, r.created_at, r.expires_at,
	          r.responded_at, r.reviewer, r.feedback, r.workflow_resumed_at
	          FROM pending_reviews r JOIN investigations i ON i.id = r.investigation_id
	          WHERE r.status = $1`
	args := []any{models.ReviewPending}
	if c.Query("include_expired") == "true" {
		query = `SELECT r.id, r.investigation_id, r.status, r.ai_decision, r.ai_confidence, r.ai_assessment,
		         r.ai_recommendation, r.findings, r.enrichments, r.misp_context, r.created_at, r.expires_at,
		         r.responded_at, r.reviewer, r.feedback, r.workflow_resumed_at
		         FROM pending_reviews r JOIN investigations i ON i.id = r.investigation_id
		         WHERE r.status IN ($1, $2)`
		args = []any{models.ReviewPending, models.ReviewExpired}
	}
	if severity := c.Query("severity"); severity != "" {
		args = append(args, severity)
		query += " AND i.max_severity = $" + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += " ORDER BY r.created_at ASC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(), query, args...)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	reviews, err := scanPendingReviews(rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// getPendingReview returns one review row by its own id.
func (s *Server) getPendingReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}
	row := s.dbClient.DB().QueryRowContext(c.Request.Context(), `
		SELECT id, investigation_id, status, ai_decision, ai_confidence, ai_assessment,
		       ai_recommendation, findings, enrichments, misp_context, created_at, expires_at,
		       responded_at, reviewer, feedback, workflow_resumed_at
		FROM pending_reviews WHERE id = $1`, id)

	review, err := scanPendingReviewRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(c, errNotFound)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

type reviewDecisionRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
	Feedback string `json:"feedback"`
}

// approveReview, rejectReview and requestInfoReview each resolve a pending
// review through Resolver.ResolveDashboard, which persists
// HUMAN_DECISION_RECEIVED under a row lock; the background ResumeScanner
// drives the suspended workflow forward from the decision asynchronously,
// so these handlers never touch the workflow engine directly.
func (s *Server) approveReview(c *gin.Context) {
	s.resolveReview(c, models.HumanApprove)
}

func (s *Server) rejectReview(c *gin.Context) {
	s.resolveReview(c, models.HumanReject)
}

func (s *Server) requestInfoReview(c *gin.Context) {
	s.resolveReview(c, models.HumanMoreInfo)
}

func (s *Server) resolveReview(c *gin.Context, decision models.HumanDecision) {
	investigationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid investigation id"})
		return
	}
	var req reviewDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reviewer is required"})
		return
	}

	res := models.Resolution{Decision: decision, Reviewer: req.Reviewer, Feedback: req.Feedback}
	ev, err := s.hilResolver.ResolveDashboard(c.Request.Context(), investigationID, res)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func scanPendingReviews(rows *sql.Rows) ([]models.PendingReview, error) {
	var out []models.PendingReview
	for rows.Next() {
		rv, err := scanPendingReviewRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rv)
	}
	return out, rows.Err()
}

func scanPendingReviewRow(row rowScanner) (*models.PendingReview, error) {
	var rv models.PendingReview
	var findingsJSON, enrichmentsJSON, mispJSON []byte
	var reviewer, feedback sql.NullString
	if err := row.Scan(
		&rv.ID, &rv.InvestigationID, &rv.Status, &rv.AIDecision, &rv.AIConfidence, &rv.AIAssessment,
		&rv.AIRecommendation, &findingsJSON, &enrichmentsJSON, &mispJSON, &rv.CreatedAt, &rv.ExpiresAt,
		&rv.RespondedAt, &reviewer, &feedback, &rv.WorkflowResumedAt,
	); err != nil {
		return nil, err
	}
	rv.Reviewer = reviewer.String
	rv.Feedback = feedback.String
	if len(findingsJSON) > 0 {
		if err := json.Unmarshal(findingsJSON, &rv.Findings); err != nil {
			return nil, err
		}
	}
	if len(enrichmentsJSON) > 0 {
		if err := json.Unmarshal(enrichmentsJSON, &rv.Enrichments); err != nil {
			return nil, err
		}
	}
	if len(mispJSON) > 0 {
		if err := json.Unmarshal(mispJSON, &rv.MISPContext); err != nil {
			return nil, err
		}
	}
	return &rv, nil
}
