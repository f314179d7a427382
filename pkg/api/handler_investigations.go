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
	"github.com/gbrigandi/soctalk/pkg/store"
)

const defaultListLimit = 50

func parseLimit(c *gin.Context) int {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

func parseOffset(c *gin.Context) int {
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// listInvestigations returns investigations ordered by most recently
// updated, optionally filtered by ?status=, ?phase=, ?severity=, ?verdict=
// and ?has_case= (true/false).
func (s *Server) listInvestigations(c *gin.Context) {
	limit, offset := parseLimit(c), parseOffset(c)

	query := `SELECT id, title, status, phase, alert_count, observable_count, malicious_count,
	          suspicious_count, clean_count, time_to_triage_seconds, time_to_verdict_seconds,
	          closed_at, verdict_decision, verdict_confidence, verdict_reasoning, max_severity,
	          thehive_case_id, tags, created_at, updated_at
	          FROM investigations WHERE 1=1`
	var args []any
	if status := c.Query("status"); status != "" {
		args = append(args, status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if phase := c.Query("phase"); phase != "" {
		args = append(args, phase)
		query += " AND phase = $" + strconv.Itoa(len(args))
	}
	if severity := c.Query("severity"); severity != "" {
		args = append(args, severity)
		query += " AND max_severity = $" + strconv.Itoa(len(args))
	}
	if verdict := c.Query("verdict"); verdict != "" {
		args = append(args, verdict)
		query += " AND verdict_decision = $" + strconv.Itoa(len(args))
	}
	if hasCase := c.Query("has_case"); hasCase != "" {
		if hasCase == "true" {
			query += " AND thehive_case_id IS NOT NULL"
		} else if hasCase == "false" {
			query += " AND thehive_case_id IS NULL"
		}
	}
	args = append(args, limit, offset)
	query += " ORDER BY updated_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(), query, args...)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	investigations, err := scanInvestigations(rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investigations": investigations, "limit": limit, "offset": offset})
}

// getInvestigation returns one investigation by id.
func (s *Server) getInvestigation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid investigation id"})
		return
	}

	row := s.dbClient.DB().QueryRowContext(c.Request.Context(), `
		SELECT id, title, status, phase, alert_count, observable_count, malicious_count,
		       suspicious_count, clean_count, time_to_triage_seconds, time_to_verdict_seconds,
		       closed_at, verdict_decision, verdict_confidence, verdict_reasoning, max_severity,
		       thehive_case_id, tags, created_at, updated_at
		FROM investigations WHERE id = $1`, id)

	inv, err := scanInvestigation(row)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(c, errNotFound)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// getInvestigationEvents returns the full, version-ordered event history for
// an investigation — the audit trail behind any read-model row.
func (s *Server) getInvestigationEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid investigation id"})
		return
	}
	events, err := store.New(s.dbClient.DB()).GetEvents(c.Request.Context(), id, nil, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// pauseInvestigation suspends polling/workflow progress for an
// investigation without closing it.
func (s *Server) pauseInvestigation(c *gin.Context) {
	s.applyLifecycleTransition(c, func(ctx *gin.Context, id uuid.UUID, version int) error {
		_, err := s.emitter.InvestigationPaused(ctx.Request.Context(), s.dbClient.DB(), id, version)
		return err
	})
}

// resumeInvestigationLifecycle lifts a previously applied pause.
func (s *Server) resumeInvestigationLifecycle(c *gin.Context) {
	s.applyLifecycleTransition(c, func(ctx *gin.Context, id uuid.UUID, version int) error {
		_, err := s.emitter.InvestigationResumed(ctx.Request.Context(), s.dbClient.DB(), id, version)
		return err
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// cancelInvestigation terminates an investigation outright, independent of
// any AI verdict or human review in flight.
func (s *Server) cancelInvestigation(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	s.applyLifecycleTransition(c, func(ctx *gin.Context, id uuid.UUID, version int) error {
		_, err := s.emitter.InvestigationCancelled(ctx.Request.Context(), s.dbClient.DB(), id, req.Reason, version)
		return err
	})
}

func (s *Server) applyLifecycleTransition(c *gin.Context, apply func(c *gin.Context, id uuid.UUID, version int) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid investigation id"})
		return
	}
	version, err := store.New(s.dbClient.DB()).GetLatestVersion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if version == 0 {
		respondError(c, errNotFound)
		return
	}
	if err := apply(c, id, version); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func scanInvestigations(rows *sql.Rows) ([]models.Investigation, error) {
	var out []models.Investigation
	for rows.Next() {
		inv, err := scanInvestigationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvestigation(row rowScanner) (*models.Investigation, error) {
	return scanInvestigationRow(row)
}

func scanInvestigationRow(row rowScanner) (*models.Investigation, error) {
	var inv models.Investigation
	var tagsJSON []byte
	if err := row.Scan(
		&inv.ID, &inv.Title, &inv.Status, &inv.Phase, &inv.AlertCount, &inv.ObservableCount,
		&inv.MaliciousCount, &inv.SuspiciousCount, &inv.CleanCount, &inv.TimeToTriageSeconds,
		&inv.TimeToVerdictSeconds, &inv.ClosedAt, &inv.VerdictDecision, &inv.VerdictConfidence,
		&inv.VerdictReasoning, &inv.MaxSeverity, &inv.TheHiveCaseID, &tagsJSON, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &inv.Tags); err != nil {
			return nil, err
		}
	}
	return &inv, nil
}
