package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// analyticsSummary gives a single top-level snapshot: how many
// investigations exist in each status, plus overall volume.
func (s *Server) analyticsSummary(c *gin.Context) {
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(),
		`SELECT status, count(*) FROM investigations GROUP BY status`)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	byStatus := map[string]int64{}
	var total int64
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			respondError(c, err)
			return
		}
		byStatus[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_investigations": total, "by_status": byStatus})
}

// analyticsKPIs derives the operational headline numbers: auto-close rate,
// escalation rate, and average time-to-triage/time-to-verdict across every
// investigation that has the value recorded.
func (s *Server) analyticsKPIs(c *gin.Context) {
	row := s.dbClient.DB().QueryRowContext(c.Request.Context(), `
		SELECT
			count(*) FILTER (WHERE status = 'auto_closed'),
			count(*) FILTER (WHERE status = 'escalated'),
			count(*) FILTER (WHERE closed_at IS NOT NULL),
			coalesce(avg(time_to_triage_seconds) FILTER (WHERE time_to_triage_seconds IS NOT NULL), 0),
			coalesce(avg(time_to_verdict_seconds) FILTER (WHERE time_to_verdict_seconds IS NOT NULL), 0)
		FROM investigations`)

	var autoClosed, escalated, resolved int64
	var avgTriage, avgVerdict float64
	if err := row.Scan(&autoClosed, &escalated, &resolved, &avgTriage, &avgVerdict); err != nil {
		respondError(c, err)
		return
	}

	var autoCloseRate, escalationRate float64
	if resolved > 0 {
		autoCloseRate = float64(autoClosed) / float64(resolved)
		escalationRate = float64(escalated) / float64(resolved)
	}

	c.JSON(http.StatusOK, gin.H{
		"resolved_count":              resolved,
		"auto_close_rate":             autoCloseRate,
		"escalation_rate":             escalationRate,
		"avg_time_to_triage_seconds":  avgTriage,
		"avg_time_to_verdict_seconds": avgVerdict,
	})
}

// analyticsAIBehavior summarises the AI verdict distribution and its
// average confidence, independent of what a human later decided.
func (s *Server) analyticsAIBehavior(c *gin.Context) {
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(), `
		SELECT verdict_decision, count(*), avg(verdict_confidence)
		FROM investigations WHERE verdict_decision IS NOT NULL
		GROUP BY verdict_decision`)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	type decisionBreakdown struct {
		Decision      string  `json:"decision"`
		Count         int64   `json:"count"`
		AvgConfidence float64 `json:"avg_confidence"`
	}
	var breakdown []decisionBreakdown
	for rows.Next() {
		var d decisionBreakdown
		if err := rows.Scan(&d.Decision, &d.Count, &d.AvgConfidence); err != nil {
			respondError(c, err)
			return
		}
		breakdown = append(breakdown, d)
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verdicts": breakdown})
}

// analyticsHumanReview summarises how reviews were resolved once a human
// looked at them: counts by outcome and the average time a review sat
// pending before it was answered.
func (s *Server) analyticsHumanReview(c *gin.Context) {
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(),
		`SELECT status, count(*) FROM pending_reviews GROUP BY status`)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	byStatus := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			respondError(c, err)
			return
		}
		byStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}

	var avgWaitSeconds float64
	if err := s.dbClient.DB().QueryRowContext(c.Request.Context(), `
		SELECT coalesce(avg(extract(epoch FROM responded_at - created_at)), 0)
		FROM pending_reviews WHERE responded_at IS NOT NULL`,
	).Scan(&avgWaitSeconds); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"by_status": byStatus, "avg_response_time_seconds": avgWaitSeconds})
}

// analyticsOutcomes breaks down terminal investigation status — how
// investigations actually ended up, regardless of how they got there.
func (s *Server) analyticsOutcomes(c *gin.Context) {
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(), `
		SELECT status, count(*) FROM investigations
		WHERE status IN ('closed', 'auto_closed', 'escalated', 'rejected', 'cancelled')
		GROUP BY status`)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	outcomes := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			respondError(c, err)
			return
		}
		outcomes[status] = count
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}
