package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/store"
)

// auditList returns the most recent events of the required ?event_type=
// across every investigation, newest first, optionally bounded by ?since=
// (RFC3339); a request without event_type gets 400. This is the flat audit
// trail view of the event log.
func (s *Server) auditList(c *gin.Context) {
	limit := parseLimit(c)
	eventType := models.EventType(c.Query("event_type"))
	if eventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_type is required"})
		return
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = &t
	}

	events, err := store.New(s.dbClient.DB()).GetEventsByType(c.Request.Context(), eventType, since, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// auditForInvestigation returns one investigation's full event history —
// the same data getInvestigationEvents exposes, kept as a separate route
// under /audit so the dashboard's audit views and investigation detail
// views can evolve independently.
func (s *Server) auditForInvestigation(c *gin.Context) {
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

type auditEventTypeCount struct {
	EventType models.EventType `json:"event_type"`
	Count     int64            `json:"count"`
}

// auditStats returns a total event count plus a per-type breakdown.
func (s *Server) auditStats(c *gin.Context) {
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(),
		`SELECT event_type, count(*) FROM events GROUP BY event_type ORDER BY count(*) DESC`)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	var breakdown []auditEventTypeCount
	var total int64
	for rows.Next() {
		var row auditEventTypeCount
		if err := rows.Scan(&row.EventType, &row.Count); err != nil {
			respondError(c, err)
			return
		}
		total += row.Count
		breakdown = append(breakdown, row)
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_event_type": breakdown})
}

// auditEventTypes lists every distinct event type recorded, for populating
// a dashboard filter dropdown.
func (s *Server) auditEventTypes(c *gin.Context) {
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(),
		`SELECT DISTINCT event_type FROM events ORDER BY event_type ASC`)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	var types []models.EventType
	for rows.Next() {
		var t models.EventType
		if err := rows.Scan(&t); err != nil {
			respondError(c, err)
			return
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_types": types})
}
