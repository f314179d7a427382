package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type hourlyMetrics struct {
	BucketHour            time.Time `json:"bucket_hour"`
	InvestigationsCreated int       `json:"investigations_created"`
	InvestigationsClosed  int       `json:"investigations_closed"`
	Escalations           int       `json:"escalations"`
	AutoClosed            int       `json:"auto_closed"`
	TotalAlerts           int       `json:"total_alerts"`
	TotalObservables      int       `json:"total_observables"`
	MaliciousObservables  int       `json:"malicious_observables"`
	AvgTimeToVerdict      float64   `json:"avg_time_to_verdict"`
	VerdictSampleCount    int       `json:"verdict_sample_count"`
}

const hourlyColumns = `bucket_hour, investigations_created, investigations_closed, escalations,
	auto_closed, total_alerts, total_observables, malicious_observables, avg_time_to_verdict, verdict_sample_count`

func scanHourly(row rowScanner) (*hourlyMetrics, error) {
	var m hourlyMetrics
	if err := row.Scan(
		&m.BucketHour, &m.InvestigationsCreated, &m.InvestigationsClosed, &m.Escalations,
		&m.AutoClosed, &m.TotalAlerts, &m.TotalObservables, &m.MaliciousObservables,
		&m.AvgTimeToVerdict, &m.VerdictSampleCount,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// metricsOverview sums every hourly bucket into a single all-time rollup.
func (s *Server) metricsOverview(c *gin.Context) {
	row := s.dbClient.DB().QueryRowContext(c.Request.Context(), `
		SELECT coalesce(sum(investigations_created), 0), coalesce(sum(investigations_closed), 0),
		       coalesce(sum(escalations), 0), coalesce(sum(auto_closed), 0), coalesce(sum(total_alerts), 0),
		       coalesce(sum(total_observables), 0), coalesce(sum(malicious_observables), 0),
		       coalesce(sum(avg_time_to_verdict * verdict_sample_count) / nullif(sum(verdict_sample_count), 0), 0),
		       coalesce(sum(verdict_sample_count), 0)
		FROM metrics_hourly`)

	var created, closed, escalations, autoClosed, alerts, observables, malicious, sampleCount int
	var avgVerdict float64
	if err := row.Scan(&created, &closed, &escalations, &autoClosed, &alerts, &observables, &malicious, &avgVerdict, &sampleCount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"investigations_created": created,
		"investigations_closed":  closed,
		"escalations":            escalations,
		"auto_closed":            autoClosed,
		"total_alerts":           alerts,
		"total_observables":      observables,
		"malicious_observables":  malicious,
		"avg_time_to_verdict":    avgVerdict,
		"verdict_sample_count":   sampleCount,
	})
}

// metricsHourly returns the raw hourly buckets, most recent first, bounded
// by ?hours= (default 24).
func (s *Server) metricsHourly(c *gin.Context) {
	hours := 24
	if v := c.Query("hours"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			hours = n
		}
	}

	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(),
		`SELECT `+hourlyColumns+` FROM metrics_hourly
		 WHERE bucket_hour >= now() - ($1 || ' hours')::interval
		 ORDER BY bucket_hour DESC`, hours)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	var out []hourlyMetrics
	for rows.Next() {
		m, err := scanHourly(rows)
		if err != nil {
			respondError(c, err)
			return
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": out})
}

type iocStat struct {
	Value          string    `json:"value"`
	Type           string    `json:"type"`
	TimesSeen      int       `json:"times_seen"`
	MaliciousCount int       `json:"malicious_count"`
	BenignCount    int       `json:"benign_count"`
	ThreatActors   []string  `json:"threat_actors"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// statsIOCs returns the most frequently seen observables, worst first.
func (s *Server) statsIOCs(c *gin.Context) {
	limit := parseLimit(c)
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(), `
		SELECT value, type, times_seen, malicious_count, benign_count, threat_actors, first_seen, last_seen
		FROM ioc_stats ORDER BY malicious_count DESC, times_seen DESC LIMIT $1`, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	var out []iocStat
	for rows.Next() {
		var stat iocStat
		var threatActorsJSON []byte
		if err := rows.Scan(&stat.Value, &stat.Type, &stat.TimesSeen, &stat.MaliciousCount,
			&stat.BenignCount, &threatActorsJSON, &stat.FirstSeen, &stat.LastSeen); err != nil {
			respondError(c, err)
			return
		}
		if len(threatActorsJSON) > 0 {
			if err := unmarshalJSON(threatActorsJSON, &stat.ThreatActors); err != nil {
				respondError(c, err)
				return
			}
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"iocs": out})
}

type ruleStat struct {
	RuleID         string     `json:"rule_id"`
	TimesTriggered int        `json:"times_triggered"`
	LastTriggered  *time.Time `json:"last_triggered,omitempty"`
}

// statsRules returns detection-rule trigger counts, most frequent first.
func (s *Server) statsRules(c *gin.Context) {
	limit := parseLimit(c)
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(),
		`SELECT rule_id, times_triggered, last_triggered FROM rule_stats
		 ORDER BY times_triggered DESC LIMIT $1`, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	var out []ruleStat
	for rows.Next() {
		var stat ruleStat
		if err := rows.Scan(&stat.RuleID, &stat.TimesTriggered, &stat.LastTriggered); err != nil {
			respondError(c, err)
			return
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

type analyzerStat struct {
	Analyzer          string  `json:"analyzer"`
	Invocations       int     `json:"invocations"`
	Successes         int     `json:"successes"`
	Failures          int     `json:"failures"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// statsAnalyzers returns per-analyzer invocation counts and latency.
func (s *Server) statsAnalyzers(c *gin.Context) {
	rows, err := s.dbClient.DB().QueryContext(c.Request.Context(),
		`SELECT analyzer, invocations, successes, failures, avg_response_time_ms
		 FROM analyzer_stats ORDER BY invocations DESC`)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rows.Close()

	var out []analyzerStat
	for rows.Next() {
		var stat analyzerStat
		if err := rows.Scan(&stat.Analyzer, &stat.Invocations, &stat.Successes, &stat.Failures, &stat.AvgResponseTimeMs); err != nil {
			respondError(c, err)
			return
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyzers": out})
}
