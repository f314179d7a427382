package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertHourlyBucket(t *testing.T, srv *Server, hoursAgo, investigationsCreated int) {
	_, err := srv.dbClient.DB().ExecContext(context.Background(), `
		INSERT INTO metrics_hourly (bucket_hour, investigations_created, investigations_closed, escalations,
			auto_closed, total_alerts, total_observables, malicious_observables, avg_time_to_verdict, verdict_sample_count)
		VALUES (date_trunc('hour', now()) - ($1 || ' hours')::interval, $2, 1, 0, 1, 3, 5, 1, 120.0, 1)`,
		hoursAgo, investigationsCreated)
	require.NoError(t, err)
}

func TestMetricsOverview_SumsHourlyBuckets(t *testing.T) {
	srv, _ := newTestServer(t)
	insertHourlyBucket(t, srv, 0, 2)
	insertHourlyBucket(t, srv, 1, 3)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics/overview", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		InvestigationsCreated int `json:"investigations_created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.InvestigationsCreated)
}

func TestMetricsHourly_ReturnsBucketsWithinWindow(t *testing.T) {
	srv, _ := newTestServer(t)
	insertHourlyBucket(t, srv, 0, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics/hourly?hours=6", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Buckets []hourlyMetrics `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Buckets, 1)
}

func TestStatsIOCs_OrdersByMaliciousCount(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	_, err := srv.dbClient.DB().ExecContext(ctx, `
		INSERT INTO ioc_stats (value, type, times_seen, malicious_count, benign_count, threat_actors, first_seen, last_seen)
		VALUES ('1.2.3.4', 'ip', 5, 4, 1, '["APT28"]', now(), now())`)
	require.NoError(t, err)
	_, err = srv.dbClient.DB().ExecContext(ctx, `
		INSERT INTO ioc_stats (value, type, times_seen, malicious_count, benign_count, threat_actors, first_seen, last_seen)
		VALUES ('example.com', 'domain', 2, 0, 2, '[]', now(), now())`)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/stats/iocs", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		IOCs []iocStat `json:"iocs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.IOCs, 2)
	assert.Equal(t, "1.2.3.4", body.IOCs[0].Value)
	assert.Equal(t, []string{"APT28"}, body.IOCs[0].ThreatActors)
}

func TestStatsRules_OrdersByTimesTriggered(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	_, err := srv.dbClient.DB().ExecContext(ctx,
		`INSERT INTO rule_stats (rule_id, times_triggered, last_triggered) VALUES ('rule-1', 10, now())`)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/stats/rules", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rules []ruleStat `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rules, 1)
	assert.Equal(t, "rule-1", body.Rules[0].RuleID)
}

func TestStatsAnalyzers_ReturnsInvocationCounts(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	_, err := srv.dbClient.DB().ExecContext(ctx,
		`INSERT INTO analyzer_stats (analyzer, invocations, successes, failures, avg_response_time_ms)
		 VALUES ('virustotal', 4, 4, 0, 250.5)`)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/stats/analyzers", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Analyzers []analyzerStat `json:"analyzers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Analyzers, 1)
	assert.Equal(t, "virustotal", body.Analyzers[0].Analyzer)
}
