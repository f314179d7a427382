package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/models"
)

func seedInvestigation(t *testing.T, srv *Server, title string, sev models.Severity) uuid.UUID {
	id := uuid.New()
	emt := emitter.New(srv.dbClient.DB())
	tx, err := srv.dbClient.DB().BeginTx(context.Background(), nil)
	require.NoError(t, err)
	_, err = emt.InvestigationCreated(context.Background(), tx, id, title, sev)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func TestListInvestigations_ReturnsSeededRows(t *testing.T) {
	srv, _ := newTestServer(t)
	seedInvestigation(t, srv, "suspicious login", models.SeverityHigh)
	seedInvestigation(t, srv, "port scan", models.SeverityLow)

	req := httptest.NewRequest(http.MethodGet, "/api/investigations", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Investigations []models.Investigation `json:"investigations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Investigations, 2)
}

func TestListInvestigations_FiltersBySeverity(t *testing.T) {
	srv, _ := newTestServer(t)
	seedInvestigation(t, srv, "suspicious login", models.SeverityHigh)
	seedInvestigation(t, srv, "port scan", models.SeverityLow)

	req := httptest.NewRequest(http.MethodGet, "/api/investigations?severity=high", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Investigations []models.Investigation `json:"investigations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Investigations, 1)
	assert.Equal(t, models.SeverityHigh, body.Investigations[0].MaxSeverity)
}

func TestGetInvestigation_ReturnsNotFoundForUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/investigations/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetInvestigation_ReturnsBadRequestForMalformedID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/investigations/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPauseInvestigation_AppliesLifecycleTransition(t *testing.T) {
	srv, _ := newTestServer(t)
	id := seedInvestigation(t, srv, "suspicious login", models.SeverityMedium)

	req := httptest.NewRequest(http.MethodPost, "/api/investigations/"+id.String()+"/pause", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/investigations/"+id.String(), nil)
	getRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(getRec, getReq)

	var inv models.Investigation
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &inv))
	assert.Equal(t, models.StatusPaused, inv.Status)
}

func TestCancelInvestigation_ReturnsNotFoundForUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/investigations/"+uuid.New().String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetInvestigationEvents_ReturnsSeededHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	id := seedInvestigation(t, srv, "suspicious login", models.SeverityMedium)

	req := httptest.NewRequest(http.MethodGet, "/api/investigations/"+id.String()+"/events", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []models.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, models.EventInvestigationCreated, body.Events[0].EventType)
}
