package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbrigandi/soctalk/pkg/settings"
)

func TestGetSettings_ReturnsCompiledInDefaults(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got settings.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, settings.Defaults(), got)
}

func TestExportSettings_ReturnsYAML(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/settings/export", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hil_backend: dashboard")
}

func TestPutSettings_UpdatesAndReturnsResolvedSettings(t *testing.T) {
	srv, _ := newTestServer(t)

	payload, err := json.Marshal(putSettingsRequest{Key: settings.KeyHILBackend, Value: "slack"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got settings.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "slack", got.HILBackend)
}

func TestPutSettings_RejectsUnknownKey(t *testing.T) {
	srv, _ := newTestServer(t)

	payload, err := json.Marshal(putSettingsRequest{Key: "not_a_real_key", Value: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetSettings_RestoresDefaults(t *testing.T) {
	srv, _ := newTestServer(t)

	payload, err := json.Marshal(putSettingsRequest{Key: settings.KeyBatchSize, Value: 5})
	require.NoError(t, err)
	putReq := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	putReq.Header.Set("Content-Type", "application/json")
	putRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	resetReq := httptest.NewRequest(http.MethodPost, "/api/settings/reset", nil)
	resetRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(resetRec, resetReq)

	require.Equal(t, http.StatusOK, resetRec.Code)
	var got settings.Settings
	require.NoError(t, json.Unmarshal(resetRec.Body.Bytes(), &got))
	assert.Equal(t, settings.Defaults(), got)
}
