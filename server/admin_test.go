package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminConfigRoundTrip(t *testing.T) {
	r, _ := newTestRoom(t)
	clock := NewClock(r, 5*time.Millisecond, time.Hour)
	clock.Start()
	defer clock.Stop()
	admin := NewAdminHandlers(r)

	body := `{"afkTimeoutMs":60000,"respawnDelayMs":2500,"safetyRadius":300}`
	rec := httptest.NewRecorder()
	admin.HandleAdminConfig(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	admin.HandleAdminConfig(rec, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cur tuning
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cur))
	assert.Equal(t, int64(60000), *cur.AFKTimeoutMs)
	assert.Equal(t, int64(2500), *cur.RespawnDelayMs)
	assert.Equal(t, 300.0, *cur.SafetyRadius)

	rec = httptest.NewRecorder()
	admin.HandleAdminConfig(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{"afkTimeoutMs":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	admin.HandleAdminConfig(rec, httptest.NewRequest(http.MethodDelete, "/admin/config", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminMetrics(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Tick(t0)
	admin := NewAdminHandlers(r)

	rec := httptest.NewRecorder()
	admin.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1.0, payload["tick"])
	metrics := payload["metrics"].(map[string]any)
	assert.Equal(t, 1.0, metrics["tick_count"])
}
