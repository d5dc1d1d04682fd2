package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/metrics"
	"github.com/talgya/nephron-sim/internal/persistence"
)

const testKey = "secret"

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &Server{
		DB:       db,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Base:     engine.DefaultConfig(),
		AdminKey: testKey,
		MaxDays:  60,
	}
	h := s.Handler()
	t.Cleanup(func() { s.limiter.Close() })
	return s, h
}

func do(h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createRun(t *testing.T, h http.Handler, body string) runResponse {
	t.Helper()
	w := do(h, "POST", "/api/v1/runs", body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp runResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	w := do(h, "GET", "/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var status map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "nephron-sim", status["name"])
	assert.Equal(t, 0.0, status["runs"])
	assert.Equal(t, true, status["admin_auth"])
}

func TestScenariosEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	w := do(h, "GET", "/api/v1/scenarios", "", false)
	require.Equal(t, http.StatusOK, w.Code)

	var list []scenarioView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 5)
	assert.Equal(t, "healthy", list[0].Name)
	assert.Equal(t, 140.0, list[0].Plasma["sodium"])
}

func TestCreateRunRequiresAuth(t *testing.T) {
	_, h := newTestServer(t)

	w := do(h, "POST", "/api/v1/runs", `{"scenario":"healthy"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "unauthorized", body["error"])
}

func TestCreateRunDisabledWithoutKey(t *testing.T) {
	s, h := newTestServer(t)
	s.AdminKey = ""

	w := do(h, "POST", "/api/v1/runs", `{"scenario":"healthy"}`, true)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateAndFetchRun(t *testing.T) {
	_, h := newTestServer(t)

	resp := createRun(t, h, `{"scenario":"hyperkalemia_acidosis","days":5}`)
	assert.Equal(t, "hyperkalemia_acidosis", resp.Run.Scenario)
	assert.Equal(t, 5, resp.Run.Days)
	require.Len(t, resp.History, 6)
	assert.Equal(t, 5.5, resp.History[0].Potassium)
	assert.Less(t, resp.Run.Potassium, 5.5)

	w := do(h, "GET", "/api/v1/runs/"+resp.Run.ID, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var got runResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, resp.Run.ID, got.Run.ID)
	assert.Equal(t, 5, got.Config.Days)
	assert.Empty(t, got.History)

	w = do(h, "GET", "/api/v1/runs/"+resp.Run.ID+"/history", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var hist []engine.DayRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&hist))
	assert.Equal(t, resp.History, hist)

	w = do(h, "GET", "/api/v1/runs", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []persistence.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, resp.Run.ID, runs[0].ID)
}

func TestCreateRunPlasmaOverride(t *testing.T) {
	_, h := newTestServer(t)

	resp := createRun(t, h, `{"scenario":"healthy","days":2,"plasma":{"Na":150}}`)
	assert.Equal(t, 150.0, resp.History[0].Sodium)
	assert.Equal(t, 4.25, resp.History[0].Potassium)
}

func TestCreateRunBadRequests(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"scenario":`},
		{"unknown scenario", `{"scenario":"nope"}`},
		{"zero days", `{"scenario":"healthy","days":0}`},
		{"too many days", `{"scenario":"healthy","days":61}`},
		{"unknown species", `{"scenario":"healthy","plasma":{"Mg":1}}`},
		{"negative concentration", `{"scenario":"healthy","days":1,"plasma":{"K":-1}}`},
		{"huge variability", `{"scenario":"healthy","variability":{"amplitude":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/v1/runs", tt.body, true)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestRunNotFound(t *testing.T) {
	_, h := newTestServer(t)

	for _, path := range []string{
		"/api/v1/runs/missing",
		"/api/v1/runs/missing/history",
		"/api/v1/runs/missing/plot.png",
		"/api/v1/runs/missing/history.csv",
	} {
		w := do(h, "GET", path, "", false)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestPlotAndCSV(t *testing.T) {
	_, h := newTestServer(t)
	resp := createRun(t, h, `{"scenario":"hyponatremia","days":3}`)

	w := do(h, "GET", "/api/v1/runs/"+resp.Run.ID+"/plot.png", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	w = do(h, "GET", "/api/v1/runs/"+resp.Run.ID+"/history.csv", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 5)
}

func TestDeleteRun(t *testing.T) {
	_, h := newTestServer(t)
	resp := createRun(t, h, `{"scenario":"healthy","days":1}`)

	w := do(h, "DELETE", "/api/v1/runs/"+resp.Run.ID, "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, "DELETE", "/api/v1/runs/"+resp.Run.ID, "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(h, "DELETE", "/api/v1/runs/"+resp.Run.ID, "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRunsLimit(t *testing.T) {
	_, h := newTestServer(t)

	w := do(h, "GET", "/api/v1/runs?limit=abc", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, "GET", "/api/v1/runs?limit=5", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestCreateRunRateLimited(t *testing.T) {
	s, _ := newTestServer(t)
	s.limiter.Close()
	s.limiter = nil
	s.RateLimit = 1
	s.RateWindow = time.Hour
	h := s.Handler()

	w := do(h, "POST", "/api/v1/runs", `{"scenario":"healthy","days":1}`, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(h, "POST", "/api/v1/runs", `{"scenario":"healthy","days":1}`, true)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	createRun(t, h, `{"scenario":"healthy","days":2}`)

	w := do(h, "GET", "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `nephron_runs_total{scenario="healthy"} 1`)
	assert.Contains(t, w.Body.String(), "nephron_days_simulated_total 2")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	s.CORSOrigins = []string{"https://example.org"}
	h := s.Handler()

	req := httptest.NewRequest("OPTIONS", "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://example.org", w.Header().Get("Access-Control-Allow-Origin"))
}
