package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/lac1"
	"github.com/smac-tools/stagebench/internal/serialmux"
)

func newTestServer(t *testing.T) (*Server, *lac1.Controller, *db.DB) {
	t.Helper()

	port := serialmux.NewScriptedPort(lac1.SimulatorResponder())
	ctrl := lac1.NewController(lac1.NewSession(port), nil)

	database, err := db.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return NewServer(ctrl, database), ctrl, database
}

func postForm(t *testing.T, mux *http.ServeMux, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStatusHandler(t *testing.T) {
	server, ctrl, _ := newTestServer(t)
	mux := server.ServeMux()

	require.NoError(t, ctrl.MoveAbsoluteMM(context.Background(), 2, false))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Stage      string  `json:"stage"`
		TravelMM   float64 `json:"travel_mm"`
		PositionMM float64 `json:"position_mm"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "LCS25-025", status.Stage)
	assert.Equal(t, 25.0, status.TravelMM)
	assert.InDelta(t, 2.0, status.PositionMM, 1e-9)
}

func TestStatusHandlerMethodNotAllowed(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := postForm(t, server.ServeMux(), "/api/status", url.Values{})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSendCommandHandler(t *testing.T) {
	server, _, database := newTestServer(t)
	mux := server.ServeMux()

	rec := postForm(t, mux, "/api/command", url.Values{"command": {"TP"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Command  string   `json:"command"`
		Response []string `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TP", resp.Command)
	assert.Equal(t, []string{"0"}, resp.Response)

	// the command/response pair lands in the log
	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM command_log`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSendCommandHandlerRejectsDisallowed(t *testing.T) {
	server, _, _ := newTestServer(t)
	mux := server.ServeMux()

	rec := postForm(t, mux, "/api/command", url.Values{"command": {"RM"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postForm(t, mux, "/api/command", url.Values{"command": {"X"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(t, mux, "/api/command", url.Values{"command": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMoveHandler(t *testing.T) {
	server, ctrl, _ := newTestServer(t)
	mux := server.ServeMux()

	rec := postForm(t, mux, "/api/move", url.Values{"position_mm": {"2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Moved to 2.000 mm")

	pos, err := ctrl.PositionMM(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, pos, 1e-9)
}

func TestMoveHandlerOutOfRange(t *testing.T) {
	server, _, _ := newTestServer(t)
	mux := server.ServeMux()

	rec := postForm(t, mux, "/api/move", url.Values{"position_mm": {"26"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "outside stage travel")
}

func TestMoveHandlerInvalidPosition(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := postForm(t, server.ServeMux(), "/api/move", url.Values{"position_mm": {"far"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHomeHandler(t *testing.T) {
	server, ctrl, _ := newTestServer(t)
	mux := server.ServeMux()

	require.NoError(t, ctrl.MoveAbsoluteMM(context.Background(), 5, false))

	rec := postForm(t, mux, "/api/home", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)

	pos, err := ctrl.PositionMM(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pos)
}

func TestListRunsHandler(t *testing.T) {
	server, _, database := newTestServer(t)
	mux := server.ServeMux()

	require.NoError(t, database.RecordRun(db.BenchRun{
		RunID:       "r1",
		Stage:       "LCS25-025",
		VelocityMMS: 1000,
		AvgSpeedMMS: 320,
		StartedAt:   time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var runs []db.BenchRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID)
}

func TestRunsChartHandler(t *testing.T) {
	server, _, database := newTestServer(t)
	mux := server.ServeMux()

	require.NoError(t, database.RecordRun(db.BenchRun{
		RunID:            "r1",
		Stage:            "LCS25-025",
		VelocityMMS:      1000,
		AccelerationMMSS: 30000,
		AvgSpeedMMS:      320,
		StartedAt:        time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/chart", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Stage travel speed")
}

func TestRunsHandlersWithoutDB(t *testing.T) {
	port := serialmux.NewScriptedPort(lac1.SimulatorResponder())
	ctrl := lac1.NewController(lac1.NewSession(port), nil)
	mux := NewServer(ctrl, nil).ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/chart", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/fastest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// commands still work without a log database
	rec = postForm(t, mux, "/api/command", url.Values{"command": {"TE"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootHandler(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stagebench")
}

func TestMoveAndHomeRecordedToCommandLog(t *testing.T) {
	server, _, database := newTestServer(t)
	mux := server.ServeMux()

	rec := postForm(t, mux, "/api/move", url.Values{"position_mm": {"2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postForm(t, mux, "/api/home", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)

	// the move is two transactions (motion start, settle wait), homing one
	var commands []string
	rows, err := database.Query(`SELECT command FROM command_log ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		commands = append(commands, c)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"PM,MN,MA2000,GO", "WS10", "MS100"}, commands)

	// a rejected move never reaches the wire, so nothing new is logged
	rec = postForm(t, mux, "/api/move", url.Values{"position_mm": {"26"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM command_log`).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestFastestRunHandler(t *testing.T) {
	server, _, database := newTestServer(t)
	mux := server.ServeMux()

	// no completed runs yet
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/fastest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	runs := []db.BenchRun{
		{RunID: "slow", Stage: "LCS25-025", AvgSpeedMMS: 100},
		{RunID: "fast", Stage: "LCS25-025", AvgSpeedMMS: 320},
		{RunID: "aborted", Stage: "LCS25-025", AvgSpeedMMS: 999, Aborted: true},
	}
	for _, run := range runs {
		run.StartedAt = time.Now().UTC()
		require.NoError(t, database.RecordRun(run))
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/fastest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var best db.BenchRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &best))
	assert.Equal(t, "fast", best.RunID)
}
