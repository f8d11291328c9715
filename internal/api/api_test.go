package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"automation-service/internal/actuator"
	"automation-service/internal/config"
	"automation-service/internal/dispatch"
	"automation-service/internal/ledger"
	"automation-service/internal/logging"
	"automation-service/internal/models"
	"automation-service/internal/notify"
	"automation-service/internal/runmode"
	"automation-service/internal/taskstore"
	"automation-service/internal/topology"
	"automation-service/internal/ws"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewNop()

	topo := topology.NewRegistry(nil, nil)
	topo.Seed(
		[]models.Host{{SystemID: "sys", HostNo: 1}},
		[]models.Node{{SystemID: "sys", HostNo: 1, NodeNo: 1, Activation: models.NodeActive, Wake: models.NodeAwake}},
		[]models.Substation{
			{SystemID: "sys", StationID: "st-1", HostNo: 1, NodeNo: 1, PortNo: 1, AreaID: "area-1"},
			{SystemID: "sys", StationID: "st-2", HostNo: 1, NodeNo: 1, PortNo: 2, AreaID: "area-1"},
		},
	)
	led := ledger.New(ledger.NewMemory())
	tasks := taskstore.New(topo, led, nil)
	modes := runmode.New(tasks, nil)
	act := actuator.Func(func(context.Context, models.ActuationRequest) error { return nil })
	coord := dispatch.New(tasks, modes, topo, led, act, nil, nil, logger, dispatch.Config{})
	hub := ws.NewHub(logger)
	notifier := notify.NewTelegram("", nil, 1, logger)

	h := NewHandler(tasks, modes, topo, led, coord, hub, notifier, nil, logger)
	var cfg config.Config
	cfg.API.BasePath = "/api/v0"
	return NewRouter(h, cfg)
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, envelope
}

func timingBody(taskID string, stations ...string) map[string]any {
	refs := make([]map[string]string, 0, len(stations))
	for _, s := range stations {
		refs = append(refs, map[string]string{"stationID": s})
	}
	return map[string]any{
		"taskID":     taskID,
		"systemID":   "sys",
		"taskName":   "evening lights",
		"taskType":   "TIMING",
		"action":     "TURN_ON",
		"actTime":    36000000,
		"setupDay":   "2024-01-02",
		"repeatMode": "EVEN_DAY",
		"begin":      []map[string]int{{"beginTime": 36000000}},
		"station":    refs,
		"areaID":     "area-1",
	}
}

func TestAddTaskEnvelope(t *testing.T) {
	r := newTestRouter(t)
	code, env := do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t1", "st-1"))
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, env)
	}
	if env["what"] != "ADD_SYSTASK" || env["code"] != "0" {
		t.Fatalf("bad envelope %v", env)
	}
	if env["taskID"] != "t1" {
		t.Fatalf("taskID = %v", env["taskID"])
	}
}

func TestAddTaskDanglingTargetRejected(t *testing.T) {
	r := newTestRouter(t)
	code, env := do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t1", "st-1", "st-ghost"))
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if env["code"] != "3" || env["errNo"] != models.ErrNoNotFound {
		t.Fatalf("bad failure envelope %v", env)
	}

	// Nothing was persisted: the single valid target did not slip through.
	code, env = do(t, r, http.MethodGet, "/api/v0/tasks/sys/t1", nil)
	if code != http.StatusNotFound {
		t.Fatalf("partial create persisted: status %d, %v", code, env)
	}
}

func TestRunModeValidation(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t1", "st-1"))

	code, env := do(t, r, http.MethodPut, "/api/v0/runmode",
		map[string]any{"systemID": "sys", "taskID": "t1", "runMode": "HALF_AUTO"})
	if code != http.StatusBadRequest || env["errNo"] != models.ErrNoValidation {
		t.Fatalf("bad mode accepted: %d %v", code, env)
	}

	code, _ = do(t, r, http.MethodPut, "/api/v0/runmode",
		map[string]any{"systemID": "sys", "taskID": "t1", "runMode": "MANUAL"})
	if code != http.StatusOK {
		t.Fatalf("set MANUAL failed: %d", code)
	}
	_, env = do(t, r, http.MethodGet, "/api/v0/runmode/sys/t1", nil)
	if env["runMode"] != "MANUAL" {
		t.Fatalf("runMode = %v", env["runMode"])
	}
}

func TestEquipPowerRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	code, _ := do(t, r, http.MethodPut, "/api/v0/substations/sys/st-1/power", map[string]any{"powerOn": true})
	if code != http.StatusOK {
		t.Fatalf("set power: %d", code)
	}
	_, env := do(t, r, http.MethodGet, "/api/v0/substations/sys/st-1/power", nil)
	if env["powerOn"] != true {
		t.Fatalf("powerOn = %v", env["powerOn"])
	}

	code, env = do(t, r, http.MethodGet, "/api/v0/substations/sys/st-ghost/power", nil)
	if code != http.StatusNotFound || env["errNo"] != models.ErrNoNotFound {
		t.Fatalf("unknown station: %d %v", code, env)
	}
}

func TestEquipBatchAbortsOnUnknownStation(t *testing.T) {
	r := newTestRouter(t)
	code, env := do(t, r, http.MethodPut, "/api/v0/equip/sys", map[string]any{
		"station": []map[string]any{
			{"stationID": "st-1", "powerOn": true},
			{"stationID": "st-ghost", "powerOn": true},
			{"stationID": "st-2", "powerOn": true},
		},
	})
	if code != http.StatusNotFound || env["errNo"] != models.ErrNoNotFound {
		t.Fatalf("batch with unknown station: %d %v", code, env)
	}

	// Stations before the failure stay switched; the one after was not reached.
	_, env = do(t, r, http.MethodGet, "/api/v0/substations/sys/st-1/power", nil)
	if env["powerOn"] != true {
		t.Fatalf("st-1 powerOn = %v, want true", env["powerOn"])
	}
	_, env = do(t, r, http.MethodGet, "/api/v0/substations/sys/st-2/power", nil)
	if env["powerOn"] != false {
		t.Fatalf("st-2 powerOn = %v, want false", env["powerOn"])
	}
}

func TestListTasksPagination(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t1", "st-1"))
	do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t2", "st-1"))
	do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t3", "st-2"))

	_, env := do(t, r, http.MethodGet, "/api/v0/tasks/sys?first=1&number=1", nil)
	if env["number"] != float64(1) {
		t.Fatalf("number = %v", env["number"])
	}
	tasks := env["tasks"].([]any)
	if got := tasks[0].(map[string]any)["taskID"]; got != "t2" {
		t.Fatalf("paged taskID = %v, want t2", got)
	}

	// number == 0 returns all remaining.
	_, env = do(t, r, http.MethodGet, "/api/v0/tasks/sys?first=1", nil)
	if env["number"] != float64(2) {
		t.Fatalf("open-ended page returned %v tasks", env["number"])
	}
}

func TestTaskHistoryEmptyIsSuccess(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t1", "st-1"))

	code, env := do(t, r, http.MethodGet,
		"/api/v0/tasks/sys/t1", nil)
	if code != http.StatusOK {
		t.Fatalf("get task: %d %v", code, env)
	}

	code, env = do(t, r, http.MethodGet,
		"/api/v0/history/task/sys/t1?qureyMode=WEEK&beginDay=2024-01-01", nil)
	if code != http.StatusOK || env["code"] != "0" {
		t.Fatalf("empty history should succeed: %d %v", code, env)
	}
	if env["number"] != float64(0) {
		t.Fatalf("number = %v, want 0", env["number"])
	}

	// Unknown task is a failure, distinct from an empty result.
	code, env = do(t, r, http.MethodGet,
		"/api/v0/history/task/sys/ghost?qureyMode=WEEK&beginDay=2024-01-01", nil)
	if code != http.StatusNotFound || env["errNo"] != models.ErrNoNotFound {
		t.Fatalf("unknown task history: %d %v", code, env)
	}
}

func TestManualTriggerEnvelope(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v0/tasks", timingBody("t1", "st-1", "st-2"))

	code, env := do(t, r, http.MethodPost, "/api/v0/tasks/sys/t1/trigger", nil)
	if code != http.StatusOK || env["code"] != "0" {
		t.Fatalf("trigger failed: %d %v", code, env)
	}
	if env["outcome"] != string(models.OutcomeSuccess) || env["targets"] != float64(2) {
		t.Fatalf("bad trigger envelope %v", env)
	}
}
