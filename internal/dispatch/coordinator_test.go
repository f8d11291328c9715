package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"automation-service/internal/actuator"
	"automation-service/internal/ledger"
	"automation-service/internal/logging"
	"automation-service/internal/models"
	"automation-service/internal/runmode"
	"automation-service/internal/taskstore"
	"automation-service/internal/topology"
)

type env struct {
	topo  *topology.Registry
	tasks *taskstore.Store
	modes *runmode.Controller
	led   *ledger.Ledger
}

func newEnv(stationCount int) *env {
	topo := topology.NewRegistry(nil, nil)
	stations := make([]models.Substation, 0, stationCount)
	for i := 1; i <= stationCount; i++ {
		stations = append(stations, models.Substation{
			SystemID: "sys", StationID: fmt.Sprintf("st-%d", i),
			HostNo: 1, NodeNo: 1, PortNo: i, AreaID: "area-1", DevType: "lamp",
		})
	}
	topo.Seed(
		[]models.Host{{SystemID: "sys", HostNo: 1}},
		[]models.Node{{SystemID: "sys", HostNo: 1, NodeNo: 1, Activation: models.NodeActive, Wake: models.NodeAwake}},
		stations,
	)
	led := ledger.New(ledger.NewMemory())
	tasks := taskstore.New(topo, led, nil)
	return &env{
		topo:  topo,
		tasks: tasks,
		modes: runmode.New(tasks, nil),
		led:   led,
	}
}

func (e *env) coordinator(act actuator.Actuator) *Coordinator {
	return New(e.tasks, e.modes, e.topo, e.led, act, nil, nil, logging.NewNop(),
		Config{RetryDelay: time.Millisecond, ActuationTimeout: time.Second})
}

// timingTask fires daily on even days at 10:00 UTC via an explicit begin entry.
func (e *env) timingTask(t *testing.T, id string, concurrent int, stationIDs ...string) models.TaskDefinition {
	t.Helper()
	refs := make([]models.StationRef, 0, len(stationIDs))
	for _, s := range stationIDs {
		refs = append(refs, models.StationRef{StationID: s})
	}
	def := models.TaskDefinition{
		TaskID:     id,
		SystemID:   "sys",
		AreaID:     "area-1",
		TaskName:   id,
		Action:     models.ActionTurnOn,
		Concurrent: concurrent,
		Stations:   refs,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Spec: models.TimingSpec{
			Schedule: models.Schedule{
				ActTime:    10 * 3600 * 1000,
				SetupDay:   "2024-01-02",
				RepeatMode: models.RepeatEvenDay,
			},
			Begin: []models.BeginEntry{{BeginTime: 10 * 3600 * 1000}},
		},
	}
	created, err := e.tasks.Create(context.Background(), def)
	if err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
	return created
}

func taskEntries(t *testing.T, led *ledger.Ledger, taskID string) []models.HistoryEntry {
	t.Helper()
	entries, err := led.QueryTaskHistory(context.Background(), "sys", taskID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query task history: %v", err)
	}
	return entries
}

func TestDispatchHonorsConcurrencyBound(t *testing.T) {
	e := newEnv(5)
	var mu sync.Mutex
	current, peak := 0, 0
	act := actuator.Func(func(ctx context.Context, req models.ActuationRequest) error {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return nil
	})
	c := e.coordinator(act)
	e.timingTask(t, "t1", 2, "st-1", "st-2", "st-3", "st-4", "st-5")

	event, err := c.TriggerNow(context.Background(), "sys", "t1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if event.Outcome != models.OutcomeSuccess || event.Targets != 5 || event.Failed != 0 {
		t.Fatalf("unexpected event %+v", event)
	}
	if peak > 2 {
		t.Fatalf("concurrency bound violated: %d simultaneous actuations", peak)
	}

	begin := time.Now().UTC().AddDate(0, 0, -1).Format(models.DayFormat)
	end := time.Now().UTC().AddDate(0, 0, 1).Format(models.DayFormat)
	stations, err := e.led.QueryStationHistory(context.Background(), "sys", "", "", "", "", begin, end)
	if err != nil {
		t.Fatalf("query stations: %v", err)
	}
	if len(stations) != 5 {
		t.Fatalf("want 5 station entries, got %d", len(stations))
	}
}

func TestManualModeNeverAutoFires(t *testing.T) {
	e := newEnv(1)
	calls := 0
	c := e.coordinator(actuator.Func(func(context.Context, models.ActuationRequest) error {
		calls++
		return nil
	}))
	c.now = func() time.Time { return time.Date(2024, 1, 2, 10, 0, 30, 0, time.UTC) }
	e.timingTask(t, "t1", 0, "st-1")
	if err := e.modes.Set(context.Background(), "sys", "t1", models.RunManual); err != nil {
		t.Fatalf("set manual: %v", err)
	}

	c.Tick(context.Background())
	c.wg.Wait()
	if calls != 0 {
		t.Fatalf("MANUAL task actuated %d times via tick", calls)
	}
	if got := len(taskEntries(t, e.led, "t1")); got != 0 {
		t.Fatalf("MANUAL task recorded %d firings via tick", got)
	}
	if st := c.TaskState("sys", "t1"); st != StateIdle {
		t.Fatalf("state = %s, want %s", st, StateIdle)
	}

	// The operator path still works in MANUAL.
	if _, err := c.TriggerNow(context.Background(), "sys", "t1"); err != nil {
		t.Fatalf("manual trigger: %v", err)
	}
	if calls != 1 {
		t.Fatalf("manual trigger actuated %d times, want 1", calls)
	}
}

func TestTickFiresDueTaskOnce(t *testing.T) {
	e := newEnv(1)
	calls := 0
	c := e.coordinator(actuator.Func(func(context.Context, models.ActuationRequest) error {
		calls++
		return nil
	}))
	now := time.Date(2024, 1, 2, 10, 0, 30, 0, time.UTC)
	c.now = func() time.Time { return now }
	e.timingTask(t, "t1", 0, "st-1")

	c.Tick(context.Background())
	c.wg.Wait()
	if calls != 1 {
		t.Fatalf("want 1 actuation, got %d", calls)
	}
	entries := taskEntries(t, e.led, "t1")
	if len(entries) != 1 || entries[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("unexpected task entries %+v", entries)
	}
	want := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if !entries[0].Timestamp.Equal(want) {
		t.Fatalf("recorded firing at %s, want %s", entries[0].Timestamp, want)
	}
	if st := c.TaskState("sys", "t1"); st != StateRecorded {
		t.Fatalf("state = %s, want %s", st, StateRecorded)
	}

	// Same clock again: the occurrence is consumed, no double fire.
	c.Tick(context.Background())
	c.wg.Wait()
	if calls != 1 {
		t.Fatalf("task re-fired on second tick, %d actuations", calls)
	}
}

func TestPartialFailureAggregatesAndNotifies(t *testing.T) {
	e := newEnv(3)
	notices := make(chan models.DispatchEvent, 1)
	c := e.coordinator(actuator.Func(func(_ context.Context, req models.ActuationRequest) error {
		if req.StationID == "st-2" {
			return errors.New("port stuck")
		}
		return nil
	}))
	c.notifier = notifierFunc(func(_ context.Context, ev models.DispatchEvent) { notices <- ev })
	e.timingTask(t, "t1", 0, "st-1", "st-2", "st-3")

	event, err := c.TriggerNow(context.Background(), "sys", "t1")
	var de *models.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("want DispatchError, got %v", err)
	}
	if event.Outcome != models.OutcomePartial || event.Failed != 1 {
		t.Fatalf("unexpected event %+v", event)
	}
	entries := taskEntries(t, e.led, "t1")
	if len(entries) != 1 || entries[0].Outcome != models.OutcomePartial {
		t.Fatalf("unexpected aggregate %+v", entries)
	}
	select {
	case ev := <-notices:
		if ev.Failed != 1 || ev.Targets != 3 {
			t.Fatalf("unexpected notice %+v", ev)
		}
	default:
		t.Fatal("no failure notice raised")
	}
}

func TestDisabledNodeTargetFailsWithoutActuation(t *testing.T) {
	e := newEnv(1)
	calls := 0
	c := e.coordinator(actuator.Func(func(context.Context, models.ActuationRequest) error {
		calls++
		return nil
	}))
	e.timingTask(t, "t1", 0, "st-1")
	if err := e.topo.SetNodeActivation(context.Background(), "sys", 1, 1, models.NodeDisabled); err != nil {
		t.Fatalf("disable node: %v", err)
	}

	event, err := c.TriggerNow(context.Background(), "sys", "t1")
	if err == nil {
		t.Fatal("want dispatch error for disabled node")
	}
	if event.Outcome != models.OutcomeFailed {
		t.Fatalf("outcome = %s, want %s", event.Outcome, models.OutcomeFailed)
	}
	if calls != 0 {
		t.Fatalf("disabled node was actuated %d times", calls)
	}
}

func TestSingleFlightRejectsOverlap(t *testing.T) {
	e := newEnv(1)
	started := make(chan struct{})
	release := make(chan struct{})
	c := e.coordinator(actuator.Func(func(context.Context, models.ActuationRequest) error {
		close(started)
		<-release
		return nil
	}))
	e.timingTask(t, "t1", 0, "st-1")

	done := make(chan error, 1)
	go func() {
		_, err := c.TriggerNow(context.Background(), "sys", "t1")
		done <- err
	}()
	<-started

	if _, err := c.TriggerNow(context.Background(), "sys", "t1"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("overlapping trigger: want conflict, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first trigger: %v", err)
	}
}

func TestOverdueOccurrenceExpiresUnfired(t *testing.T) {
	e := newEnv(1)
	calls := 0
	c := e.coordinator(actuator.Func(func(context.Context, models.ActuationRequest) error {
		calls++
		return nil
	}))
	// Five minutes past the 10:00 slot, well beyond the default expiry window.
	c.now = func() time.Time { return time.Date(2024, 1, 2, 10, 5, 0, 0, time.UTC) }
	e.timingTask(t, "t1", 0, "st-1")

	c.Tick(context.Background())
	c.wg.Wait()
	if calls != 0 {
		t.Fatalf("expired occurrence was actuated %d times", calls)
	}
	entries := taskEntries(t, e.led, "t1")
	if len(entries) != 1 || entries[0].Outcome != models.OutcomeFailed {
		t.Fatalf("unexpected expiry record %+v", entries)
	}
	if st := c.TaskState("sys", "t1"); st != StateExpired {
		t.Fatalf("state = %s, want %s", st, StateExpired)
	}
}

func TestSensorReadingCrossesThreshold(t *testing.T) {
	e := newEnv(1)
	var got []models.ActuationRequest
	c := e.coordinator(actuator.Func(func(_ context.Context, req models.ActuationRequest) error {
		got = append(got, req)
		return nil
	}))
	def := models.TaskDefinition{
		TaskID: "s1", SystemID: "sys", AreaID: "area-1", TaskName: "frost guard",
		Action:   models.ActionOrder,
		Stations: []models.StationRef{{StationID: "st-1"}},
		Spec: models.SensorSpec{Sense: []models.SenseParam{{
			HighValue: 30, HighAct: models.ActionTurnOn,
			LowValue: 10, LowAct: models.ActionTurnOff,
		}}},
	}
	if _, err := e.tasks.Create(context.Background(), def); err != nil {
		t.Fatalf("create sensor task: %v", err)
	}

	c.HandleSensorReading(context.Background(), SensorReading{SystemID: "sys", Value: 20})
	if len(got) != 0 {
		t.Fatalf("in-band reading actuated %d targets", len(got))
	}

	c.HandleSensorReading(context.Background(), SensorReading{SystemID: "sys", Value: 35})
	if len(got) != 1 {
		t.Fatalf("high crossing actuated %d targets, want 1", len(got))
	}
	if got[0].Action != models.ActionTurnOn || got[0].Value != 35 {
		t.Fatalf("unexpected actuation %+v", got[0])
	}

	c.HandleSensorReading(context.Background(), SensorReading{SystemID: "sys", Value: 5})
	if len(got) != 2 || got[1].Action != models.ActionTurnOff {
		t.Fatalf("low crossing actuation wrong: %+v", got)
	}
}

func TestSensorReadingRecordsNodeHistory(t *testing.T) {
	e := newEnv(1)
	c := e.coordinator(actuator.Func(func(context.Context, models.ActuationRequest) error {
		return nil
	}))

	// In-band readings still land in the node-parameter stream even though no
	// task fires.
	c.HandleSensorReading(context.Background(), SensorReading{
		SystemID: "sys", NodeID: "node-1", AreaID: "area-1", Value: 21.5,
	})
	c.HandleSensorReading(context.Background(), SensorReading{
		SystemID: "sys", NodeID: "node-1", Value: 22.0,
	})
	// Readings without a node binding record nothing in the node stream.
	c.HandleSensorReading(context.Background(), SensorReading{SystemID: "sys", Value: 23.0})

	entries, err := e.led.QueryNodeHistory(context.Background(), "sys", "node-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query node history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 node entries, got %d", len(entries))
	}
	if entries[0].Value != 21.5 || entries[0].Action != models.ActionCollect {
		t.Fatalf("unexpected node entry %+v", entries[0])
	}
	if entries[0].Stream != models.StreamNode || entries[0].NodeID != "node-1" {
		t.Fatalf("entry landed in wrong stream: %+v", entries[0])
	}
}

func TestSceneTriggerFiresBoundTasks(t *testing.T) {
	e := newEnv(2)
	fired := map[string]int{}
	var mu sync.Mutex
	c := e.coordinator(actuator.Func(func(_ context.Context, req models.ActuationRequest) error {
		mu.Lock()
		fired[req.StationID]++
		mu.Unlock()
		return nil
	}))
	sceneTask := func(id, scene, station string) {
		def := models.TaskDefinition{
			TaskID: id, SystemID: "sys", AreaID: "area-1", TaskName: id,
			Action:   models.ActionTurnOn,
			Stations: []models.StationRef{{StationID: station}},
			Spec:     models.ScenerySpec{SceneID: scene},
		}
		if _, err := e.tasks.Create(context.Background(), def); err != nil {
			t.Fatalf("create scene task %s: %v", id, err)
		}
	}
	sceneTask("sc1", "evening", "st-1")
	sceneTask("sc2", "evening", "st-2")
	sceneTask("sc3", "morning", "st-1")
	if err := e.modes.Set(context.Background(), "sys", "sc2", models.RunManual); err != nil {
		t.Fatalf("set manual: %v", err)
	}

	if n := c.TriggerScene(context.Background(), "sys", "evening"); n != 1 {
		t.Fatalf("scene fired %d tasks, want 1 (MANUAL excluded)", n)
	}
	if fired["st-1"] != 1 || fired["st-2"] != 0 {
		t.Fatalf("unexpected actuations %v", fired)
	}
}

type notifierFunc func(context.Context, models.DispatchEvent)

func (f notifierFunc) DispatchFailed(ctx context.Context, ev models.DispatchEvent) { f(ctx, ev) }
