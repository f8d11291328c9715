// Package dispatch drives task firings: the evaluation tick, the per-firing
// state machine, bounded fan-out to targets, and ledger recording.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"automation-service/internal/actuator"
	"automation-service/internal/ledger"
	"automation-service/internal/logging"
	"automation-service/internal/models"
	"automation-service/internal/notify"
	"automation-service/internal/recurrence"
	"automation-service/internal/utils"
)

// State is the lifecycle position of one task between ticks.
type State string

const (
	StateIdle        State = "IDLE"
	StateDue         State = "DUE"
	StateDispatching State = "DISPATCHING"
	StateRecorded    State = "RECORDED"
	StateExpired     State = "EXPIRED"
)

// TaskSource yields the definitions the tick evaluates.
type TaskSource interface {
	All() []models.TaskDefinition
	Get(systemID, taskID string) (models.TaskDefinition, error)
}

// ModeReader gates automatic dispatch.
type ModeReader interface {
	Get(systemID, taskID string) models.RunMode
}

// Topology resolves targets to full device addresses at fire time.
type Topology interface {
	ResolveStation(systemID, stationID string) (models.ResolvedAddress, error)
}

// Broadcaster pushes a recorded firing to subscribed clients.
type Broadcaster interface {
	Publish(systemID string, event any)
}

// Config tunes the coordinator. Zero values take the defaults.
type Config struct {
	Tick             time.Duration // evaluation interval
	ActuationTimeout time.Duration // per-target deadline
	RetryDelay       time.Duration // pause before the single retry
	ExpireAfter      time.Duration // overdue occurrences past this are recorded, not fired
	Workers          int           // simultaneous task dispatches
}

func (c *Config) defaults() {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.ActuationTimeout <= 0 {
		c.ActuationTimeout = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.ExpireAfter <= 0 {
		c.ExpireAfter = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
}

type taskKey struct {
	system string
	task   string
}

// Coordinator owns the dispatch loop. One firing per task is in flight at a
// time; a tick never re-dispatches a task that is still being worked.
type Coordinator struct {
	tasks    TaskSource
	modes    ModeReader
	topo     Topology
	ledger   *ledger.Ledger
	actuator actuator.Actuator
	hub      Broadcaster
	notifier notify.Notifier
	logger   *logging.Logger
	cfg      Config

	now func() time.Time

	mu        sync.Mutex
	states    map[taskKey]State
	inflight  map[taskKey]bool
	lastFired map[taskKey]time.Time

	workers chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(tasks TaskSource, modes ModeReader, topo Topology, led *ledger.Ledger, act actuator.Actuator, hub Broadcaster, notifier notify.Notifier, logger *logging.Logger, cfg Config) *Coordinator {
	cfg.defaults()
	return &Coordinator{
		tasks:     tasks,
		modes:     modes,
		topo:      topo,
		ledger:    led,
		actuator:  act,
		hub:       hub,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		states:    make(map[taskKey]State),
		inflight:  make(map[taskKey]bool),
		lastFired: make(map[taskKey]time.Time),
		workers:   make(chan struct{}, cfg.Workers),
		stop:      make(chan struct{}),
	}
}

// Start runs the evaluation loop until Stop or context cancellation.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Tick)
		defer ticker.Stop()
		c.logger.Infof("Dispatch coordinator started (tick %s)", c.cfg.Tick)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.Tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for in-flight dispatches to finish.
func (c *Coordinator) Stop() {
	close(c.stop)
	c.wg.Wait()
	c.logger.Infof("Dispatch coordinator stopped")
}

// TaskState reports a task's current lifecycle position.
func (c *Coordinator) TaskState(systemID, taskID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[taskKey{systemID, taskID}]; ok {
		return s
	}
	return StateIdle
}

// Tick evaluates every scheduled task once against the current clock. Tasks
// in MANUAL mode are skipped without consulting the schedule at all.
func (c *Coordinator) Tick(ctx context.Context) {
	now := c.now()
	for _, def := range c.tasks.All() {
		key := taskKey{def.SystemID, def.TaskID}
		sched, _, timed := def.TimedSchedule()
		if !timed {
			continue
		}

		c.mu.Lock()
		busy := c.inflight[key]
		c.mu.Unlock()
		if busy {
			continue
		}

		if c.modes.Get(def.SystemID, def.TaskID) == models.RunManual {
			c.setState(key, StateIdle)
			continue
		}

		fired, err := c.ledger.CountTaskFirings(ctx, def.SystemID, def.TaskID)
		if err != nil {
			c.logger.Errorf("Skipping task %s this tick, firing count unavailable: %v", def.TaskID, err)
			continue
		}

		next, ok := recurrence.Next(def, c.after(ctx, key, def), fired)
		if !ok {
			if exhausted(sched, fired) {
				c.setState(key, StateExpired)
			} else {
				c.setState(key, StateIdle)
			}
			continue
		}
		if next.After(now) {
			c.setState(key, StateIdle)
			continue
		}

		if now.Sub(next) > c.cfg.ExpireAfter {
			c.recordExpired(ctx, def, next, now)
			continue
		}

		c.setState(key, StateDue)
		c.mu.Lock()
		c.inflight[key] = true
		c.lastFired[key] = next
		c.mu.Unlock()

		c.wg.Add(1)
		go func(def models.TaskDefinition, fireAt time.Time) {
			defer c.wg.Done()
			c.workers <- struct{}{}
			defer func() { <-c.workers }()
			c.runDispatch(ctx, def, def.Action, 0, fireAt)
		}(def, next)
	}
}

// TriggerNow fires a task immediately, regardless of run mode. This is the
// operator's manual path and the only way a MANUAL task actuates.
func (c *Coordinator) TriggerNow(ctx context.Context, systemID, taskID string) (models.DispatchEvent, error) {
	def, err := c.tasks.Get(systemID, taskID)
	if err != nil {
		return models.DispatchEvent{}, err
	}
	key := taskKey{systemID, taskID}
	c.mu.Lock()
	if c.inflight[key] {
		c.mu.Unlock()
		return models.DispatchEvent{}, fmt.Errorf("task %s dispatch in progress: %w", taskID, models.ErrConflict)
	}
	c.inflight[key] = true
	c.mu.Unlock()

	event := c.runDispatch(ctx, def, def.Action, 0, c.now())
	if event.Failed > 0 {
		return event, &models.DispatchError{TaskID: taskID, Failed: event.Failed, Total: event.Targets}
	}
	return event, nil
}

// SensorReading is one observation routed to the SENSOR tasks of its system.
type SensorReading struct {
	SystemID string  `json:"systemID"`
	AreaID   string  `json:"areaID,omitempty"`
	NodeID   string  `json:"nodeID,omitempty"`
	Value    float64 `json:"value"`
}

// HandleSensorReading records the observation in the node-parameter stream
// and evaluates it against every SENSOR task of the system. A threshold
// crossing dispatches the configured side action; MANUAL tasks never react
// automatically.
func (c *Coordinator) HandleSensorReading(ctx context.Context, reading SensorReading) {
	if reading.NodeID != "" {
		entry := models.HistoryEntry{
			ID:        uuid.New(),
			SystemID:  reading.SystemID,
			Stream:    models.StreamNode,
			NodeID:    reading.NodeID,
			AreaID:    reading.AreaID,
			Action:    models.ActionCollect,
			Value:     reading.Value,
			Outcome:   models.OutcomeSuccess,
			Timestamp: c.now(),
		}
		if err := c.ledger.Append(ctx, entry); err != nil {
			c.logger.Errorf("Node ledger append failed for node %s: %v", reading.NodeID, err)
		}
	}
	for _, def := range c.tasks.All() {
		if def.SystemID != reading.SystemID {
			continue
		}
		if reading.AreaID != "" && def.AreaID != reading.AreaID {
			continue
		}
		spec, ok := def.Spec.(models.SensorSpec)
		if !ok {
			continue
		}
		if c.modes.Get(def.SystemID, def.TaskID) == models.RunManual {
			continue
		}
		for _, p := range spec.Sense {
			var act models.Action
			switch {
			case reading.Value >= p.HighValue:
				act = p.HighAct
			case reading.Value <= p.LowValue:
				act = p.LowAct
			default:
				continue
			}
			key := taskKey{def.SystemID, def.TaskID}
			c.mu.Lock()
			if c.inflight[key] {
				c.mu.Unlock()
				break
			}
			c.inflight[key] = true
			c.mu.Unlock()
			c.runDispatch(ctx, def, act, reading.Value, c.now())
			break
		}
	}
}

// TriggerScene fires every SCENERY task bound to the scene. MANUAL tasks are
// excluded, same as the other automatic paths.
func (c *Coordinator) TriggerScene(ctx context.Context, systemID, sceneID string) int {
	n := 0
	for _, def := range c.tasks.All() {
		if def.SystemID != systemID {
			continue
		}
		spec, ok := def.Spec.(models.ScenerySpec)
		if !ok || spec.SceneID != sceneID {
			continue
		}
		if c.modes.Get(def.SystemID, def.TaskID) == models.RunManual {
			continue
		}
		key := taskKey{def.SystemID, def.TaskID}
		c.mu.Lock()
		if c.inflight[key] {
			c.mu.Unlock()
			continue
		}
		c.inflight[key] = true
		c.mu.Unlock()
		c.runDispatch(ctx, def, def.Action, 0, c.now())
		n++
	}
	return n
}

// runDispatch fans the firing out to every target with the task's concurrency
// bound, records per-target and aggregate ledger entries, and publishes the
// outcome. The caller must have claimed the in-flight slot.
func (c *Coordinator) runDispatch(ctx context.Context, def models.TaskDefinition, action models.Action, value float64, fireAt time.Time) models.DispatchEvent {
	key := taskKey{def.SystemID, def.TaskID}
	c.setState(key, StateDispatching)
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	holdMS := 0
	if sched, _, ok := def.TimedSchedule(); ok {
		holdMS = sched.ActOnTime
	}

	limit := def.Concurrent
	if limit <= 0 || limit > len(def.Stations) {
		limit = len(def.Stations)
	}
	sem := make(chan struct{}, limit)

	type result struct {
		stationID string
		areaID    string
		devType   string
		err       error
	}
	results := make(chan result, len(def.Stations))

	var wg sync.WaitGroup
	for _, ref := range def.Stations {
		wg.Add(1)
		go func(stationID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			res := result{stationID: stationID}
			res.areaID, res.devType, res.err = c.actuateTarget(ctx, def, stationID, action, value, holdMS)
			results <- res
		}(ref.StationID)
	}
	wg.Wait()
	close(results)

	failed := 0
	for res := range results {
		outcome := models.OutcomeSuccess
		errText := ""
		if res.err != nil {
			failed++
			outcome = models.OutcomeFailed
			errText = res.err.Error()
			c.logger.Warnf("Task %s target %s failed: %v", def.TaskID, res.stationID, res.err)
		}
		entry := models.HistoryEntry{
			ID:        uuid.New(),
			SystemID:  def.SystemID,
			Stream:    models.StreamStation,
			TaskID:    def.TaskID,
			StationID: res.stationID,
			AreaID:    res.areaID,
			DevType:   res.devType,
			Action:    action,
			Value:     value,
			Outcome:   outcome,
			Error:     errText,
			Timestamp: c.now(),
		}
		if err := c.ledger.Append(ctx, entry); err != nil {
			c.logger.Errorf("Station ledger append failed for task %s: %v", def.TaskID, err)
		}
	}

	outcome := models.OutcomeSuccess
	switch {
	case failed == len(def.Stations):
		outcome = models.OutcomeFailed
	case failed > 0:
		outcome = models.OutcomePartial
	}

	aggregate := models.HistoryEntry{
		ID:        uuid.New(),
		SystemID:  def.SystemID,
		Stream:    models.StreamTask,
		TaskID:    def.TaskID,
		AreaID:    def.AreaID,
		Action:    action,
		Outcome:   outcome,
		Timestamp: fireAt,
	}
	if outcome != models.OutcomeSuccess {
		aggregate.Error = fmt.Sprintf("%d/%d targets failed", failed, len(def.Stations))
	}
	if err := c.ledger.Append(ctx, aggregate); err != nil {
		// The firing happened but is not recorded. lastFired already advanced,
		// so this process will not re-fire; after a restart the ledger is the
		// source of truth and the occurrence may fire once more. Over-firing
		// beats silently under-firing.
		c.logger.Errorf("Task ledger append failed for task %s: %v", def.TaskID, err)
	}
	c.setState(key, StateRecorded)

	event := models.DispatchEvent{
		SystemID:  def.SystemID,
		TaskID:    def.TaskID,
		Action:    action,
		Outcome:   outcome,
		Targets:   len(def.Stations),
		Failed:    failed,
		Timestamp: c.now(),
	}
	if c.hub != nil {
		c.hub.Publish(def.SystemID, event)
	}
	if outcome != models.OutcomeSuccess && c.notifier != nil {
		c.notifier.DispatchFailed(ctx, event)
	}
	c.logger.Infof("Task %s dispatched: %s (%d targets, %d failed)", def.TaskID, outcome, len(def.Stations), failed)
	return event
}

// actuateTarget resolves one target and pushes the actuation with a deadline
// and a single retry. Targets behind a DISABLED or sleeping node fail without
// touching the device.
func (c *Coordinator) actuateTarget(ctx context.Context, def models.TaskDefinition, stationID string, action models.Action, value float64, holdMS int) (areaID, devType string, err error) {
	addr, err := c.topo.ResolveStation(def.SystemID, stationID)
	if err != nil {
		return "", "", err
	}
	areaID, devType = addr.Station.AreaID, addr.Station.DevType
	if addr.Node.Activation == models.NodeDisabled {
		return areaID, devType, fmt.Errorf("node %d is %s", addr.Node.NodeNo, models.NodeDisabled)
	}
	if addr.Node.Wake == models.NodeSleep {
		return areaID, devType, fmt.Errorf("node %d is %s", addr.Node.NodeNo, models.NodeSleep)
	}

	req := models.ActuationRequest{
		SystemID:  def.SystemID,
		HostNo:    addr.Station.HostNo,
		NodeNo:    addr.Station.NodeNo,
		StationID: stationID,
		PortNo:    addr.Station.PortNo,
		UnitID:    addr.Station.UnitID,
		Register:  addr.Station.Register,
		Action:    action,
		Value:     value,
		HoldMS:    holdMS,
	}
	err = utils.Retry(ctx, 2, c.cfg.RetryDelay, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.ActuationTimeout)
		defer cancel()
		return c.actuator.Actuate(callCtx, req)
	})
	return areaID, devType, err
}

// recordExpired writes the missed occurrence to the ledger so the schedule
// advances past it instead of replaying a stale firing.
func (c *Coordinator) recordExpired(ctx context.Context, def models.TaskDefinition, missed, now time.Time) {
	key := taskKey{def.SystemID, def.TaskID}
	entry := models.HistoryEntry{
		ID:        uuid.New(),
		SystemID:  def.SystemID,
		Stream:    models.StreamTask,
		TaskID:    def.TaskID,
		AreaID:    def.AreaID,
		Action:    def.Action,
		Outcome:   models.OutcomeFailed,
		Error:     fmt.Sprintf("missed firing window by %s", now.Sub(missed).Round(time.Second)),
		Timestamp: missed,
	}
	if err := c.ledger.Append(ctx, entry); err != nil {
		c.logger.Errorf("Expiry record failed for task %s: %v", def.TaskID, err)
		return
	}
	c.mu.Lock()
	c.lastFired[key] = missed
	c.mu.Unlock()
	c.setState(key, StateExpired)
	c.logger.Warnf("Task %s occurrence at %s expired unfired", def.TaskID, missed.Format(time.RFC3339))
}

// after returns the instant the schedule search resumes from: the last firing
// this process saw, the latest ledger entry, or the task's creation time.
func (c *Coordinator) after(ctx context.Context, key taskKey, def models.TaskDefinition) time.Time {
	c.mu.Lock()
	last, ok := c.lastFired[key]
	c.mu.Unlock()
	if ok {
		return last
	}
	entries, err := c.ledger.QueryTaskHistory(ctx, def.SystemID, def.TaskID, time.Time{}, time.Time{})
	if err == nil && len(entries) > 0 {
		last = entries[len(entries)-1].Timestamp
		c.mu.Lock()
		c.lastFired[key] = last
		c.mu.Unlock()
		return last
	}
	return def.CreatedAt
}

func exhausted(sched models.Schedule, fired int) bool {
	if sched.CycleNum > 0 && fired >= sched.CycleNum {
		return true
	}
	return sched.ActDay != "" && fired > 0
}

func (c *Coordinator) setState(key taskKey, s State) {
	c.mu.Lock()
	c.states[key] = s
	c.mu.Unlock()
}
