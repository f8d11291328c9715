package models

import (
	"fmt"
	"time"
)

// DayFormat is the wire format for calendar dates (setupDay, actDay, beginDay).
const DayFormat = "2006-01-02"

// ParseDay parses a wire-format calendar date at midnight UTC.
func ParseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DayFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day %q: %w", s, err)
	}
	return d, nil
}

// BeginEntry is one explicit time-of-day trigger within a firing day.
type BeginEntry struct {
	BeginTime int `json:"beginTime"` // ms of day
}

// SenseParam is a sensor threshold pair with the action each side triggers.
type SenseParam struct {
	HighValue float64 `json:"highValue"`
	HighAct   Action  `json:"highAct"`
	LowValue  float64 `json:"lowValue"`
	LowAct    Action  `json:"lowAct"`
}

// StationRef names one target substation of a task.
type StationRef struct {
	StationID string `json:"stationID"`
}

// Schedule holds the time-based firing parameters shared by the TIMING and
// CYCLING variants.
type Schedule struct {
	ActTime     int        `json:"actTime"`   // trigger instant, ms of day
	ActOnTime   int        `json:"actOnTime"` // hold duration, ms
	Number1     int        `json:"number1"`   // firings per day
	SetupDay    string     `json:"setupDay"`
	RepeatMode  RepeatMode `json:"repeatMode"`
	IntervalDay int        `json:"intervalDay,omitempty"`
	ActDay      string     `json:"actDay,omitempty"`   // one-shot date, overrides repeatMode
	CycleNum    int        `json:"cycleNum,omitempty"` // 0 = unbounded
}

func (s Schedule) validate() error {
	if _, err := ParseDay(s.SetupDay); err != nil {
		return Invalid("setupDay", err.Error())
	}
	if s.ActDay != "" {
		if _, err := ParseDay(s.ActDay); err != nil {
			return Invalid("actDay", err.Error())
		}
	} else if !ValidRepeatMode(s.RepeatMode) {
		return Invalid("repeatMode", fmt.Sprintf("unknown mode %q", s.RepeatMode))
	}
	if s.RepeatMode == RepeatInterval && s.IntervalDay <= 0 {
		return Invalid("intervalDay", "required and > 0 for INT_DAY")
	}
	if s.ActTime < 0 || s.ActTime >= msPerDay {
		return Invalid("actTime", "outside day range")
	}
	if s.ActOnTime < 0 {
		return Invalid("actOnTime", "negative hold duration")
	}
	if s.Number1 < 0 {
		return Invalid("number1", "negative fire count")
	}
	if s.CycleNum < 0 {
		return Invalid("cycleNum", "negative cycle budget")
	}
	return nil
}

const msPerDay = 24 * 60 * 60 * 1000

// TaskSpec is the tagged variant payload of a task. Each variant carries only
// the fields its type requires, checked at construction instead of read time.
type TaskSpec interface {
	Type() TaskType
	validate() error
}

// TimingSpec fires at explicit times of day on the days its schedule selects.
type TimingSpec struct {
	Schedule
	Begin []BeginEntry `json:"begin"`
}

func (s TimingSpec) Type() TaskType { return TaskTiming }

func (s TimingSpec) validate() error {
	if len(s.Begin) == 0 {
		return Invalid("begin", "TIMING task needs at least one trigger entry")
	}
	for i, b := range s.Begin {
		if b.BeginTime < 0 || b.BeginTime >= msPerDay {
			return Invalid("begin", fmt.Sprintf("entry %d outside day range", i))
		}
	}
	return s.Schedule.validate()
}

// CyclingSpec fires number1 evenly spaced occurrences per selected day.
type CyclingSpec struct {
	Schedule
	Begin []BeginEntry `json:"begin"`
}

func (s CyclingSpec) Type() TaskType { return TaskCycling }

func (s CyclingSpec) validate() error {
	if len(s.Begin) == 0 {
		return Invalid("begin", "CYCLING task needs at least one trigger entry")
	}
	return s.Schedule.validate()
}

// SensorSpec fires when an observed value crosses a threshold.
type SensorSpec struct {
	Sense []SenseParam `json:"sense"`
}

func (s SensorSpec) Type() TaskType { return TaskSensor }

func (s SensorSpec) validate() error {
	if len(s.Sense) == 0 {
		return Invalid("sense", "SENSOR task needs at least one threshold")
	}
	for i, p := range s.Sense {
		if p.HighValue < p.LowValue {
			return Invalid("sense", fmt.Sprintf("entry %d: highValue below lowValue", i))
		}
		if !ValidAction(p.HighAct) || !ValidAction(p.LowAct) {
			return Invalid("sense", fmt.Sprintf("entry %d: unknown action", i))
		}
	}
	return nil
}

// ScenerySpec fires when its scene is triggered externally.
type ScenerySpec struct {
	SceneID string       `json:"sceneID"`
	Begin   []BeginEntry `json:"begin,omitempty"`
}

func (s ScenerySpec) Type() TaskType { return TaskScenery }

func (s ScenerySpec) validate() error {
	if s.SceneID == "" {
		return Invalid("sceneID", "SCENERY task needs a scene binding")
	}
	return nil
}

// TaskDefinition is one automation rule. TaskID is unique within SystemID.
type TaskDefinition struct {
	TaskID     string       `json:"taskID"`
	SystemID   string       `json:"systemID"`
	AreaID     string       `json:"areaID"`
	TaskName   string       `json:"taskName"`
	Action     Action       `json:"action"`
	Concurrent int          `json:"concurrent,omitempty"` // max simultaneous target actuations, 0 = all
	Stations   []StationRef `json:"station"`
	Memo       string       `json:"memo,omitempty"`
	CreatedAt  time.Time    `json:"createdAt,omitempty"`
	Spec       TaskSpec     `json:"-"`
}

// TimedSchedule returns the schedule of a TIMING or CYCLING task, with its
// explicit begin entries, or ok=false for trigger-driven variants.
func (t TaskDefinition) TimedSchedule() (Schedule, []BeginEntry, bool) {
	switch s := t.Spec.(type) {
	case TimingSpec:
		return s.Schedule, s.Begin, true
	case CyclingSpec:
		return s.Schedule, s.Begin, true
	}
	return Schedule{}, nil, false
}

// Validate checks identity fields and the variant's own invariants.
func (t TaskDefinition) Validate() error {
	if t.TaskID == "" {
		return Invalid("taskID", "empty")
	}
	if t.SystemID == "" {
		return Invalid("systemID", "empty")
	}
	if t.AreaID == "" {
		return Invalid("areaID", "empty")
	}
	if !ValidAction(t.Action) {
		return Invalid("action", fmt.Sprintf("unknown action %q", t.Action))
	}
	if t.Spec == nil {
		return Invalid("taskType", "missing task variant")
	}
	if len(t.Stations) == 0 {
		return Invalid("station", "task needs at least one target")
	}
	for i, ref := range t.Stations {
		if ref.StationID == "" {
			return Invalid("station", fmt.Sprintf("entry %d: empty stationID", i))
		}
	}
	if t.Concurrent > len(t.Stations) {
		return Invalid("concurrent", "exceeds target count")
	}
	if t.Concurrent < 0 {
		return Invalid("concurrent", "negative")
	}
	return t.Spec.validate()
}

// TaskRunMode pairs a task with its current run mode for list responses.
type TaskRunMode struct {
	TaskID  string  `json:"taskID"`
	RunMode RunMode `json:"runMode"`
}
