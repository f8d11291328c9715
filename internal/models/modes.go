package models

// TaskType selects the task variant and which optional fields are mandatory.
type TaskType string

const (
	TaskTiming  TaskType = "TIMING"
	TaskCycling TaskType = "CYCLING"
	TaskSensor  TaskType = "SENSOR"
	TaskScenery TaskType = "SCENERY"
)

// Action is what a firing does to its targets.
type Action string

const (
	ActionTurnOn  Action = "TURN_ON"
	ActionTurnOff Action = "TURN_OFF"
	ActionTurnAdj Action = "TURN_ADJ"
	ActionCollect Action = "COLLECT"
	ActionOrder   Action = "ORDER"
)

// RepeatMode controls which calendar days a scheduled task fires on.
type RepeatMode string

const (
	RepeatOddDay   RepeatMode = "ODD_DAY"
	RepeatEvenDay  RepeatMode = "EVEN_DAY"
	RepeatWorkday  RepeatMode = "WORKDAY"
	RepeatInterval RepeatMode = "INT_DAY"
)

// RunMode gates whether scheduled firings are dispatched automatically.
type RunMode string

const (
	RunAuto   RunMode = "AUTO"
	RunManual RunMode = "MANUAL"
)

// Node status pairs. Activation and wake state are orthogonal.
const (
	NodeActive   = "ACTIVE"
	NodeDisabled = "DISABLED"
	NodeSleep    = "SLEEP"
	NodeAwake    = "AWAKE"
)

// Host types. Virtual hosts get a generated devEUI and no physical attributes.
const (
	HostPhysical = "PHYSICAL"
	HostVirtual  = "VIRTUAL"
)

// Aggregate outcome of one task firing across all its targets.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
	OutcomeDeleted Outcome = "deleted"
)

// QueryMode resolves a history query's beginDay into a [start, end) interval.
type QueryMode string

const (
	QueryDay     QueryMode = "DAY"
	QueryWeek    QueryMode = "WEEK"
	QueryMonth   QueryMode = "MONTH"
	QueryQuarter QueryMode = "QUARTER"
	QueryYear    QueryMode = "YEAR"
)

func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTiming, TaskCycling, TaskSensor, TaskScenery:
		return true
	}
	return false
}

func ValidAction(a Action) bool {
	switch a {
	case ActionTurnOn, ActionTurnOff, ActionTurnAdj, ActionCollect, ActionOrder:
		return true
	}
	return false
}

func ValidRepeatMode(m RepeatMode) bool {
	switch m {
	case RepeatOddDay, RepeatEvenDay, RepeatWorkday, RepeatInterval:
		return true
	}
	return false
}

func ValidRunMode(m RunMode) bool {
	return m == RunAuto || m == RunManual
}
