package models

import "fmt"

// TaskInput is the flat wire form of a task, as the original protocol carries
// it. Definition() folds it into the tagged variant checked at construction.
type TaskInput struct {
	TaskID      string       `json:"taskID,omitempty"`
	SystemID    string       `json:"systemID"`
	TaskName    string       `json:"taskName"`
	TaskType    TaskType     `json:"taskType"`
	Action      Action       `json:"action"`
	ActTime     int          `json:"actTime"`
	ActOnTime   int          `json:"actOnTime"`
	Number1     int          `json:"number1"`
	SetupDay    string       `json:"setupDay"`
	RepeatMode  RepeatMode   `json:"repeatMode"`
	IntervalDay int          `json:"intervalDay,omitempty"`
	ActDay      string       `json:"actDay,omitempty"`
	CycleNum    int          `json:"cycleNum,omitempty"`
	Concurrent  int          `json:"concurrent,omitempty"`
	Begin       []BeginEntry `json:"begin,omitempty"`
	Sense       []SenseParam `json:"sense,omitempty"`
	Station     []StationRef `json:"station"`
	SceneID     string       `json:"sceneID,omitempty"`
	AreaID      string       `json:"areaID"`
	Memo        string       `json:"memo,omitempty"`
}

func (in TaskInput) schedule() Schedule {
	return Schedule{
		ActTime:     in.ActTime,
		ActOnTime:   in.ActOnTime,
		Number1:     in.Number1,
		SetupDay:    in.SetupDay,
		RepeatMode:  in.RepeatMode,
		IntervalDay: in.IntervalDay,
		ActDay:      in.ActDay,
		CycleNum:    in.CycleNum,
	}
}

// Definition builds and validates the tagged task from the flat form.
func (in TaskInput) Definition() (TaskDefinition, error) {
	def := TaskDefinition{
		TaskID:     in.TaskID,
		SystemID:   in.SystemID,
		AreaID:     in.AreaID,
		TaskName:   in.TaskName,
		Action:     in.Action,
		Concurrent: in.Concurrent,
		Stations:   in.Station,
		Memo:       in.Memo,
	}
	switch in.TaskType {
	case TaskTiming:
		def.Spec = TimingSpec{Schedule: in.schedule(), Begin: in.Begin}
	case TaskCycling:
		def.Spec = CyclingSpec{Schedule: in.schedule(), Begin: in.Begin}
	case TaskSensor:
		def.Spec = SensorSpec{Sense: in.Sense}
	case TaskScenery:
		def.Spec = ScenerySpec{SceneID: in.SceneID, Begin: in.Begin}
	default:
		return TaskDefinition{}, Invalid("taskType", fmt.Sprintf("unknown type %q", in.TaskType))
	}
	if err := def.Validate(); err != nil {
		return TaskDefinition{}, err
	}
	return def, nil
}

// Flatten is the inverse of Definition, used for patch merging and storage.
func Flatten(def TaskDefinition) TaskInput {
	in := TaskInput{
		TaskID:     def.TaskID,
		SystemID:   def.SystemID,
		TaskName:   def.TaskName,
		Action:     def.Action,
		Concurrent: def.Concurrent,
		Station:    def.Stations,
		AreaID:     def.AreaID,
		Memo:       def.Memo,
	}
	switch s := def.Spec.(type) {
	case TimingSpec:
		in.TaskType = TaskTiming
		in.Begin = s.Begin
		flattenSchedule(&in, s.Schedule)
	case CyclingSpec:
		in.TaskType = TaskCycling
		in.Begin = s.Begin
		flattenSchedule(&in, s.Schedule)
	case SensorSpec:
		in.TaskType = TaskSensor
		in.Sense = s.Sense
	case ScenerySpec:
		in.TaskType = TaskScenery
		in.SceneID = s.SceneID
		in.Begin = s.Begin
	}
	return in
}

func flattenSchedule(in *TaskInput, s Schedule) {
	in.ActTime = s.ActTime
	in.ActOnTime = s.ActOnTime
	in.Number1 = s.Number1
	in.SetupDay = s.SetupDay
	in.RepeatMode = s.RepeatMode
	in.IntervalDay = s.IntervalDay
	in.ActDay = s.ActDay
	in.CycleNum = s.CycleNum
}

// TaskPatch is a partial update: nil fields keep the prior value.
type TaskPatch struct {
	TaskID      string       `json:"taskID"`
	SystemID    string       `json:"systemID"`
	TaskName    *string      `json:"taskName,omitempty"`
	TaskType    *TaskType    `json:"taskType,omitempty"`
	Action      *Action      `json:"action,omitempty"`
	ActTime     *int         `json:"actTime,omitempty"`
	ActOnTime   *int         `json:"actOnTime,omitempty"`
	Number1     *int         `json:"number1,omitempty"`
	SetupDay    *string      `json:"setupDay,omitempty"`
	RepeatMode  *RepeatMode  `json:"repeatMode,omitempty"`
	IntervalDay *int         `json:"intervalDay,omitempty"`
	ActDay      *string      `json:"actDay,omitempty"`
	CycleNum    *int         `json:"cycleNum,omitempty"`
	Concurrent  *int         `json:"concurrent,omitempty"`
	Begin       []BeginEntry `json:"begin,omitempty"`
	Sense       []SenseParam `json:"sense,omitempty"`
	Station     []StationRef `json:"station,omitempty"`
	SceneID     *string      `json:"sceneID,omitempty"`
	AreaID      *string      `json:"areaID,omitempty"`
	Memo        *string      `json:"memo,omitempty"`
}

// Apply merges the patch over the current definition's flat form. The result
// still has to pass Definition() validation.
func (p TaskPatch) Apply(cur TaskDefinition) TaskInput {
	in := Flatten(cur)
	if p.TaskName != nil {
		in.TaskName = *p.TaskName
	}
	if p.TaskType != nil {
		in.TaskType = *p.TaskType
	}
	if p.Action != nil {
		in.Action = *p.Action
	}
	if p.ActTime != nil {
		in.ActTime = *p.ActTime
	}
	if p.ActOnTime != nil {
		in.ActOnTime = *p.ActOnTime
	}
	if p.Number1 != nil {
		in.Number1 = *p.Number1
	}
	if p.SetupDay != nil {
		in.SetupDay = *p.SetupDay
	}
	if p.RepeatMode != nil {
		in.RepeatMode = *p.RepeatMode
	}
	if p.IntervalDay != nil {
		in.IntervalDay = *p.IntervalDay
	}
	if p.ActDay != nil {
		in.ActDay = *p.ActDay
	}
	if p.CycleNum != nil {
		in.CycleNum = *p.CycleNum
	}
	if p.Concurrent != nil {
		in.Concurrent = *p.Concurrent
	}
	if p.Begin != nil {
		in.Begin = p.Begin
	}
	if p.Sense != nil {
		in.Sense = p.Sense
	}
	if p.Station != nil {
		in.Station = p.Station
	}
	if p.SceneID != nil {
		in.SceneID = *p.SceneID
	}
	if p.AreaID != nil {
		in.AreaID = *p.AreaID
	}
	if p.Memo != nil {
		in.Memo = *p.Memo
	}
	return in
}
