package models

import (
	"time"

	"github.com/google/uuid"
)

// Stream separates the ledger's sub-streams.
type Stream string

const (
	StreamTask    Stream = "task"    // task firings and terminal markers
	StreamNode    Stream = "node"    // node parameter history
	StreamStation Stream = "station" // per-target actuation outcomes
)

// HistoryEntry is one append-only ledger record.
type HistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	SystemID  string    `json:"systemID"`
	Stream    Stream    `json:"stream"`
	TaskID    string    `json:"taskID,omitempty"`
	NodeID    string    `json:"nodeID,omitempty"`
	StationID string    `json:"stationID,omitempty"`
	AreaID    string    `json:"areaID,omitempty"`
	DevType   string    `json:"devType,omitempty"`
	Action    Action    `json:"action,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DispatchEvent is pushed to websocket subscribers after a firing records.
type DispatchEvent struct {
	SystemID  string    `json:"systemID"`
	TaskID    string    `json:"taskID"`
	Action    Action    `json:"action"`
	Outcome   Outcome   `json:"outcome"`
	Targets   int       `json:"targets"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}
