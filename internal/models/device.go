package models

import "time"

// Host is the top level of the device hierarchy, unique per (systemID, hostNo).
type Host struct {
	SystemID      string    `json:"systemID"`
	HostNo        int       `json:"hostNo"`
	HostName      string    `json:"hostName,omitempty"`
	HostType      string    `json:"hostType,omitempty"`
	DevEUI        string    `json:"devEUI,omitempty"`
	MaxConnection int       `json:"maxConnection,omitempty"`
	Location      string    `json:"location,omitempty"`
	Latitude      float64   `json:"latitude,omitempty"`
	Longitude     float64   `json:"longitude,omitempty"`
	Memo          string    `json:"memo,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// Node belongs to exactly one Host. Activation and wake status are orthogonal.
type Node struct {
	SystemID   string    `json:"systemID"`
	HostNo     int       `json:"hostNo"`
	NodeNo     int       `json:"nodeNo"`
	NodeName   string    `json:"nodeName,omitempty"`
	Activation string    `json:"activation"` // ACTIVE | DISABLED
	Wake       string    `json:"wake"`       // SLEEP | AWAKE
	Location   string    `json:"location,omitempty"`
	Memo       string    `json:"memo,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// Substation is the addressable actuation unit. It hangs off one (Host, Node)
// pair and carries the Modbus-style parameters needed to reach the port.
type Substation struct {
	SystemID  string    `json:"systemID"`
	StationID string    `json:"stationID"`
	HostNo    int       `json:"hostNo"`
	NodeNo    int       `json:"nodeNo"`
	PortNo    int       `json:"portNo"`
	AreaID    string    `json:"areaID"`
	DevEUI    string    `json:"devEUI,omitempty"`
	DevType   string    `json:"devType,omitempty"`
	Name      string    `json:"substationName,omitempty"`
	UnitID    int       `json:"unitID,omitempty"`   // modbus slave address
	Register  int       `json:"register,omitempty"` // modbus holding register
	PowerOn   bool      `json:"powerOn"`
	Location  string    `json:"location,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ResolvedAddress is a fully validated device address: every level exists and
// belongs to the same system.
type ResolvedAddress struct {
	SystemID string
	Host     Host
	Node     Node
	Station  Substation
}

// ActuationRequest is what goes out to the device-control collaborator for
// one resolved target.
type ActuationRequest struct {
	SystemID  string  `json:"systemID"`
	HostNo    int     `json:"hostNo"`
	NodeNo    int     `json:"nodeNo"`
	StationID string  `json:"stationID"`
	PortNo    int     `json:"portNo"`
	UnitID    int     `json:"unitID"`
	Register  int     `json:"register"`
	Action    Action  `json:"action"`
	Value     float64 `json:"value,omitempty"`
	HoldMS    int     `json:"actOnTime,omitempty"`
}

// AuditEntry is one line in the topology operation log, separate from the
// execution ledger.
type AuditEntry struct {
	Op       string    `json:"op"`
	SystemID string    `json:"systemID"`
	Actor    string    `json:"actor,omitempty"`
	Detail   string    `json:"detail"`
	Code     string    `json:"code"`
	Time     time.Time `json:"time"`
}
