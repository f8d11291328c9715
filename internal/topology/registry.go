// Package topology owns the Host -> Node -> Substation hierarchy. The tree is
// kept as a flat arena of composite-key maps so address resolution is a
// lookup, not a traversal.
package topology

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"automation-service/internal/models"
)

type hostKey struct {
	system string
	host   int
}

type nodeKey struct {
	system string
	host   int
	node   int
}

type stationKey struct {
	system  string
	station string
}

// Store is the durable write-through behind the registry. A nil store keeps
// the registry memory-only (tests, dry runs).
type Store interface {
	SaveHost(ctx context.Context, h models.Host) error
	DeleteHost(ctx context.Context, systemID string, hostNo int) error
	SaveNode(ctx context.Context, n models.Node) error
	DeleteNode(ctx context.Context, systemID string, hostNo, nodeNo int) error
	SaveSubstation(ctx context.Context, s models.Substation) error
	DeleteSubstation(ctx context.Context, systemID, stationID string) error
}

// AuditFunc receives one operation-log entry per structural change. This is
// the audit trail, independent of the execution ledger.
type AuditFunc func(models.AuditEntry)

// Registry validates and resolves device addresses for one deployment.
type Registry struct {
	mu       sync.RWMutex
	hosts    map[hostKey]models.Host
	nodes    map[nodeKey]models.Node
	stations map[stationKey]models.Substation
	store    Store
	audit    AuditFunc
	now      func() time.Time
}

func NewRegistry(store Store, audit AuditFunc) *Registry {
	return &Registry{
		hosts:    make(map[hostKey]models.Host),
		nodes:    make(map[nodeKey]models.Node),
		stations: make(map[stationKey]models.Substation),
		store:    store,
		audit:    audit,
		now:      time.Now,
	}
}

// Seed loads existing topology without audit entries or store writes.
func (r *Registry) Seed(hosts []models.Host, nodes []models.Node, stations []models.Substation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hosts {
		r.hosts[hostKey{h.SystemID, h.HostNo}] = h
	}
	for _, n := range nodes {
		r.nodes[nodeKey{n.SystemID, n.HostNo, n.NodeNo}] = n
	}
	for _, s := range stations {
		r.stations[stationKey{s.SystemID, s.StationID}] = s
	}
}

func (r *Registry) record(op, systemID, detail string, err error) {
	if r.audit == nil {
		return
	}
	code := models.CodeOK
	if err != nil {
		code = models.CodeFail
	}
	r.audit(models.AuditEntry{
		Op:       op,
		SystemID: systemID,
		Detail:   detail,
		Code:     code,
		Time:     r.now(),
	})
}

// RegisterHost adds a host, rejecting duplicate (systemID, hostNo) keys.
// Virtual hosts get a generated devEUI and carry no physical attributes.
func (r *Registry) RegisterHost(ctx context.Context, h models.Host) (err error) {
	defer func() { r.record("ADD_HOST", h.SystemID, fmt.Sprintf("host %d", h.HostNo), err) }()
	if h.SystemID == "" {
		return models.Invalid("systemID", "empty")
	}
	if h.HostType == models.HostVirtual {
		h.DevEUI = "VIRTUAL_" + uuid.NewString()
		h.HostName = ""
		h.MaxConnection = 0
		h.Location = ""
		h.Latitude = 0
		h.Longitude = 0
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := hostKey{h.SystemID, h.HostNo}
	if _, dup := r.hosts[key]; dup {
		return fmt.Errorf("host %d in system %s: %w", h.HostNo, h.SystemID, models.ErrConflict)
	}
	if r.store != nil {
		if serr := r.store.SaveHost(ctx, h); serr != nil {
			return &models.StorageError{Op: "save host", Err: serr}
		}
	}
	r.hosts[key] = h
	return nil
}

// UpdateHost patches mutable host attributes. Empty patch fields keep the
// prior value.
func (r *Registry) UpdateHost(ctx context.Context, h models.Host) (err error) {
	defer func() { r.record("MOD_HOST", h.SystemID, fmt.Sprintf("host %d", h.HostNo), err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	key := hostKey{h.SystemID, h.HostNo}
	cur, ok := r.hosts[key]
	if !ok {
		return fmt.Errorf("host %d in system %s: %w", h.HostNo, h.SystemID, models.ErrNotFound)
	}
	if h.HostName != "" {
		cur.HostName = h.HostName
	}
	if h.Location != "" {
		cur.Location = h.Location
	}
	if h.Latitude != 0 {
		cur.Latitude = h.Latitude
	}
	if h.Longitude != 0 {
		cur.Longitude = h.Longitude
	}
	if h.Memo != "" {
		cur.Memo = h.Memo
	}
	if r.store != nil {
		if serr := r.store.SaveHost(ctx, cur); serr != nil {
			return &models.StorageError{Op: "save host", Err: serr}
		}
	}
	r.hosts[key] = cur
	return nil
}

// DeleteHost removes a host. It fails with a conflict while dependent nodes
// exist unless the caller cascades, in which case nodes and their stations go
// with it.
func (r *Registry) DeleteHost(ctx context.Context, systemID string, hostNo int, cascade bool) (err error) {
	defer func() { r.record("DEL_HOST", systemID, fmt.Sprintf("host %d", hostNo), err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	key := hostKey{systemID, hostNo}
	if _, ok := r.hosts[key]; !ok {
		return fmt.Errorf("host %d in system %s: %w", hostNo, systemID, models.ErrNotFound)
	}
	var depNodes []nodeKey
	for nk := range r.nodes {
		if nk.system == systemID && nk.host == hostNo {
			depNodes = append(depNodes, nk)
		}
	}
	if len(depNodes) > 0 && !cascade {
		return fmt.Errorf("host %d has %d dependent nodes: %w", hostNo, len(depNodes), models.ErrConflict)
	}
	for _, nk := range depNodes {
		if derr := r.deleteNodeLocked(ctx, nk, true); derr != nil {
			return derr
		}
	}
	if r.store != nil {
		if serr := r.store.DeleteHost(ctx, systemID, hostNo); serr != nil {
			return &models.StorageError{Op: "delete host", Err: serr}
		}
	}
	delete(r.hosts, key)
	return nil
}

// RegisterNode adds a node under an existing same-system host.
func (r *Registry) RegisterNode(ctx context.Context, n models.Node) (err error) {
	defer func() { r.record("ADD_NODE", n.SystemID, fmt.Sprintf("node %d/%d", n.HostNo, n.NodeNo), err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hosts[hostKey{n.SystemID, n.HostNo}]; !ok {
		return fmt.Errorf("host %d in system %s: %w", n.HostNo, n.SystemID, models.ErrNotFound)
	}
	key := nodeKey{n.SystemID, n.HostNo, n.NodeNo}
	if _, dup := r.nodes[key]; dup {
		return fmt.Errorf("node %d on host %d: %w", n.NodeNo, n.HostNo, models.ErrConflict)
	}
	if n.Activation == "" {
		n.Activation = models.NodeActive
	}
	if n.Wake == "" {
		n.Wake = models.NodeAwake
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	if r.store != nil {
		if serr := r.store.SaveNode(ctx, n); serr != nil {
			return &models.StorageError{Op: "save node", Err: serr}
		}
	}
	r.nodes[key] = n
	return nil
}

// UpdateNode patches name, location and memo.
func (r *Registry) UpdateNode(ctx context.Context, n models.Node) (err error) {
	defer func() { r.record("MOD_NODE", n.SystemID, fmt.Sprintf("node %d/%d", n.HostNo, n.NodeNo), err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nodeKey{n.SystemID, n.HostNo, n.NodeNo}
	cur, ok := r.nodes[key]
	if !ok {
		return fmt.Errorf("node %d on host %d: %w", n.NodeNo, n.HostNo, models.ErrNotFound)
	}
	if n.NodeName != "" {
		cur.NodeName = n.NodeName
	}
	if n.Location != "" {
		cur.Location = n.Location
	}
	if n.Memo != "" {
		cur.Memo = n.Memo
	}
	if r.store != nil {
		if serr := r.store.SaveNode(ctx, cur); serr != nil {
			return &models.StorageError{Op: "save node", Err: serr}
		}
	}
	r.nodes[key] = cur
	return nil
}

// DeleteNode removes a node, conflicting while substations depend on it.
func (r *Registry) DeleteNode(ctx context.Context, systemID string, hostNo, nodeNo int, cascade bool) (err error) {
	defer func() { r.record("DEL_NODE", systemID, fmt.Sprintf("node %d/%d", hostNo, nodeNo), err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteNodeLocked(ctx, nodeKey{systemID, hostNo, nodeNo}, cascade)
}

func (r *Registry) deleteNodeLocked(ctx context.Context, key nodeKey, cascade bool) error {
	if _, ok := r.nodes[key]; !ok {
		return fmt.Errorf("node %d on host %d: %w", key.node, key.host, models.ErrNotFound)
	}
	var depStations []stationKey
	for sk, s := range r.stations {
		if s.SystemID == key.system && s.HostNo == key.host && s.NodeNo == key.node {
			depStations = append(depStations, sk)
		}
	}
	if len(depStations) > 0 && !cascade {
		return fmt.Errorf("node %d has %d dependent substations: %w", key.node, len(depStations), models.ErrConflict)
	}
	for _, sk := range depStations {
		if r.store != nil {
			if serr := r.store.DeleteSubstation(ctx, sk.system, sk.station); serr != nil {
				return &models.StorageError{Op: "delete substation", Err: serr}
			}
		}
		delete(r.stations, sk)
	}
	if r.store != nil {
		if serr := r.store.DeleteNode(ctx, key.system, key.host, key.node); serr != nil {
			return &models.StorageError{Op: "delete node", Err: serr}
		}
	}
	delete(r.nodes, key)
	return nil
}

// RegisterSubstation adds an addressable port. Its (systemID, hostNo, nodeNo)
// must resolve to an existing same-system host and node first.
func (r *Registry) RegisterSubstation(ctx context.Context, s models.Substation) (err error) {
	defer func() { r.record("ADD_SUBSTATION", s.SystemID, "station "+s.StationID, err) }()
	if s.StationID == "" {
		return models.Invalid("stationID", "empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hosts[hostKey{s.SystemID, s.HostNo}]; !ok {
		return fmt.Errorf("host %d in system %s: %w", s.HostNo, s.SystemID, models.ErrNotFound)
	}
	if _, ok := r.nodes[nodeKey{s.SystemID, s.HostNo, s.NodeNo}]; !ok {
		return fmt.Errorf("node %d on host %d: %w", s.NodeNo, s.HostNo, models.ErrNotFound)
	}
	key := stationKey{s.SystemID, s.StationID}
	if _, dup := r.stations[key]; dup {
		return fmt.Errorf("station %s in system %s: %w", s.StationID, s.SystemID, models.ErrConflict)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	if r.store != nil {
		if serr := r.store.SaveSubstation(ctx, s); serr != nil {
			return &models.StorageError{Op: "save substation", Err: serr}
		}
	}
	r.stations[key] = s
	return nil
}

// UpdateSubstation patches mutable substation attributes.
func (r *Registry) UpdateSubstation(ctx context.Context, s models.Substation) (err error) {
	defer func() { r.record("MOD_SUBSTATION", s.SystemID, "station "+s.StationID, err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stationKey{s.SystemID, s.StationID}
	cur, ok := r.stations[key]
	if !ok {
		return fmt.Errorf("station %s in system %s: %w", s.StationID, s.SystemID, models.ErrNotFound)
	}
	if s.Name != "" {
		cur.Name = s.Name
	}
	if s.DevEUI != "" {
		cur.DevEUI = s.DevEUI
	}
	if s.DevType != "" {
		cur.DevType = s.DevType
	}
	if s.AreaID != "" {
		cur.AreaID = s.AreaID
	}
	if s.Location != "" {
		cur.Location = s.Location
	}
	if s.Memo != "" {
		cur.Memo = s.Memo
	}
	if r.store != nil {
		if serr := r.store.SaveSubstation(ctx, cur); serr != nil {
			return &models.StorageError{Op: "save substation", Err: serr}
		}
	}
	r.stations[key] = cur
	return nil
}

// DeleteSubstation removes an addressable port.
func (r *Registry) DeleteSubstation(ctx context.Context, systemID, stationID string) (err error) {
	defer func() { r.record("DEL_SUBSTATION", systemID, "station "+stationID, err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stationKey{systemID, stationID}
	if _, ok := r.stations[key]; !ok {
		return fmt.Errorf("station %s in system %s: %w", stationID, systemID, models.ErrNotFound)
	}
	if r.store != nil {
		if serr := r.store.DeleteSubstation(ctx, systemID, stationID); serr != nil {
			return &models.StorageError{Op: "delete substation", Err: serr}
		}
	}
	delete(r.stations, key)
	return nil
}
