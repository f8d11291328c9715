package topology

import (
	"context"
	"fmt"

	"automation-service/internal/models"
)

// SetNodeActivation flips a node between ACTIVE and DISABLED.
func (r *Registry) SetNodeActivation(ctx context.Context, systemID string, hostNo, nodeNo int, activation string) (err error) {
	defer func() {
		r.record("ACTIVATE_NODE", systemID, fmt.Sprintf("node %d/%d -> %s", hostNo, nodeNo, activation), err)
	}()
	if activation != models.NodeActive && activation != models.NodeDisabled {
		return models.Invalid("action", fmt.Sprintf("unknown activation %q", activation))
	}
	return r.patchNode(ctx, systemID, hostNo, nodeNo, func(n *models.Node) {
		n.Activation = activation
	})
}

// SetNodeWake flips a node between SLEEP and AWAKE. Orthogonal to activation.
func (r *Registry) SetNodeWake(ctx context.Context, systemID string, hostNo, nodeNo int, wake string) (err error) {
	defer func() {
		r.record("SLEEP_NODE", systemID, fmt.Sprintf("node %d/%d -> %s", hostNo, nodeNo, wake), err)
	}()
	if wake != models.NodeSleep && wake != models.NodeAwake {
		return models.Invalid("action", fmt.Sprintf("unknown wake state %q", wake))
	}
	return r.patchNode(ctx, systemID, hostNo, nodeNo, func(n *models.Node) {
		n.Wake = wake
	})
}

func (r *Registry) patchNode(ctx context.Context, systemID string, hostNo, nodeNo int, apply func(*models.Node)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nodeKey{systemID, hostNo, nodeNo}
	cur, ok := r.nodes[key]
	if !ok {
		return fmt.Errorf("node %d on host %d: %w", nodeNo, hostNo, models.ErrNotFound)
	}
	apply(&cur)
	if r.store != nil {
		if serr := r.store.SaveNode(ctx, cur); serr != nil {
			return &models.StorageError{Op: "save node", Err: serr}
		}
	}
	r.nodes[key] = cur
	return nil
}

// NodeStatus returns the node's orthogonal status pair.
func (r *Registry) NodeStatus(systemID string, hostNo, nodeNo int) (models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeKey{systemID, hostNo, nodeNo}]
	if !ok {
		return models.Node{}, fmt.Errorf("node %d on host %d: %w", nodeNo, hostNo, models.ErrNotFound)
	}
	return n, nil
}

// SetStationPower sets a substation's on/off switch state.
func (r *Registry) SetStationPower(ctx context.Context, systemID, stationID string, on bool) (err error) {
	defer func() { r.record("SET_EQUIP", systemID, "station "+stationID, err) }()
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stationKey{systemID, stationID}
	cur, ok := r.stations[key]
	if !ok {
		return fmt.Errorf("station %s in system %s: %w", stationID, systemID, models.ErrNotFound)
	}
	cur.PowerOn = on
	if r.store != nil {
		if serr := r.store.SaveSubstation(ctx, cur); serr != nil {
			return &models.StorageError{Op: "save substation", Err: serr}
		}
	}
	r.stations[key] = cur
	return nil
}

// StationPower reads a substation's switch state.
func (r *Registry) StationPower(systemID, stationID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stations[stationKey{systemID, stationID}]
	if !ok {
		return false, fmt.Errorf("station %s in system %s: %w", stationID, systemID, models.ErrNotFound)
	}
	return s.PowerOn, nil
}
