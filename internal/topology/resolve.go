package topology

import (
	"fmt"
	"sort"

	"automation-service/internal/models"
)

// ResolveStation validates a stationID all the way up the hierarchy and
// returns the full address needed for actuation.
func (r *Registry) ResolveStation(systemID, stationID string) (models.ResolvedAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[stationKey{systemID, stationID}]
	if !ok {
		return models.ResolvedAddress{}, fmt.Errorf("station %s in system %s: %w", stationID, systemID, models.ErrNotFound)
	}
	return r.resolveLocked(st)
}

// Resolve validates each level of (hostNo, nodeNo, stationID) in order,
// stopping at the first level that does not exist in the given system.
func (r *Registry) Resolve(systemID string, hostNo, nodeNo int, stationID string) (models.ResolvedAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	host, ok := r.hosts[hostKey{systemID, hostNo}]
	if !ok {
		return models.ResolvedAddress{}, fmt.Errorf("host %d in system %s: %w", hostNo, systemID, models.ErrNotFound)
	}
	node, ok := r.nodes[nodeKey{systemID, hostNo, nodeNo}]
	if !ok {
		return models.ResolvedAddress{}, fmt.Errorf("node %d on host %d: %w", nodeNo, hostNo, models.ErrNotFound)
	}
	st, ok := r.stations[stationKey{systemID, stationID}]
	if !ok || st.HostNo != hostNo || st.NodeNo != nodeNo {
		return models.ResolvedAddress{}, fmt.Errorf("station %s under node %d: %w", stationID, nodeNo, models.ErrNotFound)
	}
	return models.ResolvedAddress{SystemID: systemID, Host: host, Node: node, Station: st}, nil
}

func (r *Registry) resolveLocked(st models.Substation) (models.ResolvedAddress, error) {
	host, ok := r.hosts[hostKey{st.SystemID, st.HostNo}]
	if !ok {
		return models.ResolvedAddress{}, fmt.Errorf("host %d in system %s: %w", st.HostNo, st.SystemID, models.ErrNotFound)
	}
	node, ok := r.nodes[nodeKey{st.SystemID, st.HostNo, st.NodeNo}]
	if !ok {
		return models.ResolvedAddress{}, fmt.Errorf("node %d on host %d: %w", st.NodeNo, st.HostNo, models.ErrNotFound)
	}
	return models.ResolvedAddress{SystemID: st.SystemID, Host: host, Node: node, Station: st}, nil
}

// ListHosts pages hosts of one system ordered by hostNo. number == 0 means
// all remaining from first.
func (r *Registry) ListHosts(systemID string, first, number int) []models.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Host
	for k, h := range r.hosts {
		if k.system == systemID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostNo < out[j].HostNo })
	return page(out, first, number)
}

// ListNodes pages nodes, optionally narrowed to one host (hostNo >= 0).
func (r *Registry) ListNodes(systemID string, hostNo, first, number int) []models.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Node
	for k, n := range r.nodes {
		if k.system != systemID {
			continue
		}
		if hostNo >= 0 && k.host != hostNo {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HostNo != out[j].HostNo {
			return out[i].HostNo < out[j].HostNo
		}
		return out[i].NodeNo < out[j].NodeNo
	})
	return page(out, first, number)
}

// ListSubstations pages substations, optionally narrowed by host, node or area.
func (r *Registry) ListSubstations(systemID string, hostNo, nodeNo int, areaID string, first, number int) []models.Substation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Substation
	for k, s := range r.stations {
		if k.system != systemID {
			continue
		}
		if hostNo >= 0 && s.HostNo != hostNo {
			continue
		}
		if nodeNo >= 0 && s.NodeNo != nodeNo {
			continue
		}
		if areaID != "" && s.AreaID != areaID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return page(out, first, number)
}

func page[T any](items []T, first, number int) []T {
	if first < 0 {
		first = 0
	}
	if first >= len(items) {
		return nil
	}
	items = items[first:]
	if number > 0 && number < len(items) {
		items = items[:number]
	}
	return items
}
