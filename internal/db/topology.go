package db

import (
	"context"
	"fmt"

	"automation-service/internal/models"
)

// SaveHost upserts one host row.
func (d *DB) SaveHost(ctx context.Context, h models.Host) error {
	query := `
        INSERT INTO hosts (
            system_id, host_no, host_name, host_type, dev_eui, max_connection,
            location, latitude, longitude, memo, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (system_id, host_no) DO UPDATE SET
            host_name = EXCLUDED.host_name, host_type = EXCLUDED.host_type,
            dev_eui = EXCLUDED.dev_eui, max_connection = EXCLUDED.max_connection,
            location = EXCLUDED.location, latitude = EXCLUDED.latitude,
            longitude = EXCLUDED.longitude, memo = EXCLUDED.memo`
	_, err := d.Pool.Exec(ctx, query,
		h.SystemID, h.HostNo, h.HostName, h.HostType, h.DevEUI, h.MaxConnection,
		h.Location, h.Latitude, h.Longitude, h.Memo, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save host %d: %w", h.HostNo, err)
	}
	return nil
}

func (d *DB) DeleteHost(ctx context.Context, systemID string, hostNo int) error {
	_, err := d.Pool.Exec(ctx, `DELETE FROM hosts WHERE system_id = $1 AND host_no = $2`, systemID, hostNo)
	if err != nil {
		return fmt.Errorf("failed to delete host %d: %w", hostNo, err)
	}
	return nil
}

func (d *DB) SaveNode(ctx context.Context, n models.Node) error {
	query := `
        INSERT INTO nodes (
            system_id, host_no, node_no, node_name, activation, wake,
            location, memo, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (system_id, host_no, node_no) DO UPDATE SET
            node_name = EXCLUDED.node_name, activation = EXCLUDED.activation,
            wake = EXCLUDED.wake, location = EXCLUDED.location, memo = EXCLUDED.memo`
	_, err := d.Pool.Exec(ctx, query,
		n.SystemID, n.HostNo, n.NodeNo, n.NodeName, n.Activation, n.Wake,
		n.Location, n.Memo, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save node %d/%d: %w", n.HostNo, n.NodeNo, err)
	}
	return nil
}

func (d *DB) DeleteNode(ctx context.Context, systemID string, hostNo, nodeNo int) error {
	_, err := d.Pool.Exec(ctx,
		`DELETE FROM nodes WHERE system_id = $1 AND host_no = $2 AND node_no = $3`,
		systemID, hostNo, nodeNo)
	if err != nil {
		return fmt.Errorf("failed to delete node %d/%d: %w", hostNo, nodeNo, err)
	}
	return nil
}

func (d *DB) SaveSubstation(ctx context.Context, s models.Substation) error {
	query := `
        INSERT INTO substations (
            system_id, station_id, host_no, node_no, port_no, area_id, dev_eui,
            dev_type, name, unit_id, register, power_on, location, memo, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (system_id, station_id) DO UPDATE SET
            host_no = EXCLUDED.host_no, node_no = EXCLUDED.node_no,
            port_no = EXCLUDED.port_no, area_id = EXCLUDED.area_id,
            dev_eui = EXCLUDED.dev_eui, dev_type = EXCLUDED.dev_type,
            name = EXCLUDED.name, unit_id = EXCLUDED.unit_id,
            register = EXCLUDED.register, power_on = EXCLUDED.power_on,
            location = EXCLUDED.location, memo = EXCLUDED.memo`
	_, err := d.Pool.Exec(ctx, query,
		s.SystemID, s.StationID, s.HostNo, s.NodeNo, s.PortNo, s.AreaID, s.DevEUI,
		s.DevType, s.Name, s.UnitID, s.Register, s.PowerOn, s.Location, s.Memo, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save substation %s: %w", s.StationID, err)
	}
	return nil
}

func (d *DB) DeleteSubstation(ctx context.Context, systemID, stationID string) error {
	_, err := d.Pool.Exec(ctx,
		`DELETE FROM substations WHERE system_id = $1 AND station_id = $2`,
		systemID, stationID)
	if err != nil {
		return fmt.Errorf("failed to delete substation %s: %w", stationID, err)
	}
	return nil
}

// LoadTopology reads the whole device tree for registry seeding at startup.
func (d *DB) LoadTopology(ctx context.Context) ([]models.Host, []models.Node, []models.Substation, error) {
	hostRows, err := d.Pool.Query(ctx, `
        SELECT system_id, host_no, host_name, host_type, dev_eui, max_connection,
               location, latitude, longitude, memo, created_at
        FROM hosts`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load hosts: %w", err)
	}
	defer hostRows.Close()
	var hosts []models.Host
	for hostRows.Next() {
		var h models.Host
		if err := hostRows.Scan(&h.SystemID, &h.HostNo, &h.HostName, &h.HostType,
			&h.DevEUI, &h.MaxConnection, &h.Location, &h.Latitude, &h.Longitude,
			&h.Memo, &h.CreatedAt); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, h)
	}

	nodeRows, err := d.Pool.Query(ctx, `
        SELECT system_id, host_no, node_no, node_name, activation, wake,
               location, memo, created_at
        FROM nodes`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	defer nodeRows.Close()
	var nodes []models.Node
	for nodeRows.Next() {
		var n models.Node
		if err := nodeRows.Scan(&n.SystemID, &n.HostNo, &n.NodeNo, &n.NodeName,
			&n.Activation, &n.Wake, &n.Location, &n.Memo, &n.CreatedAt); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}

	stationRows, err := d.Pool.Query(ctx, `
        SELECT system_id, station_id, host_no, node_no, port_no, area_id, dev_eui,
               dev_type, name, unit_id, register, power_on, location, memo, created_at
        FROM substations`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load substations: %w", err)
	}
	defer stationRows.Close()
	var stations []models.Substation
	for stationRows.Next() {
		var s models.Substation
		if err := stationRows.Scan(&s.SystemID, &s.StationID, &s.HostNo, &s.NodeNo,
			&s.PortNo, &s.AreaID, &s.DevEUI, &s.DevType, &s.Name, &s.UnitID,
			&s.Register, &s.PowerOn, &s.Location, &s.Memo, &s.CreatedAt); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan substation: %w", err)
		}
		stations = append(stations, s)
	}
	return hosts, nodes, stations, nil
}
