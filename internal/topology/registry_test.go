package topology

import (
	"context"
	"errors"
	"testing"

	"automation-service/internal/models"
)

func seedRegistry(t *testing.T, audit AuditFunc) *Registry {
	t.Helper()
	ctx := context.Background()
	r := NewRegistry(nil, audit)
	if err := r.RegisterHost(ctx, models.Host{SystemID: "sys1", HostNo: 1, HostName: "gate"}); err != nil {
		t.Fatalf("register host: %v", err)
	}
	if err := r.RegisterNode(ctx, models.Node{SystemID: "sys1", HostNo: 1, NodeNo: 2}); err != nil {
		t.Fatalf("register node: %v", err)
	}
	if err := r.RegisterSubstation(ctx, models.Substation{
		SystemID: "sys1", StationID: "st-1", HostNo: 1, NodeNo: 2, PortNo: 3, AreaID: "a1",
	}); err != nil {
		t.Fatalf("register substation: %v", err)
	}
	return r
}

func TestResolveWalksHierarchy(t *testing.T) {
	r := seedRegistry(t, nil)
	addr, err := r.ResolveStation("sys1", "st-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr.Host.HostNo != 1 || addr.Node.NodeNo != 2 || addr.Station.PortNo != 3 {
		t.Errorf("bad address: %+v", addr)
	}

	if _, err := r.ResolveStation("sys2", "st-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-system resolve: got %v, want not found", err)
	}
	if _, err := r.Resolve("sys1", 1, 9, "st-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("wrong node resolve: got %v, want not found", err)
	}
}

func TestDuplicateKeysConflict(t *testing.T) {
	r := seedRegistry(t, nil)
	ctx := context.Background()
	if err := r.RegisterHost(ctx, models.Host{SystemID: "sys1", HostNo: 1}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate host: got %v, want conflict", err)
	}
	if err := r.RegisterNode(ctx, models.Node{SystemID: "sys1", HostNo: 1, NodeNo: 2}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate node: got %v, want conflict", err)
	}
	if err := r.RegisterSubstation(ctx, models.Substation{
		SystemID: "sys1", StationID: "st-1", HostNo: 1, NodeNo: 2,
	}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate station: got %v, want conflict", err)
	}
}

func TestSubstationNeedsExistingNode(t *testing.T) {
	r := seedRegistry(t, nil)
	err := r.RegisterSubstation(context.Background(), models.Substation{
		SystemID: "sys1", StationID: "st-2", HostNo: 1, NodeNo: 99,
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestDeleteNodeConflictsUntilStationsGone(t *testing.T) {
	r := seedRegistry(t, nil)
	ctx := context.Background()

	err := r.DeleteNode(ctx, "sys1", 1, 2, false)
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("delete with dependents: got %v, want conflict", err)
	}
	if err := r.DeleteSubstation(ctx, "sys1", "st-1"); err != nil {
		t.Fatalf("delete substation: %v", err)
	}
	if err := r.DeleteNode(ctx, "sys1", 1, 2, false); err != nil {
		t.Fatalf("delete node after stations removed: %v", err)
	}
}

func TestDeleteHostCascades(t *testing.T) {
	r := seedRegistry(t, nil)
	ctx := context.Background()
	if err := r.DeleteHost(ctx, "sys1", 1, false); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("non-cascade delete: got %v, want conflict", err)
	}
	if err := r.DeleteHost(ctx, "sys1", 1, true); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if _, err := r.ResolveStation("sys1", "st-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("station survived cascade: %v", err)
	}
}

func TestVirtualHostGetsGeneratedEUI(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	if err := r.RegisterHost(ctx, models.Host{
		SystemID: "sys1", HostNo: 7, HostType: models.HostVirtual,
		HostName: "should-clear", Location: "somewhere",
	}); err != nil {
		t.Fatalf("register virtual host: %v", err)
	}
	hosts := r.ListHosts("sys1", 0, 0)
	if len(hosts) != 1 {
		t.Fatalf("got %d hosts, want 1", len(hosts))
	}
	h := hosts[0]
	if h.DevEUI == "" || h.DevEUI[:8] != "VIRTUAL_" {
		t.Errorf("devEUI = %q, want VIRTUAL_ prefix", h.DevEUI)
	}
	if h.HostName != "" || h.Location != "" {
		t.Errorf("physical attributes not cleared: %+v", h)
	}
}

func TestAuditTrailRecordsStructuralOps(t *testing.T) {
	var ops []string
	var codes []string
	r := seedRegistry(t, func(e models.AuditEntry) {
		ops = append(ops, e.Op)
		codes = append(codes, e.Code)
	})
	// Failed delete is audited too, with a failure code.
	_ = r.DeleteNode(context.Background(), "sys1", 1, 2, false)

	want := []string{"ADD_HOST", "ADD_NODE", "ADD_SUBSTATION", "DEL_NODE"}
	if len(ops) != len(want) {
		t.Fatalf("got %d audit entries %v, want %d", len(ops), ops, len(want))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, ops[i], want[i])
		}
	}
	if codes[3] != models.CodeFail {
		t.Errorf("failed delete audited with code %s, want %s", codes[3], models.CodeFail)
	}
}

func TestNodeStatusPairsAreOrthogonal(t *testing.T) {
	r := seedRegistry(t, nil)
	ctx := context.Background()
	if err := r.SetNodeActivation(ctx, "sys1", 1, 2, models.NodeDisabled); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := r.SetNodeWake(ctx, "sys1", 1, 2, models.NodeSleep); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	n, err := r.NodeStatus("sys1", 1, 2)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if n.Activation != models.NodeDisabled || n.Wake != models.NodeSleep {
		t.Errorf("status = %s/%s, want DISABLED/SLEEP", n.Activation, n.Wake)
	}
}

func TestListPagination(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if err := r.RegisterHost(ctx, models.Host{SystemID: "sys1", HostNo: i}); err != nil {
			t.Fatalf("register host %d: %v", i, err)
		}
	}
	if got := r.ListHosts("sys1", 1, 2); len(got) != 2 || got[0].HostNo != 2 {
		t.Errorf("page(1,2) = %v", got)
	}
	// number == 0 means all remaining from first.
	if got := r.ListHosts("sys1", 3, 0); len(got) != 2 || got[0].HostNo != 4 {
		t.Errorf("page(3,0) = %v", got)
	}
	if got := r.ListHosts("sys1", 9, 0); got != nil {
		t.Errorf("page past end = %v, want nil", got)
	}
}
