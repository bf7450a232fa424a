package reactor

import "testing"

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Operational", "Operational"},
		{"Under Construction", "Under Construction"},
		{"Permanent Shutdown", "Shutdown"},
		{"Long-term Shutdown", "Suspended Operation"},
		{"Suspended Operation", "Suspended Operation"},
		{"Suspended Construction", "Suspended Construction"},
		{"Planned", "Planned"},
		{"Decommissioning Completed", "Decommissioning Completed"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizeStatus(tc.raw); got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestPlanMerge(t *testing.T) {
	// Capacity and status changes are applied together.
	p := planMerge(1450, "Under Construction", "143",
		Fetched{CapacityMW: 1561, Status: "Operational", IAEAID: "143"})
	if !p.Changed || p.CapacityMW != 1561 || p.Status != "Operational" {
		t.Fatalf("unexpected plan: %+v", p)
	}

	// Identical rows change nothing.
	p = planMerge(1561, "Operational", "143",
		Fetched{CapacityMW: 1561, Status: "Operational", IAEAID: "143"})
	if p.Changed {
		t.Fatalf("expected no change, got %+v", p)
	}

	// A missing IAEA id is backfilled but an existing one is kept.
	p = planMerge(1561, "Operational", "",
		Fetched{CapacityMW: 1561, Status: "Operational", IAEAID: "143"})
	if !p.Changed || p.IAEAID != "143" {
		t.Fatalf("expected backfilled id, got %+v", p)
	}
	p = planMerge(1561, "Operational", "143",
		Fetched{CapacityMW: 1561, Status: "Operational", IAEAID: "999"})
	if p.Changed || p.IAEAID != "143" {
		t.Fatalf("expected existing id kept, got %+v", p)
	}

	// Zero capacity and empty status in the fetched row never clobber data.
	p = planMerge(1561, "Operational", "143", Fetched{IAEAID: "143"})
	if p.Changed || p.CapacityMW != 1561 || p.Status != "Operational" {
		t.Fatalf("expected empty row ignored, got %+v", p)
	}

	// Raw PRIS statuses are normalized before comparison.
	p = planMerge(1561, "Shutdown", "143",
		Fetched{CapacityMW: 1561, Status: "Permanent Shutdown", IAEAID: "143"})
	if p.Changed {
		t.Fatalf("expected normalized status to match, got %+v", p)
	}
}

func TestFleetStatsOperationalGW(t *testing.T) {
	s := FleetStats{OperationalCapacityMW: 402100}
	if gw := s.OperationalGW(); gw != 402.1 {
		t.Fatalf("OperationalGW() = %v, want 402.1", gw)
	}
	if gw := (FleetStats{}).OperationalGW(); gw != 0 {
		t.Fatalf("OperationalGW() on zero stats = %v, want 0", gw)
	}
}
