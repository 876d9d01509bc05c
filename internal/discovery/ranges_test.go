package discovery

import "testing"

func TestRangeValidate(t *testing.T) {
	cases := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{"valid range", Range{Name: "a", Type: RangeTypeIPRange, RangeStart: "10.0.0.1", RangeEnd: "10.0.0.100"}, false},
		{"single address range", Range{Name: "a", Type: RangeTypeIPRange, RangeStart: "10.0.0.1", RangeEnd: "10.0.0.1"}, false},
		{"end before start", Range{Name: "a", Type: RangeTypeIPRange, RangeStart: "10.0.0.100", RangeEnd: "10.0.0.1"}, true},
		{"family mismatch", Range{Name: "a", Type: RangeTypeIPRange, RangeStart: "10.0.0.1", RangeEnd: "fd00::1"}, true},
		{"bad start", Range{Name: "a", Type: RangeTypeIPRange, RangeStart: "10.0.0.999", RangeEnd: "10.0.0.1"}, true},
		{"valid network", Range{Name: "a", Type: RangeTypeIPNetwork, RangeStart: "10.0.0.0/24"}, false},
		{"network missing prefix", Range{Name: "a", Type: RangeTypeIPNetwork, RangeStart: "10.0.0.0"}, true},
		{"valid address", Range{Name: "a", Type: RangeTypeIPAddress, RangeStart: "192.168.1.10"}, false},
		{"valid v6 address", Range{Name: "a", Type: RangeTypeIPAddress, RangeStart: "fd00::1"}, false},
		{"bad address", Range{Name: "a", Type: RangeTypeIPAddress, RangeStart: "not-an-ip"}, true},
		{"unknown type", Range{Name: "a", Type: "Subnet", RangeStart: "10.0.0.0/24"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected error for %+v", tc.r)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOverlaps(t *testing.T) {
	rangeA := Range{Type: RangeTypeIPRange, RangeStart: "10.0.0.1", RangeEnd: "10.0.0.100"}
	rangeB := Range{Type: RangeTypeIPRange, RangeStart: "10.0.0.50", RangeEnd: "10.0.0.200"}
	network := Range{Type: RangeTypeIPNetwork, RangeStart: "10.0.0.0/24"}
	address := Range{Type: RangeTypeIPAddress, RangeStart: "10.0.0.60"}
	disjoint := Range{Type: RangeTypeIPRange, RangeStart: "10.0.1.1", RangeEnd: "10.0.1.50"}
	v6 := Range{Type: RangeTypeIPNetwork, RangeStart: "fd00::/64"}

	if !Overlaps(rangeA, rangeB) {
		t.Error("overlapping ranges not detected")
	}
	if !Overlaps(rangeA, network) {
		t.Error("range inside network not detected")
	}
	if !Overlaps(rangeA, address) {
		t.Error("address inside range not detected")
	}
	if Overlaps(rangeA, disjoint) {
		t.Error("disjoint ranges reported as overlapping")
	}
	if Overlaps(rangeA, v6) {
		t.Error("different families cannot overlap")
	}
	if Overlaps(rangeA, Range{Type: "Subnet", RangeStart: "x"}) {
		t.Error("invalid range should never overlap")
	}

	// Symmetry
	if Overlaps(rangeA, rangeB) != Overlaps(rangeB, rangeA) {
		t.Error("Overlaps must be symmetric")
	}
}

func TestLastAddr(t *testing.T) {
	network := Range{Type: RangeTypeIPNetwork, RangeStart: "10.0.0.0/24"}
	edge := Range{Type: RangeTypeIPAddress, RangeStart: "10.0.0.255"}
	outside := Range{Type: RangeTypeIPAddress, RangeStart: "10.0.1.0"}

	if !Overlaps(network, edge) {
		t.Error("broadcast address should be inside the /24")
	}
	if Overlaps(network, outside) {
		t.Error("next network should be outside the /24")
	}
}
