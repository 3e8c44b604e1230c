package model

import "testing"

func TestSymbolAllowed(t *testing.T) {
	r := &CopyRelation{}
	if !r.SymbolAllowed("EURUSD") {
		t.Errorf("empty whitelist should allow everything")
	}

	r.AllowedSymbols = "EURUSD, GBPUSD"
	if !r.SymbolAllowed("GBPUSD") {
		t.Errorf("whitelisted symbol rejected")
	}
	if r.SymbolAllowed("USDJPY") {
		t.Errorf("non-whitelisted symbol allowed")
	}
}

func TestSideAllowed(t *testing.T) {
	r := &CopyRelation{AllowedSides: "BUY"}
	if !r.SideAllowed(SideBuy) {
		t.Errorf("BUY should pass")
	}
	if r.SideAllowed(SideSell) {
		t.Errorf("SELL should be filtered")
	}
}

func TestPartitionTableDeepCopy(t *testing.T) {
	pt := NewPartitionTable()
	pt.MasterToPartition["M1"] = []string{"p1"}
	pt.Partitions["p1"] = &Partition{ID: "p1", Masters: []string{"M1"}, Workers: []string{"10.0.0.1:8080"}}

	cp := pt.DeepCopy()
	cp.MasterToPartition["M1"][0] = "p2"
	cp.Partitions["p1"].Masters = append(cp.Partitions["p1"].Masters, "M2")

	if pt.MasterToPartition["M1"][0] != "p1" {
		t.Errorf("copy mutated original mapping")
	}
	if len(pt.Partitions["p1"].Masters) != 1 {
		t.Errorf("copy mutated original partition")
	}
}
