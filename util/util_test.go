package util

import "testing"

func TestGenerateTradeID(t *testing.T) {
	if err := InitSonyFlake(); err != nil {
		t.Fatalf("init: %v", err)
	}
	a, err := GenerateTradeID()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == 0 {
		t.Error("trade id must be non-zero")
	}
	b, err := GenerateTradeID()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Errorf("trade ids must be unique, got %d twice", a)
	}
}
