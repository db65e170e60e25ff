package seekarbiter

import "testing"

func TestNewHasNoPending(t *testing.T) {
	a := New()
	if a.IsPending() {
		t.Fatal("new arbiter should have no pending request")
	}
	if _, ok := a.Consume(); ok {
		t.Fatal("consume on empty arbiter should report ok=false")
	}
}

func TestLastWriteWins(t *testing.T) {
	a := New()
	a.Request(5)
	a.Request(12)

	idx, ok := a.Consume()
	if !ok || idx != 12 {
		t.Fatalf("got idx=%d ok=%v, want 12/true", idx, ok)
	}
	if a.IsPending() {
		t.Fatal("consume should clear the slot")
	}
}

func TestConsumeClears(t *testing.T) {
	a := New()
	a.Request(3)
	if !a.IsPending() {
		t.Fatal("expected pending after request")
	}
	if _, ok := a.Consume(); !ok {
		t.Fatal("expected a pending value")
	}
	if _, ok := a.Consume(); ok {
		t.Fatal("second consume should report no pending value")
	}
}
