package cache

import (
	"testing"

	"videoengine/internal/domain"
)

func TestGetPutClear(t *testing.T) {
	c := New()
	if _, ok := c.Get(3); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put(3, domain.Frame{Width: 10})
	f, ok := c.Get(3)
	if !ok || f.Width != 10 {
		t.Fatalf("got %+v, %v", f, ok)
	}
	c.Clear()
	if _, ok := c.Get(3); ok {
		t.Fatal("expected miss after clear")
	}
}

func TestEvictionCapsSize(t *testing.T) {
	c := New()
	c.SetCapacity(3)
	for i := 0; i < 10; i++ {
		c.Put(i, domain.Frame{Width: i})
	}
	if c.Len() > 3 {
		t.Fatalf("len = %d, want <= 3", c.Len())
	}
	// Most recently inserted must survive.
	if _, ok := c.Get(9); !ok {
		t.Fatal("expected most recent entry to survive eviction")
	}
}

func TestTargetFrames(t *testing.T) {
	if n := TargetFrames(20000, 10); n != 200 {
		t.Fatalf("got %d, want 200", n)
	}
	if n := TargetFrames(1500, 10); n != 15 {
		t.Fatalf("got %d, want 15", n)
	}
	if n := TargetFrames(1001, 10); n != 11 {
		t.Fatalf("got %d, want 11 (ceil)", n)
	}
}

func TestPlanNextForwardPrefersRight(t *testing.T) {
	c := New()
	// current=50, target=10 -> left=5,right=5, window [45,55]
	idx, ok := c.PlanNext(50, domain.Forward, 1000, 10)
	if !ok || idx != 51 {
		t.Fatalf("got idx=%d ok=%v, want 51/true", idx, ok)
	}
}

func TestPlanNextBackwardPrefersLeft(t *testing.T) {
	c := New()
	idx, ok := c.PlanNext(50, domain.Backward, 1000, 10)
	if !ok || idx != 49 {
		t.Fatalf("got idx=%d ok=%v, want 49/true", idx, ok)
	}
}

func TestPlanNextFallsBackToOtherSide(t *testing.T) {
	c := New()
	// window for current=5, target=10 -> left=min(5,5)=5, right=5 -> [0,10]
	for i := 6; i <= 10; i++ {
		c.Put(i, domain.Frame{})
	}
	idx, ok := c.PlanNext(5, domain.Forward, 1000, 10)
	if !ok || idx != 4 {
		t.Fatalf("got idx=%d ok=%v, want 4/true (falls back to left)", idx, ok)
	}
}

func TestPlanNextNoneWhenFull(t *testing.T) {
	c := New()
	for i := 0; i <= 10; i++ {
		c.Put(i, domain.Frame{})
	}
	_, ok := c.PlanNext(5, domain.Forward, 11, 10)
	if ok {
		t.Fatal("expected no target when window is fully cached")
	}
}

func TestPlanNextClampsAtBoundaries(t *testing.T) {
	c := New()
	// current=0: left budget clamps to 0
	idx, ok := c.PlanNext(0, domain.Forward, 1000, 10)
	if !ok || idx != 1 {
		t.Fatalf("got idx=%d ok=%v, want 1/true", idx, ok)
	}
	// current at the end of a short file
	idx, ok = c.PlanNext(2, domain.Forward, 3, 10)
	if !ok || idx != 1 {
		t.Fatalf("got idx=%d ok=%v, want 1/true (right exhausted, falls to left)", idx, ok)
	}
}
