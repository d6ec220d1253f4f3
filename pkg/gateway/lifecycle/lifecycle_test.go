package lifecycle

import "testing"

func TestLifecycle_Draining(t *testing.T) {
	var l Lifecycle
	if l.IsDraining() || !l.DrainingSince().IsZero() {
		t.Fatalf("fresh lifecycle is draining")
	}

	l.SetDraining(true)
	first := l.DrainingSince()
	if !l.IsDraining() || first.IsZero() {
		t.Fatalf("draining=%v since=%v", l.IsDraining(), first)
	}

	l.SetDraining(true)
	if !l.DrainingSince().Equal(first) {
		t.Fatalf("repeated SetDraining moved the start time")
	}

	l.SetDraining(false)
	if l.IsDraining() || !l.DrainingSince().IsZero() {
		t.Fatalf("lifecycle still draining after reset")
	}

	var nilLifecycle *Lifecycle
	nilLifecycle.SetDraining(true)
	if nilLifecycle.IsDraining() {
		t.Fatalf("nil lifecycle reports draining")
	}
}
