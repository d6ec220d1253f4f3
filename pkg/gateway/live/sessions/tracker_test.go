package sessions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("c1", Handle{})
	u2 := tr.Register("c2", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_WaitTimesOutWhileConnectionsLive(t *testing.T) {
	tr := NewTracker()
	unregister := tr.Register("c1", Handle{})
	defer unregister()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); ok {
		t.Fatalf("expected Wait to time out")
	}
}

func TestTracker_ReRegisterReplacesEntry(t *testing.T) {
	tr := NewTracker()
	first := tr.Register("c1", Handle{})
	tr.Register("c1", Handle{})
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	first()
	if tr.Count() != 1 {
		t.Fatalf("stale unregister removed the new entry")
	}
}

func TestTracker_CountByMode(t *testing.T) {
	tr := NewTracker()
	mode := "anonymous"
	tr.Register("c1", Handle{Mode: func() string { return "identified" }})
	tr.Register("c2", Handle{Mode: func() string { return mode }})
	tr.Register("c3", Handle{})

	got := tr.CountByMode()
	if got["identified"] != 1 || got["anonymous"] != 1 || got["pending"] != 1 {
		t.Fatalf("counts=%v", got)
	}

	mode = "identified"
	if got := tr.CountByMode(); got["identified"] != 2 {
		t.Fatalf("counts=%v", got)
	}

	var nilTracker *Tracker
	if got := nilTracker.CountByMode(); len(got) != 0 {
		t.Fatalf("nil tracker counts=%v", got)
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.Register("c1", Handle{Cancel: func() { c1.Add(1) }})
	tr.Register("c2", Handle{Cancel: func() { c2.Add(1) }})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_WarnAll_BestEffort(t *testing.T) {
	tr := NewTracker()
	var w1, w2 atomic.Int64
	tr.Register("c1", Handle{Warn: func(code, message string) error {
		w1.Add(1)
		return nil
	}})
	tr.Register("c2", Handle{Warn: func(code, message string) error {
		w2.Add(1)
		return errors.New("queue full")
	}})

	if sent := tr.WarnAll("server_draining", "test"); sent != 2 {
		t.Fatalf("sent=%d, want 2", sent)
	}
	if w1.Load() != 1 || w2.Load() != 1 {
		t.Fatalf("warn calls=%d/%d, want 1/1", w1.Load(), w2.Load())
	}
}
