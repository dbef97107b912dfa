package cell

import (
	"fmt"
	"testing"
)

func TestWatchBasic(t *testing.T) {
	// A counter under watch: only genuine transitions reach the callback.
	g := NewGraph()
	counter := New(g, 0)

	type transition struct{ newV, oldV int }
	var calls []transition
	stop := Watch(counter, func(newV, oldV int) {
		calls = append(calls, transition{newV, oldV})
	})

	// No Immediate option: creation alone stays silent
	if len(calls) != 0 {
		t.Fatalf("expected no calls at creation, got %d", len(calls))
	}

	counter.Set(1)
	if len(calls) != 1 || calls[0] != (transition{1, 0}) {
		t.Fatalf("expected call (1, 0), got %v", calls)
	}

	// Equal write: suppressed by the cell's gate
	counter.Set(1)
	if len(calls) != 1 {
		t.Errorf("expected equal write to stay silent, got %d calls", len(calls))
	}

	counter.Set(5)
	if len(calls) != 2 || calls[1] != (transition{5, 1}) {
		t.Errorf("expected call (5, 1), got %v", calls)
	}

	// After stop the watcher never fires again
	stop.Stop()
	counter.Set(9)
	if len(calls) != 2 {
		t.Errorf("expected no calls after Stop, got %d", len(calls))
	}
}

func TestWatchImmediate(t *testing.T) {
	g := NewGraph()
	c := New(g, 42)

	var calls [][2]int
	Watch(c, func(newV, oldV int) {
		calls = append(calls, [2]int{newV, oldV})
	}, Immediate())

	// The immediate first call reports the current value; the old value is
	// the zero value standing in for "no previous state"
	if len(calls) != 1 || calls[0] != [2]int{42, 0} {
		t.Fatalf("expected immediate call (42, 0), got %v", calls)
	}

	c.Set(43)
	if len(calls) != 2 || calls[1] != [2]int{43, 42} {
		t.Errorf("expected call (43, 42), got %v", calls)
	}
}

func TestWatchOldValueUpdatesWhenCallbackSkipped(t *testing.T) {
	g := NewGraph()
	c := New(g, &[2]int{1, 2})

	// The cell's own gate is identity for pointers, so every fresh pointer
	// reaches the watcher; the deep comparison then decides.
	calls := 0
	var lastOld *[2]int
	Watch(c, func(newV, oldV *[2]int) {
		calls++
		lastOld = oldV
	}, Deep())

	p := c.Get()
	c.Set(&[2]int{1, 2}) // different pointer, equal contents: deep watch skips
	if calls != 0 {
		t.Fatalf("expected deep watch to skip structurally equal write, got %d calls", calls)
	}

	c.Set(&[2]int{3, 4})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	// The skipped write still advanced the stored old value: the reported
	// old pointer is the second one, not the original
	if lastOld == p {
		t.Error("expected old value bookkeeping to advance on skipped changes")
	}
	if *lastOld != [2]int{1, 2} {
		t.Errorf("expected old contents {1 2}, got %v", *lastOld)
	}
}

func TestWatchDeepVersusDefault(t *testing.T) {
	g := NewGraph()

	type box struct{ v int }

	// Identity-distinct, structurally equal pointers
	p1 := &box{v: 1}
	p2 := &box{v: 1}
	p3 := &box{v: 2}

	c := New(g, p1)

	shallowCalls := 0
	Watch(c, func(newV, oldV *box) { shallowCalls++ })

	deepCalls := 0
	Watch(c, func(newV, oldV *box) { deepCalls++ }, Deep())

	c.Set(p2) // new pointer, same contents
	if shallowCalls != 1 {
		t.Errorf("expected default watch to fire on identity change, got %d", shallowCalls)
	}
	if deepCalls != 0 {
		t.Errorf("expected deep watch to skip structurally equal value, got %d", deepCalls)
	}

	c.Set(p3) // contents differ
	if shallowCalls != 2 {
		t.Errorf("expected default watch to fire, got %d", shallowCalls)
	}
	if deepCalls != 1 {
		t.Errorf("expected deep watch to fire on structural change, got %d", deepCalls)
	}
}

func TestWatchWithComparator(t *testing.T) {
	g := NewGraph()
	c := New(g, 10)

	// Only react when the value crosses a bucket boundary
	calls := 0
	Watch(c, func(newV, oldV int) { calls++ }, WithComparator(func(a, b any) bool {
		return a.(int)/100 == b.(int)/100
	}))

	c.Set(50)
	if calls != 0 {
		t.Errorf("expected same-bucket change to be skipped, got %d calls", calls)
	}

	c.Set(150)
	if calls != 1 {
		t.Errorf("expected cross-bucket change to fire, got %d calls", calls)
	}
}

func TestWatchMultipleImmediate(t *testing.T) {
	// Two populated cells under an immediate multi-watch: the first firing
	// converts the current values and the all-unset previous values.
	g := NewGraph()
	a := New(g, 1)
	b := New(g, 2)

	conv := func(vs []any) string { return fmt.Sprint(vs[0], "+", vs[1]) }

	var calls [][2]string
	WatchMultiple([]AnyCell{a, b}, conv, func(newV, oldV string) {
		calls = append(calls, [2]string{newV, oldV})
	}, Immediate())

	if len(calls) != 1 {
		t.Fatalf("expected exactly one immediate call, got %d", len(calls))
	}
	if calls[0][0] != "1+2" {
		t.Errorf("expected new record %q, got %q", "1+2", calls[0][0])
	}
	if calls[0][1] != "<nil>+<nil>" {
		t.Errorf("expected old record from unset values, got %q", calls[0][1])
	}
}

func TestWatchMultipleFiresPerChangedSource(t *testing.T) {
	g := NewGraph()
	first := New(g, "Ada")
	last := New(g, "Lovelace")

	conv := func(vs []any) string { return fmt.Sprint(vs[0], " ", vs[1]) }

	var calls [][2]string
	WatchMultiple([]AnyCell{first, last}, conv, func(newV, oldV string) {
		calls = append(calls, [2]string{newV, oldV})
	})

	if len(calls) != 0 {
		t.Fatalf("expected no calls without Immediate, got %d", len(calls))
	}

	first.Set("Grace")
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0] != [2]string{"Grace Lovelace", "Ada Lovelace"} {
		t.Errorf("unexpected records %v", calls[0])
	}

	last.Set("Hopper")
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[1] != [2]string{"Grace Hopper", "Grace Lovelace"} {
		t.Errorf("unexpected records %v", calls[1])
	}

	// Writes gated by the cells never reach the watcher
	first.Set("Grace")
	if len(calls) != 2 {
		t.Errorf("expected equal write to stay silent, got %d calls", len(calls))
	}
}

func TestWatchMultipleSeparateCascades(t *testing.T) {
	// Two sources changed by two writes: each completed write fires the
	// callback once; there is no coalescing.
	g := NewGraph()
	x := New(g, 0)
	y := New(g, 0)

	conv := func(vs []any) [2]any { return [2]any{vs[0], vs[1]} }

	calls := 0
	WatchMultiple([]AnyCell{x, y}, conv, func(newV, oldV [2]any) { calls++ })

	x.Set(1)
	y.Set(1)
	if calls != 2 {
		t.Errorf("expected one call per completed write, got %d", calls)
	}
}

func TestWatchMultipleMixedGraphsPanics(t *testing.T) {
	g1 := NewGraph()
	g2 := NewGraph()
	a := New(g1, 1)
	b := New(g2, 2)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for sources from different graphs")
		}
	}()
	WatchMultiple([]AnyCell{a, b}, func(vs []any) int { return 0 }, func(newV, oldV int) {})
}

func TestWatchMultipleEmptySourcesPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for empty source list")
		}
	}()
	WatchMultiple(nil, func(vs []any) int { return 0 }, func(newV, oldV int) {})
}

func TestWatchStopDetachesFromAllSources(t *testing.T) {
	g := NewGraph()
	a := New(g, 1)
	b := New(g, 2)

	w := WatchMultiple([]AnyCell{a, b}, func(vs []any) int {
		return vs[0].(int) + vs[1].(int)
	}, func(newV, oldV int) {})

	if g.Subscribers(a.ID(), ValueKey) != 1 || g.Subscribers(b.ID(), ValueKey) != 1 {
		t.Fatal("expected watcher to subscribe to both sources")
	}

	w.Stop()

	if g.Subscribers(a.ID(), ValueKey) != 0 || g.Subscribers(b.ID(), ValueKey) != 0 {
		t.Error("expected Stop to detach from both sources")
	}
}
