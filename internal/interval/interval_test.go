package interval

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 2, 3, h, m, 0, 0, time.UTC)
}

func span(sh, sm, eh, em int) Interval {
	return Interval{Start: at(sh, sm), End: at(eh, em)}
}

func equalIntervals(t *testing.T, got, want []Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d: expected %v-%v, got %v-%v",
				i, want[i].Start, want[i].End, got[i].Start, got[i].End)
		}
	}
}

func TestIntersect(t *testing.T) {
	got, ok := Intersect(span(9, 0, 12, 0), span(10, 0, 14, 0))
	if !ok {
		t.Fatal("expected overlap")
	}
	equalIntervals(t, []Interval{got}, []Interval{span(10, 0, 12, 0)})

	// Touching half-open intervals do not intersect.
	if _, ok := Intersect(span(9, 0, 10, 0), span(10, 0, 11, 0)); ok {
		t.Fatal("touching intervals must not intersect")
	}
	if _, ok := Intersect(span(9, 0, 10, 0), span(12, 0, 13, 0)); ok {
		t.Fatal("disjoint intervals must not intersect")
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Interval{
		span(13, 0, 14, 0),
		span(9, 0, 10, 0),
		span(10, 0, 11, 30), // touches the first
		span(9, 30, 10, 15), // overlaps both
	})
	equalIntervals(t, got, []Interval{span(9, 0, 11, 30), span(13, 0, 14, 0)})
}

func TestMergeDropsEmpty(t *testing.T) {
	got := Merge([]Interval{span(10, 0, 10, 0), span(11, 0, 10, 0)})
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSubtractMiddle(t *testing.T) {
	got := Subtract(span(9, 0, 17, 0), []Interval{span(12, 0, 13, 0)})
	equalIntervals(t, got, []Interval{span(9, 0, 12, 0), span(13, 0, 17, 0)})
}

func TestSubtractEdges(t *testing.T) {
	// Blocker covering the start.
	got := Subtract(span(9, 0, 17, 0), []Interval{span(8, 0, 10, 0)})
	equalIntervals(t, got, []Interval{span(10, 0, 17, 0)})

	// Blocker covering the end.
	got = Subtract(span(9, 0, 17, 0), []Interval{span(16, 0, 18, 0)})
	equalIntervals(t, got, []Interval{span(9, 0, 16, 0)})

	// Blocker covering everything.
	got = Subtract(span(9, 0, 17, 0), []Interval{span(8, 0, 18, 0)})
	if len(got) != 0 {
		t.Fatalf("expected no free intervals, got %v", got)
	}

	// Blocker entirely outside.
	got = Subtract(span(9, 0, 17, 0), []Interval{span(18, 0, 19, 0)})
	equalIntervals(t, got, []Interval{span(9, 0, 17, 0)})
}

func TestSubtractOrderInsensitive(t *testing.T) {
	blockers := []Interval{span(14, 0, 15, 0), span(10, 0, 11, 0), span(10, 30, 11, 30)}
	reversed := []Interval{span(10, 30, 11, 30), span(10, 0, 11, 0), span(14, 0, 15, 0)}

	a := Subtract(span(9, 0, 17, 0), blockers)
	b := Subtract(span(9, 0, 17, 0), reversed)
	equalIntervals(t, a, b)
	equalIntervals(t, a, []Interval{span(9, 0, 10, 0), span(11, 30, 14, 0), span(15, 0, 17, 0)})
}

func TestSubtractIdempotent(t *testing.T) {
	blockers := []Interval{span(12, 0, 13, 0)}
	doubled := []Interval{span(12, 0, 13, 0), span(12, 0, 13, 0)}

	once := Subtract(span(9, 0, 17, 0), blockers)
	twice := Subtract(span(9, 0, 17, 0), doubled)
	equalIntervals(t, once, twice)
}
