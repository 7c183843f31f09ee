package cd11

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/btree"
)

const (
	// allOnes is the upper bound of the sequence number space. A gap ending
	// here is open ended: nothing above its start has been seen.
	allOnes = math.MaxUint64

	gapTreeDegree = 8
)

// Gap is a closed range of missing sequence numbers.
type Gap struct {
	Start    uint64
	End      uint64
	Modified time.Time
}

func (g Gap) String() string {
	return fmt.Sprintf("[%d, %d]", g.Start, g.End)
}

func gapLess(a, b *Gap) bool {
	return a.Start < b.Start
}

// GapList tracks which values of the uint64 space are still missing. It
// keeps the lowest and highest values seen and a set of disjoint gaps
// ordered by start. All methods are safe for concurrent use; each one runs
// under a single lock acquisition.
//
// A GapList created by NewGapList starts empty: min is 0, max is all ones
// and the whole space is one gap. The first value added collapses min and
// max onto that value.
type GapList struct {
	mu    sync.Mutex
	min   uint64
	max   uint64
	empty bool
	gaps  *btree.BTreeG[*Gap]
	now   func() time.Time
}

// NewGapList returns an empty GapList.
func NewGapList() *GapList {
	l := &GapList{now: time.Now}
	l.reset()
	return l
}

// NewGapListRange returns a GapList whose extent is [min, max] with every
// value in it missing.
func NewGapListRange(min, max uint64) (*GapList, error) {
	if min > max {
		return nil, fmt.Errorf("%w: min %d > max %d", ErrRangeOutOfBounds, min, max)
	}
	l := &GapList{now: time.Now, min: min, max: max}
	l.gaps = btree.NewG(gapTreeDegree, gapLess)
	l.gaps.ReplaceOrInsert(&Gap{Start: min, End: max, Modified: l.now()})
	return l, nil
}

func (l *GapList) reset() {
	l.min, l.max, l.empty = 0, allOnes, true
	l.gaps = btree.NewG(gapTreeDegree, gapLess)
	l.gaps.ReplaceOrInsert(&Gap{Start: 0, End: allOnes, Modified: l.now()})
}

// Reset returns the list to its empty state.
func (l *GapList) Reset() {
	l.mu.Lock()
	l.reset()
	l.mu.Unlock()
}

// Min returns the lowest value seen, 0 if the list is empty.
func (l *GapList) Min() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.min
}

// Max returns the highest value seen, all ones if the list is empty.
func (l *GapList) Max() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.max
}

// IsEmpty reports whether no value has been added since creation or the
// last Reset. Lists created by NewGapListRange are never empty.
func (l *GapList) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.empty
}

// Len returns the number of gaps.
func (l *GapList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gaps.Len()
}

// containing returns the gap holding v, or nil.
func (l *GapList) containing(v uint64) *Gap {
	var found *Gap
	l.gaps.DescendLessOrEqual(&Gap{Start: v}, func(g *Gap) bool {
		if g.End >= v {
			found = g
		}
		return false
	})
	return found
}

// AddValue records v as received.
func (l *GapList) AddValue(v uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.empty {
		l.min, l.max, l.empty = v, v, false
	} else if v < l.min {
		// values between v and the old min are missing, unless a gap
		// already says so
		if v+1 < l.min && l.containing(l.min-1) == nil {
			l.gaps.ReplaceOrInsert(&Gap{Start: v + 1, End: l.min - 1, Modified: now})
		}
		l.min = v
	} else if v > l.max {
		if v-1 > l.max && l.containing(l.max+1) == nil {
			l.gaps.ReplaceOrInsert(&Gap{Start: l.max + 1, End: v - 1, Modified: now})
		}
		l.max = v
	}

	g := l.containing(v)
	if g == nil {
		return
	}
	switch {
	case g.Start == v && g.End == v:
		l.gaps.Delete(g)
	case g.Start == v:
		l.gaps.Delete(g)
		g.Start++
		g.Modified = now
		l.gaps.ReplaceOrInsert(g)
	case g.End == v:
		g.End--
		g.Modified = now
	default:
		l.gaps.ReplaceOrInsert(&Gap{Start: v + 1, End: g.End, Modified: now})
		g.End = v - 1
		g.Modified = now
	}
}

// AddValueRange records every value in [start, end] as received. Both
// bounds must lie within [Min(), Max()], except on an empty list where the
// range becomes the new extent.
func (l *GapList) AddValueRange(start, end uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start > end {
		return fmt.Errorf("%w: start %d > end %d", ErrRangeOutOfBounds, start, end)
	}
	if l.empty {
		l.min, l.max, l.empty = start, end, false
	} else if start < l.min || end > l.max {
		return fmt.Errorf("%w: [%d, %d] is outside [%d, %d]", ErrRangeOutOfBounds, start, end, l.min, l.max)
	}

	var hits []*Gap
	l.gaps.DescendLessOrEqual(&Gap{Start: start}, func(g *Gap) bool {
		if g.End >= start {
			hits = append(hits, g)
		}
		return false
	})
	if start < allOnes {
		l.gaps.AscendGreaterOrEqual(&Gap{Start: start + 1}, func(g *Gap) bool {
			if g.Start > end {
				return false
			}
			hits = append(hits, g)
			return true
		})
	}

	now := l.now()
	for _, g := range hits {
		switch {
		case g.Start >= start && g.End <= end:
			l.gaps.Delete(g)
		case g.Start < start && g.End > end:
			l.gaps.ReplaceOrInsert(&Gap{Start: end + 1, End: g.End, Modified: now})
			g.End = start - 1
			g.Modified = now
		case g.Start < start:
			g.End = start - 1
			g.Modified = now
		default:
			l.gaps.Delete(g)
			g.Start = end + 1
			g.Modified = now
			l.gaps.ReplaceOrInsert(g)
		}
	}
	return nil
}

// Gaps returns the gaps in ascending order. With exclusiveStart each range
// starts one below the gap, i.e. at the last value received before it.
// With exclusiveEnd each range ends one above the gap, except for an open
// ended gap whose end is left at all ones.
func (l *GapList) Gaps(exclusiveStart, exclusiveEnd bool) []Range {
	l.mu.Lock()
	defer l.mu.Unlock()

	ranges := make([]Range, 0, l.gaps.Len())
	l.gaps.Ascend(func(g *Gap) bool {
		r := Range{Start: g.Start, End: g.End}
		if exclusiveStart {
			r.Start--
		}
		if exclusiveEnd && r.End != allOnes {
			r.End++
		}
		ranges = append(ranges, r)
		return true
	})
	return ranges
}

// RemoveGapsModifiedBefore deletes every gap last modified strictly before
// cutoff and returns how many were deleted.
func (l *GapList) RemoveGapsModifiedBefore(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stale []*Gap
	l.gaps.Ascend(func(g *Gap) bool {
		if g.Modified.Before(cutoff) {
			stale = append(stale, g)
		}
		return true
	})
	for _, g := range stale {
		l.gaps.Delete(g)
	}
	return len(stale)
}

// snapshot copies the list state.
func (l *GapList) snapshot() (min, max uint64, empty bool, gaps []Gap) {
	l.mu.Lock()
	defer l.mu.Unlock()
	gaps = make([]Gap, 0, l.gaps.Len())
	l.gaps.Ascend(func(g *Gap) bool {
		gaps = append(gaps, *g)
		return true
	})
	return l.min, l.max, l.empty, gaps
}

// restore replaces the list state. gaps must not be inverted or overlap.
func (l *GapList) restore(min, max uint64, empty bool, gaps []Gap) error {
	if min > max {
		return fmt.Errorf("%w: min %d > max %d", ErrRangeOutOfBounds, min, max)
	}
	tree := btree.NewG(gapTreeDegree, gapLess)
	for i := range gaps {
		g := gaps[i]
		if g.Start > g.End {
			return fmt.Errorf("%w: gap %v is inverted", ErrRangeOutOfBounds, g)
		}
		if _, dup := tree.ReplaceOrInsert(&g); dup {
			return fmt.Errorf("%w: two gaps start at %d", ErrRangeOutOfBounds, g.Start)
		}
	}
	var err error
	var last *Gap
	tree.Ascend(func(g *Gap) bool {
		if last != nil && g.Start <= last.End {
			err = fmt.Errorf("%w: gaps %v and %v overlap", ErrRangeOutOfBounds, *last, *g)
			return false
		}
		last = g
		return true
	})
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.min, l.max, l.empty, l.gaps = min, max, empty, tree
	l.mu.Unlock()
	return nil
}
