// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Placement policies. spec.md §9 calls for "an interface abstraction
// over the placement policy... dispatched either dynamically or by
// monomorphisation"; this is the dynamic form, mirroring the teacher's
// use of small single-method interfaces (lldb.FLT) for a pluggable
// strategy.

package halloc

// placer finds a free block of at least need bytes, or returns addr==0
// if none exists.
type placer interface {
	findFit(a *Allocator, need int64) (Addr, error)
}

func newPlacer(t FitType) placer {
	switch t {
	case NextFit:
		return nextFitPlacer{}
	case BestFit:
		return bestFitPlacer{}
	default:
		return firstFitPlacer{}
	}
}

// walkCandidates visits every free block in the canonical search order
// for the configured FreeListMode: free-list order for ExplicitList,
// heap address order for ImplicitList. fn returning false stops the
// walk early.
func (a *Allocator) walkCandidates(fn func(Addr) (bool, error)) error {
	if a.cfg.FreeList == ExplicitList {
		return a.flWalk(fn)
	}

	b := a.heapStart
	for b != a.heapEnd {
		_, alloc, _, err := a.header(b)
		if err != nil {
			return err
		}
		if !alloc {
			ok, err := fn(b)
			if err != nil || !ok {
				return err
			}
		}
		next, err := a.nextBlock(b)
		if err != nil {
			return err
		}
		b = next
	}
	return nil
}

type firstFitPlacer struct{}

func (firstFitPlacer) findFit(a *Allocator, need int64) (found Addr, err error) {
	err = a.walkCandidates(func(b Addr) (bool, error) {
		size, _, _, e := a.header(b)
		if e != nil {
			return false, e
		}
		if size >= need {
			found = b
			return false, nil
		}
		return true, nil
	})
	return found, err
}

type bestFitPlacer struct{}

func (bestFitPlacer) findFit(a *Allocator, need int64) (best Addr, err error) {
	bestSize := int64(-1)
	err = a.walkCandidates(func(b Addr) (bool, error) {
		size, _, _, e := a.header(b)
		if e != nil {
			return false, e
		}
		if size >= need && (bestSize == -1 || size < bestSize) {
			best, bestSize = b, size
		}
		return true, nil
	})
	return best, err
}

// nextFitPlacer carries a roving cursor forward across calls (Allocator.rover).
// The cursor is reset to zero (meaning "start of search order") whenever
// coalescing or allocation would otherwise leave it pointing at a block
// that no longer exists as it did (spec.md §4.4, §4.6).
type nextFitPlacer struct{}

func (nextFitPlacer) findFit(a *Allocator, need int64) (Addr, error) {
	if a.cfg.FreeList == ExplicitList {
		return a.nextFitExplicit(need)
	}
	return a.nextFitImplicit(need)
}

func (a *Allocator) nextFitImplicit(need int64) (Addr, error) {
	start := a.rover
	if start == 0 || start == a.heapEnd {
		start = a.heapStart
	}

	cur := start
	for {
		size, alloc, _, err := a.header(cur)
		if err != nil {
			return 0, err
		}
		if !alloc && size >= need {
			next, err := a.nextBlock(cur)
			if err != nil {
				return 0, err
			}
			a.rover = next
			return cur, nil
		}
		next, err := a.nextBlock(cur)
		if err != nil {
			return 0, err
		}
		if next == a.heapEnd {
			next = a.heapStart
		}
		cur = next
		if cur == start {
			return 0, nil
		}
	}
}

func (a *Allocator) nextFitExplicit(need int64) (Addr, error) {
	if a.flHead == 0 {
		return 0, nil
	}
	start := a.rover
	if start == 0 {
		start = a.flHead
	}

	cur := start
	for {
		size, _, _, err := a.header(cur)
		if err != nil {
			return 0, err
		}
		next, err := a.flNext(cur)
		if err != nil {
			return 0, err
		}
		if size >= need {
			a.rover = next
			return cur, nil
		}
		cur = next
		if cur == start {
			return 0, nil
		}
	}
}

// invalidateRover clears the roving cursor if it pointed at old, which
// is about to be absorbed into another block by coalescing or removed by
// allocation/splitting.
func (a *Allocator) invalidateRover(old Addr) {
	if a.cfg.Fit == NextFit && a.rover == old {
		a.rover = 0
	}
}
