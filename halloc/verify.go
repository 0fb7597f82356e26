// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Heap consistency checking, grounded on lldb's Allocator.Verify
// (falloc.go) and its AllocStats: an optional post-walk report plus a log
// callback invoked once per defect found, letting the caller decide
// whether to keep looking or bail.

package halloc

// Stats records what Verify observed while walking a heap. It is filled
// in regardless of whether any defects were found.
type Stats struct {
	Blocks      int64 // total blocks, allocated plus free
	AllocBlocks int64
	FreeBlocks  int64
	AllocBytes  int64 // sum of allocated blocks' sizes, header/footer included
	FreeBytes   int64 // sum of free blocks' sizes, header/footer included
	FreeListLen int64 // blocks reachable by walking the free list forward
}

// Verify walks the entire heap in address order checking every invariant
// spec.md §3.3 lists, plus — under ExplicitList — that the free list
// visits exactly the free blocks the heap walk found, in both directions.
// For each defect found, log is called with a *CorruptHeapError; Verify
// stops walking as soon as log returns false. Verify returns the first
// error encountered that prevented it from continuing to walk (a
// Provider I/O failure, say), not the defects themselves — those are
// reported only through log.
func (a *Allocator) Verify(log func(error) bool) (*Stats, error) {
	st := &Stats{}

	var prevWasFree bool
	seen := map[Addr]bool{}

	b := a.heapStart
	for b != a.heapEnd {
		size, alloc, prevAlloc, err := a.header(b)
		if err != nil {
			return st, err
		}

		if size <= 0 || size%DWordSize != 0 {
			if !log(&CorruptHeapError{"block size is not a positive multiple of DWordSize", b}) {
				return st, nil
			}
		}
		if size < MinBlockSize {
			if !log(&CorruptHeapError{"block smaller than MinBlockSize", b}) {
				return st, nil
			}
		}

		if !alloc || a.cfg.Footers == BothSidesFooters {
			fsize, falloc, _, err := a.footer(b, size)
			if err != nil {
				return st, err
			}
			if fsize != size || falloc != alloc {
				if !log(&CorruptHeapError{"header/footer mismatch", b}) {
					return st, nil
				}
			}
		}

		// spec.md §3.3 invariant 5 scopes the prevAlloc bit's meaning to
		// the footer-elided variant; under BothSidesFooters, Allocate
		// has no reason to keep it current (see setPrevAllocFlag's doc
		// comment), so checking it there would flag a stale-but-benign
		// bit as corruption.
		if a.cfg.Footers == ElidedFooters {
			if b == a.heapStart {
				if !prevAlloc {
					if !log(&CorruptHeapError{"first block's prevAlloc bit must reflect the always-allocated prologue", b}) {
						return st, nil
					}
				}
			} else if prevAlloc == prevWasFree {
				if !log(&CorruptHeapError{"prevAlloc bit disagrees with predecessor", b}) {
					return st, nil
				}
			}
		}

		if !alloc && prevWasFree && b != a.heapStart {
			if !log(&CorruptHeapError{"two adjacent free blocks were not coalesced", b}) {
				return st, nil
			}
		}

		st.Blocks++
		if alloc {
			st.AllocBlocks++
			st.AllocBytes += size
		} else {
			st.FreeBlocks++
			st.FreeBytes += size
			seen[b] = true
		}

		prevWasFree = !alloc
		next, err := a.nextBlock(b)
		if err != nil {
			return st, err
		}
		b = next
	}

	if a.cfg.FreeList == ExplicitList {
		walked := map[Addr]bool{}
		err := a.flWalk(func(n Addr) (bool, error) {
			st.FreeListLen++
			if walked[n] {
				log(&CorruptHeapError{"free list cycle does not terminate at head", n})
				return false, nil
			}
			walked[n] = true
			if !seen[n] {
				if !log(&CorruptHeapError{"free list references a block the heap walk did not find free", n}) {
					return false, nil
				}
			}
			_, alloc, _, err := a.header(n)
			if err != nil {
				return false, err
			}
			if alloc {
				if !log(&CorruptHeapError{"free list references an allocated block", n}) {
					return false, nil
				}
			}
			next, err := a.flNext(n)
			if err != nil {
				return false, err
			}
			back, err := a.flPrev(next)
			if err != nil {
				return false, err
			}
			if back != n {
				if !log(&CorruptHeapError{"free list next/previous links disagree", n}) {
					return false, nil
				}
			}
			if a.cfg.Insert == AddressOrdered && next != a.flHead && next <= n {
				if !log(&CorruptHeapError{"free list not address-ordered", n}) {
					return false, nil
				}
			}
			return true, nil
		})
		if err != nil {
			return st, err
		}
		if st.FreeListLen != int64(len(seen)) {
			log(&CorruptHeapError{"free list length disagrees with heap-walk free block count", a.flHead})
		}
		if st.FreeListLen != a.flLen {
			log(&CorruptHeapError{"free list length disagrees with Allocator.flLen", a.flHead})
		}
	}

	return st, nil
}
