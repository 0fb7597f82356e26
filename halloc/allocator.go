// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Allocator ties navigate.go, freelist.go and placement.go together into
// the four spec.md §4 operations: initialisation, allocation, freeing and
// reallocation. Structured the way dbm ties lldb's Allocator/Filer
// together behind one constructor (dbm.go's CreateMap/OpenMap), it owns a
// Provider and never hands out anything but Addr values and copied bytes.

package halloc

import "github.com/cznic/mathutil"

// Allocator manages dynamic allocation within a single contiguous region
// of a Provider, per one of the variants Config selects. It is not safe
// for concurrent use.
type Allocator struct {
	cfg  Config
	p    Provider
	fit  placer

	heapStart Addr // address of the heap's first block header; constant.
	heapEnd   Addr // address of the current epilogue header.

	rover  Addr // NextFit cursor; 0 means "restart at the top".
	flHead Addr // ExplicitList root; 0 means the list is empty.
	flLen  int64
}

// New lays out a fresh heap on an empty Provider and returns an Allocator
// ready to serve Allocate calls. p MUST report Size() == 0; New is the
// only thing ever allowed to write to a fresh Provider's first bytes.
func New(p Provider, cfg Config) (*Allocator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if p.Size() != 0 {
		return nil, &InvalidArgumentError{"New: Provider is not empty", p.Size()}
	}

	a := &Allocator{cfg: cfg, p: p, fit: newPlacer(cfg.Fit)}

	if _, err := p.Grow(WordSize); err != nil {
		return nil, &HeapExhaustedError{WordSize, err}
	}
	if err := a.writeHeader(0, 0, true, true); err != nil { // prologue footer
		return nil, err
	}

	if _, err := p.Grow(WordSize); err != nil {
		return nil, &HeapExhaustedError{WordSize, err}
	}
	a.heapStart = Addr(WordSize)
	a.heapEnd = Addr(WordSize)
	// The epilogue's prevAlloc bit describes whatever real block
	// currently precedes it; with none yet, that is the (always
	// allocated) prologue.
	if err := a.writeHeader(a.heapEnd, 0, true, true); err != nil {
		return nil, err
	}

	if _, err := a.extendHeap(cfg.ChunkSize); err != nil {
		return nil, err
	}
	return a, nil
}

// overhead is the number of header/footer bytes an allocated block
// reserves beyond its payload, per spec.md §4.8.
func (a *Allocator) overhead() int64 {
	if a.cfg.Footers == ElidedFooters {
		return WordSize
	}
	return DWordSize
}

// Allocate reserves a block able to hold at least size bytes and returns
// its payload address. size == 0 returns Addr(0) and a nil error, just as
// a no-op request. A negative size is a caller error.
func (a *Allocator) Allocate(size int64) (Addr, error) {
	if size == 0 {
		return 0, nil
	}
	if size < 0 {
		return 0, &InvalidArgumentError{"Allocator.Allocate: negative size", size}
	}

	need := roundUp(size+a.overhead(), DWordSize)
	if need < MinBlockSize {
		need = MinBlockSize
	}

	var b Addr
	for {
		found, err := a.fit.findFit(a, need)
		if err != nil {
			return 0, err
		}
		if found != 0 {
			b = found
			break
		}
		grow := need
		if a.cfg.ChunkSize > grow {
			grow = a.cfg.ChunkSize
		}
		if _, err := a.extendHeap(grow); err != nil {
			return 0, err
		}
	}

	blockSize, _, prevAlloc, err := a.header(b)
	if err != nil {
		return 0, err
	}

	if a.cfg.FreeList == ExplicitList {
		if err := a.flRemove(b); err != nil {
			return 0, err
		}
	}
	a.invalidateRover(b)

	if err := a.writeHeader(b, blockSize, true, prevAlloc); err != nil {
		return 0, err
	}
	if a.cfg.Footers == BothSidesFooters {
		if err := a.writeFooter(b, blockSize, true, prevAlloc); err != nil {
			return 0, err
		}
	} else if blockSize-need < MinBlockSize {
		// No split will follow: b's far end still borders whatever
		// follows the whole original free region, which must now
		// learn that its predecessor became allocated. When a split
		// does follow, that far neighbour's predecessor is the new
		// free tail, so its prevAlloc bit is correctly left alone.
		if err := a.setPrevAllocFlag(b+Addr(blockSize), true); err != nil {
			return 0, err
		}
	}

	if err := a.split(b, need); err != nil {
		return 0, err
	}
	return payload(b), nil
}

// split truncates the free block at b to exactly asize bytes, allocated,
// and turns the remainder — if it is at least MinBlockSize — into a new
// free block, inserting it into the free list under ExplicitList. b's
// header MUST already carry alloc=true and the whole free block's size,
// as Allocate's writeHeader above leaves it; split is what carves off the
// unused tail. Under ElidedFooters the allocated head gets a header only,
// never a footer — the original's footer-elided split_block path writes a
// footer for the allocated remainder by mistake (spec.md §9); this does
// not.
func (a *Allocator) split(b Addr, asize int64) error {
	blockSize, _, prevAlloc, err := a.header(b)
	if err != nil {
		return err
	}
	remainder := blockSize - asize
	if remainder < MinBlockSize {
		return nil
	}

	if err := a.writeHeader(b, asize, true, prevAlloc); err != nil {
		return err
	}
	if a.cfg.Footers == BothSidesFooters {
		if err := a.writeFooter(b, asize, true, prevAlloc); err != nil {
			return err
		}
	}

	tail := b + Addr(asize)
	if err := a.writeHeader(tail, remainder, false, true); err != nil {
		return err
	}
	if err := a.writeFooter(tail, remainder, false, true); err != nil {
		return err
	}

	if a.cfg.FreeList == ExplicitList {
		return a.flInsert(tail)
	}
	return nil
}

// Free releases the block at addr. addr == 0 is a no-op, matching
// free(NULL). Calling Free on an addr that does not name a currently
// allocated block is a programmer error: when the header of addr's block
// reports it not allocated, Free panics with a *DoubleFreeError rather
// than exiting the process (spec.md §9; see DESIGN.md). Other invalid
// addresses are not detected.
func (a *Allocator) Free(addr Addr) error {
	if addr == 0 {
		return nil
	}
	b := blockFromPayload(addr)
	size, alloc, prevAlloc, err := a.header(b)
	if err != nil {
		return err
	}
	if !alloc {
		panic(&DoubleFreeError{addr})
	}

	if err := a.writeHeader(b, size, false, prevAlloc); err != nil {
		return err
	}
	if err := a.writeFooter(b, size, false, prevAlloc); err != nil {
		return err
	}
	if a.cfg.Footers == ElidedFooters {
		if err := a.setPrevAllocFlag(b+Addr(size), false); err != nil {
			return err
		}
	}

	_, err = a.coalesce(b)
	return err
}

// Reallocate resizes the block at addr to newSize bytes, preserving as
// much of its content as fits, and returns the (possibly new) payload
// address. addr == 0 behaves as Allocate(newSize); newSize == 0 behaves
// as Free(addr) and returns Addr(0). On failure to grow, addr and its
// content are left untouched, matching realloc's contract.
func (a *Allocator) Reallocate(addr Addr, newSize int64) (Addr, error) {
	if newSize == 0 {
		return 0, a.Free(addr)
	}
	if addr == 0 {
		return a.Allocate(newSize)
	}

	_, alloc, _, err := a.header(blockFromPayload(addr))
	if err != nil {
		return 0, err
	}
	if !alloc {
		panic(&DoubleFreeError{addr})
	}

	oldCap, err := a.PayloadCapacity(addr)
	if err != nil {
		return 0, err
	}

	newAddr, err := a.Allocate(newSize)
	if err != nil {
		return 0, err
	}

	n := int(mathutil.MaxInt64(0, mathutil.MinInt64(newSize, oldCap)))
	if n > 0 {
		buf := make([]byte, n)
		if _, err := a.ReadPayload(addr, buf); err != nil {
			return 0, err
		}
		if _, err := a.WritePayload(newAddr, buf); err != nil {
			return 0, err
		}
	}

	if err := a.Free(addr); err != nil {
		return 0, err
	}
	return newAddr, nil
}

// PayloadCapacity returns the number of usable bytes at addr, which MUST
// be a currently allocated payload address.
func (a *Allocator) PayloadCapacity(addr Addr) (int64, error) {
	b := blockFromPayload(addr)
	size, alloc, _, err := a.header(b)
	if err != nil {
		return 0, err
	}
	if !alloc {
		return 0, &InvalidArgumentError{"Allocator.PayloadCapacity: not allocated", addr}
	}
	return size - a.overhead(), nil
}

// ReadPayload copies into dst from addr's payload, up to PayloadCapacity
// bytes, and returns the number of bytes copied.
func (a *Allocator) ReadPayload(addr Addr, dst []byte) (int, error) {
	if addr == 0 {
		return 0, &InvalidArgumentError{"Allocator.ReadPayload: zero addr", addr}
	}
	cap, err := a.PayloadCapacity(addr)
	if err != nil {
		return 0, err
	}
	n := mathutil.Min(len(dst), int(cap))
	if n == 0 {
		return 0, nil
	}
	if _, err := a.p.ReadAt(dst[:n], int64(addr)); err != nil {
		return 0, err
	}
	return n, nil
}

// WritePayload copies src into addr's payload, up to PayloadCapacity
// bytes, and returns the number of bytes copied.
func (a *Allocator) WritePayload(addr Addr, src []byte) (int, error) {
	if addr == 0 {
		return 0, &InvalidArgumentError{"Allocator.WritePayload: zero addr", addr}
	}
	cap, err := a.PayloadCapacity(addr)
	if err != nil {
		return 0, err
	}
	n := mathutil.Min(len(src), int(cap))
	if n == 0 {
		return 0, nil
	}
	if _, err := a.p.WriteAt(src[:n], int64(addr)); err != nil {
		return 0, err
	}
	return n, nil
}

// extendHeap grows the heap by (at least) n bytes, lays down a new free
// block over what was the epilogue header, writes a fresh epilogue after
// it, and coalesces the new block with whatever free block preceded it.
// It returns the address of the resulting free block.
func (a *Allocator) extendHeap(n int64) (Addr, error) {
	n = roundUp(n, DWordSize)

	var prevAlloc bool
	if a.cfg.Footers == ElidedFooters {
		_, _, pa, err := a.header(a.heapEnd)
		if err != nil {
			return 0, err
		}
		prevAlloc = pa
	} else {
		w, err := a.readWord(prevFooterAddr(a.heapEnd))
		if err != nil {
			return 0, err
		}
		prevAlloc = extractAlloc(w)
	}

	off, err := a.p.Grow(n)
	if err != nil {
		return 0, &HeapExhaustedError{n, err}
	}
	newBlock := a.heapEnd
	// The new bytes begin just past the old epilogue header word, which
	// newBlock's header overwrites.
	if Addr(off) != newBlock+WordSize {
		return 0, &CorruptHeapError{"Provider.Grow returned an unexpected offset", Addr(off)}
	}

	if err := a.writeHeader(newBlock, n, false, prevAlloc); err != nil {
		return 0, err
	}
	if err := a.writeFooter(newBlock, n, false, prevAlloc); err != nil {
		return 0, err
	}

	newEnd := newBlock + Addr(n)
	if err := a.writeHeader(newEnd, 0, true, false); err != nil {
		return 0, err
	}
	a.heapEnd = newEnd

	return a.coalesce(newBlock)
}

// setPrevAllocFlag rewrites the header at addr (a real block, or the
// epilogue) so its prevAlloc bit reads val, preserving size and alloc.
// Only meaningful under ElidedFooters, where a block's prevAlloc bit is
// the sole record of whether its predecessor's footer exists.
func (a *Allocator) setPrevAllocFlag(addr Addr, val bool) error {
	size, alloc, _, err := a.header(addr)
	if err != nil {
		return err
	}
	return a.writeHeader(addr, size, alloc, val)
}

// coalesce merges the free block at b with any free neighbours and, under
// ExplicitList, (re)inserts the resulting block into the free list. It
// returns the resulting block's address.
//
// Case 4 (both neighbours free) must remove both the previous and the
// next block from the free list before merging; the source this design
// is drawn from instead disconnects the previous block twice, leaving the
// next block's stale links in the list (spec.md §9 Open Question #1).
// This implementation removes each neighbour once.
func (a *Allocator) coalesce(b Addr) (Addr, error) {
	size, _, blockPrevAlloc, err := a.header(b)
	if err != nil {
		return 0, err
	}

	var prevAlloc bool
	var prevBlock Addr
	if a.cfg.Footers == ElidedFooters {
		prevAlloc = blockPrevAlloc
		if !prevAlloc {
			prevBlock, err = a.prevBlockBothSides(b)
			if err != nil {
				return 0, err
			}
		}
	} else {
		w, err := a.readWord(prevFooterAddr(b))
		if err != nil {
			return 0, err
		}
		prevAlloc = extractAlloc(w)
		if !prevAlloc {
			prevBlock = b - Addr(extractSize(w))
		}
	}

	next, err := a.nextBlock(b)
	if err != nil {
		return 0, err
	}
	_, nextAlloc, _, err := a.header(next) // epilogue's own header reads alloc=true
	if err != nil {
		return 0, err
	}

	switch {
	case prevAlloc && nextAlloc:
		return b, a.finishCoalesce(b)

	case prevAlloc && !nextAlloc:
		if a.cfg.FreeList == ExplicitList {
			if err := a.flRemove(next); err != nil {
				return 0, err
			}
		}
		a.invalidateRover(next)
		nextSize, _, _, err := a.header(next)
		if err != nil {
			return 0, err
		}
		if err := a.mergeInto(b, size+nextSize, prevAlloc); err != nil {
			return 0, err
		}
		return b, a.finishCoalesce(b)

	case !prevAlloc && nextAlloc:
		if a.cfg.FreeList == ExplicitList {
			if err := a.flRemove(prevBlock); err != nil {
				return 0, err
			}
		}
		a.invalidateRover(prevBlock)
		a.invalidateRover(b)
		prevSize, _, prevPrevAlloc, err := a.header(prevBlock)
		if err != nil {
			return 0, err
		}
		if err := a.mergeInto(prevBlock, prevSize+size, prevPrevAlloc); err != nil {
			return 0, err
		}
		return prevBlock, a.finishCoalesce(prevBlock)

	default: // both free
		if a.cfg.FreeList == ExplicitList {
			if err := a.flRemove(prevBlock); err != nil {
				return 0, err
			}
			if err := a.flRemove(next); err != nil {
				return 0, err
			}
		}
		a.invalidateRover(prevBlock)
		a.invalidateRover(b)
		a.invalidateRover(next)
		prevSize, _, prevPrevAlloc, err := a.header(prevBlock)
		if err != nil {
			return 0, err
		}
		nextSize, _, _, err := a.header(next)
		if err != nil {
			return 0, err
		}
		if err := a.mergeInto(prevBlock, prevSize+size+nextSize, prevPrevAlloc); err != nil {
			return 0, err
		}
		return prevBlock, a.finishCoalesce(prevBlock)
	}
}

// mergeInto rewrites the header and footer of the merged free block
// starting at dst, and updates the following block's prevAlloc bit
// (ElidedFooters only) to reflect that dst is now free.
func (a *Allocator) mergeInto(dst Addr, newSize int64, prevAlloc bool) error {
	if err := a.writeHeader(dst, newSize, false, prevAlloc); err != nil {
		return err
	}
	if err := a.writeFooter(dst, newSize, false, prevAlloc); err != nil {
		return err
	}
	if a.cfg.Footers == ElidedFooters {
		if err := a.setPrevAllocFlag(dst+Addr(newSize), false); err != nil {
			return err
		}
	}
	return nil
}

// finishCoalesce inserts the merged free block into the free list, under
// ExplicitList only.
func (a *Allocator) finishCoalesce(b Addr) error {
	if a.cfg.FreeList != ExplicitList {
		return nil
	}
	return a.flInsert(b)
}
