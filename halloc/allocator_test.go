// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, cfg Config) *Allocator {
	t.Helper()
	a, err := New(NewMemProvider(), cfg)
	require.NoError(t, err)
	return a
}

func verifyClean(t *testing.T, a *Allocator) *Stats {
	t.Helper()
	var defects []error
	st, err := a.Verify(func(e error) bool {
		defects = append(defects, e)
		return true
	})
	require.NoError(t, err)
	require.Empty(t, defects, "%v", defects)
	return st
}

func allConfigs() []Config {
	return []Config{
		{Footers: BothSidesFooters, FreeList: ImplicitList, Fit: FirstFit, ChunkSize: DefaultChunkSize},
		{Footers: BothSidesFooters, FreeList: ImplicitList, Fit: BestFit, ChunkSize: DefaultChunkSize},
		{Footers: BothSidesFooters, FreeList: ImplicitList, Fit: NextFit, ChunkSize: DefaultChunkSize},
		{Footers: ElidedFooters, FreeList: ImplicitList, Fit: FirstFit, ChunkSize: DefaultChunkSize},
		{Footers: BothSidesFooters, FreeList: ExplicitList, Fit: FirstFit, Insert: LIFO, ChunkSize: DefaultChunkSize},
		{Footers: BothSidesFooters, FreeList: ExplicitList, Fit: FirstFit, Insert: FIFO, ChunkSize: DefaultChunkSize},
		{Footers: BothSidesFooters, FreeList: ExplicitList, Fit: BestFit, Insert: AddressOrdered, ChunkSize: DefaultChunkSize},
	}
}

// TestAllocateReturnsAlignedDistinctPayloads is testable property #1/#5:
// every payload address is DWordSize-aligned and no two live allocations
// share a payload address.
func TestAllocateReturnsAlignedDistinctPayloads(t *testing.T) {
	for _, cfg := range allConfigs() {
		a := newTestAllocator(t, cfg)
		seen := map[Addr]bool{}
		for _, sz := range []int64{1, 8, 16, 64, 100, 4096} {
			p, err := a.Allocate(sz)
			require.NoError(t, err)
			require.NotZero(t, p)
			require.EqualValues(t, 0, int64(p)%DWordSize)
			require.False(t, seen[p])
			seen[p] = true
			cap, err := a.PayloadCapacity(p)
			require.NoError(t, err)
			require.GreaterOrEqual(t, cap, sz)
		}
		verifyClean(t, a)
	}
}

// TestAllocateZeroReturnsNone is a testable property: Allocate(0) is a
// no-op that hands back the none sentinel.
func TestAllocateZeroReturnsNone(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	p, err := a.Allocate(0)
	require.NoError(t, err)
	require.Zero(t, p)
}

func TestAllocateNegativeSizeErrors(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	_, err := a.Allocate(-1)
	require.Error(t, err)
	require.IsType(t, &InvalidArgumentError{}, err)
}

// TestFreeThenAllocateReusesSpace checks that freeing a block makes its
// space available to a subsequent allocation of compatible size, for
// every variant.
func TestFreeThenAllocateReusesSpace(t *testing.T) {
	for _, cfg := range allConfigs() {
		a := newTestAllocator(t, cfg)
		p1, err := a.Allocate(64)
		require.NoError(t, err)
		require.NoError(t, a.Free(p1))
		verifyClean(t, a)

		p2, err := a.Allocate(64)
		require.NoError(t, err)
		require.Equal(t, p1, p2, "freed block should be reused by an equal-sized request")
		verifyClean(t, a)
	}
}

// TestWriteReadPayloadRoundTrip exercises the copy-in/copy-out accessors.
func TestWriteReadPayloadRoundTrip(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	p, err := a.Allocate(32)
	require.NoError(t, err)

	want := []byte("0123456789abcdef0123456789abcde")
	n, err := a.WritePayload(p, want)
	require.NoError(t, err)
	require.Equal(t, len(want), n)

	got := make([]byte, len(want))
	n, err = a.ReadPayload(p, got)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	require.Equal(t, want, got)
}

// TestReallocateGrowPreservesContent is a testable property: growing a
// block via Reallocate preserves its existing bytes.
func TestReallocateGrowPreservesContent(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	p, err := a.Allocate(16)
	require.NoError(t, err)
	want := []byte("0123456789abcdef")
	_, err = a.WritePayload(p, want)
	require.NoError(t, err)

	p2, err := a.Reallocate(p, 256)
	require.NoError(t, err)
	require.NotZero(t, p2)

	got := make([]byte, len(want))
	_, err = a.ReadPayload(p2, got)
	require.NoError(t, err)
	require.Equal(t, want, got)
	verifyClean(t, a)
}

func TestReallocateToZeroFrees(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	p, err := a.Allocate(32)
	require.NoError(t, err)

	p2, err := a.Reallocate(p, 0)
	require.NoError(t, err)
	require.Zero(t, p2)
	verifyClean(t, a)
}

func TestReallocateFromZeroAllocates(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	p, err := a.Reallocate(0, 32)
	require.NoError(t, err)
	require.NotZero(t, p)
}

// TestFreeDoubleFreePanics checks the resolution of spec.md §9's fatal
// "free of a non-allocated block": the library panics rather than
// exiting the process.
func TestFreeDoubleFreePanics(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	p, err := a.Allocate(32)
	require.NoError(t, err)
	require.NoError(t, a.Free(p))

	require.PanicsWithValue(t, &DoubleFreeError{p}, func() {
		_ = a.Free(p)
	})
}

func TestFreeNilIsNoOp(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	require.NoError(t, a.Free(0))
}

// TestCoalesceCases exercises all four neighbour-freedom combinations for
// every variant, checking via Verify that no two adjacent
// free blocks ever survive.
func TestCoalesceCases(t *testing.T) {
	for _, cfg := range allConfigs() {
		a := newTestAllocator(t, cfg)

		p1, err := a.Allocate(64)
		require.NoError(t, err)
		p2, err := a.Allocate(64)
		require.NoError(t, err)
		p3, err := a.Allocate(64)
		require.NoError(t, err)

		// case 1: both neighbours allocated.
		require.NoError(t, a.Free(p2))
		verifyClean(t, a)

		// case 3/2 depending on order: free p1, its only free
		// neighbour (the gap left by p2) is to its right.
		require.NoError(t, a.Free(p1))
		verifyClean(t, a)

		// case 4: free p3 too, merging the whole run, including the
		// trailing free block extend_heap produced.
		require.NoError(t, a.Free(p3))
		st := verifyClean(t, a)
		require.EqualValues(t, 1, st.FreeBlocks, "every free region should have merged into one")
	}
}

// TestSplitLeavesMinimumBlockSize checks that splitting never creates a
// free remainder smaller than MinBlockSize (spec.md §3.2.3 / §4.8).
func TestSplitLeavesMinimumBlockSize(t *testing.T) {
	a := newTestAllocator(t, DefaultConfig())
	p, err := a.Allocate(DefaultChunkSize - 200)
	require.NoError(t, err)
	require.NotZero(t, p)
	verifyClean(t, a)
}

// TestNextFitRoverSurvivesCoalesce drives the NextFit placer through a
// free/coalesce cycle that invalidates its cursor, then confirms
// allocation still succeeds and the heap stays sound.
func TestNextFitRoverSurvivesCoalesce(t *testing.T) {
	cfg := Config{Footers: BothSidesFooters, FreeList: ImplicitList, Fit: NextFit, ChunkSize: DefaultChunkSize}
	a := newTestAllocator(t, cfg)

	ptrs := make([]Addr, 6)
	var err error
	for i := range ptrs {
		ptrs[i], err = a.Allocate(64)
		require.NoError(t, err)
	}
	// Advance the rover by allocating and freeing around the middle.
	require.NoError(t, a.Free(ptrs[2]))
	require.NoError(t, a.Free(ptrs[3]))
	verifyClean(t, a)

	p, err := a.Allocate(64)
	require.NoError(t, err)
	require.NotZero(t, p)
	verifyClean(t, a)
}

// TestNextFitWrapsToFindEarlierFreeBlock is spec.md's S5: once the rover
// has passed every free block without finding a fit, a full wrap-around
// must still land on an eligible block that lies before it, rather than
// reporting "no fit" and growing the heap unnecessarily.
func TestNextFitWrapsToFindEarlierFreeBlock(t *testing.T) {
	cfg := Config{Footers: BothSidesFooters, FreeList: ImplicitList, Fit: NextFit, ChunkSize: DefaultChunkSize}
	a := newTestAllocator(t, cfg)

	ptrs := make([]Addr, 5)
	var err error
	for i := range ptrs {
		ptrs[i], err = a.Allocate(64) // block size 80 each
		require.NoError(t, err)
	}
	// Consume the rest of the initial chunk so the rover, left pointing
	// just past this allocation, sits at the epilogue with no eligible
	// block ahead of it.
	_, err = a.Allocate(DefaultChunkSize - 5*80 - DWordSize)
	require.NoError(t, err)

	// The only free block left is now behind the rover.
	require.NoError(t, a.Free(ptrs[0]))
	freeBlock := blockFromPayload(ptrs[0])

	p, err := a.Allocate(64)
	require.NoError(t, err)
	require.Equal(t, payload(freeBlock), p, "wrap-around search skipped an eligible free block")
	verifyClean(t, a)
}

// TestBestFitChoosesMinimalBlock is spec.md's S6: given free blocks of
// sizes {32, 64, 128}, a request of 40 bytes must choose the 64-byte
// block, not the larger 128-byte one.
func TestBestFitChoosesMinimalBlock(t *testing.T) {
	cfg := Config{Footers: BothSidesFooters, FreeList: ImplicitList, Fit: BestFit, ChunkSize: DefaultChunkSize}
	a := newTestAllocator(t, cfg)

	p32, err := a.Allocate(16) // block size 32
	require.NoError(t, err)
	_, err = a.Allocate(16) // spacer, keeps p32 from coalescing with p64
	require.NoError(t, err)
	p64, err := a.Allocate(48) // block size 64
	require.NoError(t, err)
	_, err = a.Allocate(16) // spacer, keeps p64 from coalescing with p128
	require.NoError(t, err)
	p128, err := a.Allocate(112) // block size 128
	require.NoError(t, err)
	_, err = a.Allocate(16) // spacer, keeps p128 from coalescing with the chunk's free tail
	require.NoError(t, err)

	require.NoError(t, a.Free(p32))
	require.NoError(t, a.Free(p64))
	require.NoError(t, a.Free(p128))
	verifyClean(t, a)

	got, err := a.Allocate(40)
	require.NoError(t, err)
	require.Equal(t, p64, got, "best-fit must choose the 64-byte block over the larger 128-byte one")
}

func TestExplicitListAddressOrderedStaysSorted(t *testing.T) {
	cfg := Config{Footers: BothSidesFooters, FreeList: ExplicitList, Fit: BestFit, Insert: AddressOrdered, ChunkSize: DefaultChunkSize}
	a := newTestAllocator(t, cfg)

	ptrs := make([]Addr, 5)
	var err error
	for i := range ptrs {
		ptrs[i], err = a.Allocate(64)
		require.NoError(t, err)
	}
	// Free out of address order.
	require.NoError(t, a.Free(ptrs[3]))
	require.NoError(t, a.Free(ptrs[0]))
	require.NoError(t, a.Free(ptrs[4]))
	require.NoError(t, a.Free(ptrs[1]))

	var addrs []Addr
	require.NoError(t, a.flWalk(func(b Addr) (bool, error) {
		addrs = append(addrs, b)
		return true, nil
	}))
	for i := 1; i < len(addrs); i++ {
		require.Less(t, addrs[i-1], addrs[i])
	}
	verifyClean(t, a)
}

func TestNewRejectsNonEmptyProvider(t *testing.T) {
	p := NewMemProvider()
	_, err := p.Grow(WordSize)
	require.NoError(t, err)
	_, err = New(p, DefaultConfig())
	require.Error(t, err)
}

func TestConfigValidateRejectsExplicitListWithElidedFooters(t *testing.T) {
	cfg := Config{Footers: ElidedFooters, FreeList: ExplicitList}
	_, err := New(NewMemProvider(), cfg)
	require.Error(t, err)
}
