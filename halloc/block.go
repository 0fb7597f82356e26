// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

// Addr is a byte offset into the heap region owned by an Allocator. Addr
// zero never refers to a real block or payload: it is the address of
// the one-word prologue footer, and the heap's first block header sits
// at offset WordSize, with its payload at DWordSize. Zero is therefore
// used as the "none" sentinel for a payload pointer, a free-list link,
// and the roving next-fit cursor.
type Addr int64

const (
	// WordSize is the size in bytes of a header/footer word.
	WordSize = 8
	// DWordSize is the heap's alignment granularity: every block size
	// and every payload address is a multiple of this.
	DWordSize = 2 * WordSize
	// MinBlockSize is the smallest legal block: one header word, two
	// payload words (room for a free-list link pair once the block is
	// free), and one footer word.
	MinBlockSize = 4 * WordSize

	allocMask     = 0x1
	prevAllocMask = 0x2
	sizeMask      = ^uint64(0xF)
)

// pack returns a header/footer word reflecting size, alloc and
// prevAlloc. size MUST be a non-negative multiple of DWordSize; its low
// 4 bits are assumed zero and are overwritten by the flag bits.
func pack(size int64, alloc, prevAlloc bool) uint64 {
	w := uint64(size)
	if alloc {
		w |= allocMask
	}
	if prevAlloc {
		w |= prevAllocMask
	}
	return w
}

// unpack is the inverse of pack.
func unpack(w uint64) (size int64, alloc, prevAlloc bool) {
	return int64(w & sizeMask), w&allocMask != 0, w&prevAllocMask != 0
}

func extractSize(w uint64) int64     { return int64(w & sizeMask) }
func extractAlloc(w uint64) bool     { return w&allocMask != 0 }
func extractPrevAlloc(w uint64) bool { return w&prevAllocMask != 0 }

// roundUp rounds size up to the next multiple of n. n MUST be a power of
// two.
func roundUp(size, n int64) int64 {
	return (size + n - 1) &^ (n - 1)
}
