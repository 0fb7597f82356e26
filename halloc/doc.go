// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package halloc implements "raw" storage space management (allocation and
deallocation) for a single, contiguous, monotonically growing byte region
obtained from a Provider.

The terms MUST or MUST NOT, if/where used in the documentation of
Allocator, written in all caps as seen here, are a requirement for any
possible alternative implementation aiming for compatibility with this
one.

Heap region

The heap region is `[base, limit)`, a byte sequence of length a multiple
of the double-word size D (16 bytes on the only supported layout). It is
laid out as

	[ prologue footer | block0 | block1 | ... | epilogue header ]

The prologue footer and the epilogue header are one-word, permanently
allocated, zero-size sentinels that eliminate edge cases in block
navigation. There is no separate prologue header word: block0's header
sits at offset WordSize.

Blocks

A block is the unit of allocation. Every block occupies a size that is a
positive multiple of D and holds, in order: a header word, a payload
region, and (depending on the footer policy and the block's alloc state)
a trailing footer word. A free block's first two payload words double as
its free-list link pair when FreeListMode is ExplicitList.

Three variants

This package builds three historically distinct designs from one
Config:

  - Implicit list, both-sides footers: every block, free or allocated,
    carries a footer. find_prev always works by reading it.
  - Implicit list, elided footers: only free blocks carry a footer;
    allocated blocks gain one word of payload by omitting theirs, and
    each header instead carries a prevAlloc bit.
  - Explicit free list: both-sides footers, plus a circular doubly
    linked free list threaded through free blocks' payloads, giving
    O(1) (LIFO/FIFO) or O(n) address-ordered insertion instead of an
    O(n) heap walk on every placement.

Placement policy (FirstFit, NextFit, BestFit) is orthogonal to all
three and selected independently.
*/
package halloc
