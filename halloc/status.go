// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import (
	"fmt"
	"io"
)

// Member names one author of an Allocator variant, mirroring the
// original lab's team_t identification block. It carries no behaviour;
// Allocator never reads it.
type Member struct {
	Name  string
	Email string
}

// Team names the authors of an Allocator variant.
type Team struct {
	Name    string
	Members []Member
}

// Status writes one line per block to w, in heap address order: its
// address, size, allocation state, prevAlloc bit, and — for a free block
// under ExplicitList — its free-list neighbours. It is meant for
// debugging a misbehaving variant, not for parsing.
func (a *Allocator) Status(w io.Writer) error {
	fmt.Fprintf(w, "heap [%#x, %#x) chunk=%d fit=%d insert=%d footers=%d freelist=%d\n",
		int64(a.heapStart), int64(a.heapEnd), a.cfg.ChunkSize, a.cfg.Fit, a.cfg.Insert, a.cfg.Footers, a.cfg.FreeList)

	b := a.heapStart
	for b != a.heapEnd {
		size, alloc, prevAlloc, err := a.header(b)
		if err != nil {
			return err
		}
		state := "free"
		if alloc {
			state = "alloc"
		}
		line := fmt.Sprintf("  %#08x size=%-6d %-5s prevAlloc=%v", int64(b), size, state, prevAlloc)
		if !alloc && a.cfg.FreeList == ExplicitList {
			prev, err := a.flPrev(b)
			if err != nil {
				return err
			}
			next, err := a.flNext(b)
			if err != nil {
				return err
			}
			line += fmt.Sprintf(" fl{prev=%#x next=%#x}", int64(prev), int64(next))
		}
		fmt.Fprintln(w, line)

		next, err := a.nextBlock(b)
		if err != nil {
			return err
		}
		b = next
	}
	fmt.Fprintf(w, "  %#08x epilogue\n", int64(a.heapEnd))
	return nil
}
