// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import "encoding/binary"

// readWord and writeWord store header/footer/free-list-link words in
// network byte order, the same convention lldb's FLT slots use for their
// on-disk handles (flt.go's h2b/b2h).
func (a *Allocator) readWord(off Addr) (uint64, error) {
	var b [WordSize]byte
	if _, err := a.p.ReadAt(b[:], int64(off)); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (a *Allocator) writeWord(off Addr, w uint64) error {
	var b [WordSize]byte
	binary.BigEndian.PutUint64(b[:], w)
	_, err := a.p.WriteAt(b[:], int64(off))
	return err
}

// header reads the block's header word.
func (a *Allocator) header(b Addr) (size int64, alloc, prevAlloc bool, err error) {
	w, err := a.readWord(b)
	if err != nil {
		return 0, false, false, err
	}
	size, alloc, prevAlloc = unpack(w)
	return
}

// writeHeader overwrites a block's header word in its entirety.
func (a *Allocator) writeHeader(b Addr, size int64, alloc, prevAlloc bool) error {
	return a.writeWord(b, pack(size, alloc, prevAlloc))
}

// footer reads the footer word of block b, assumed present.
func (a *Allocator) footer(b Addr, size int64) (int64, bool, bool, error) {
	w, err := a.readWord(b + Addr(size) - WordSize)
	if err != nil {
		return 0, false, false, err
	}
	sz, alloc, prevAlloc := unpack(w)
	return sz, alloc, prevAlloc, nil
}

// writeFooter overwrites the trailing word of a size-sized block
// starting at b.
func (a *Allocator) writeFooter(b Addr, size int64, alloc, prevAlloc bool) error {
	return a.writeWord(b+Addr(size)-WordSize, pack(size, alloc, prevAlloc))
}

// payload returns the address of block b's payload.
func payload(b Addr) Addr { return b + WordSize }

// blockFromPayload is payload's inverse.
func blockFromPayload(p Addr) Addr { return p - WordSize }

// nextBlock returns the address of the block immediately following b,
// valid for every block including the one just before the epilogue.
func (a *Allocator) nextBlock(b Addr) (Addr, error) {
	size, _, _, err := a.header(b)
	if err != nil {
		return 0, err
	}
	return b + Addr(size), nil
}

// prevFooterAddr returns where the previous block's footer would sit,
// valid for every block except the heap's first (where the prologue
// footer occupies that slot, which callers may still read: the prologue
// is permanently allocated).
func prevFooterAddr(b Addr) Addr { return b - WordSize }

// prevBlockBothSides computes the previous block's address by reading
// its footer, valid only under BothSidesFooters (or, under
// ElidedFooters, only when the caller has already established the
// previous block is free and therefore does carry a footer).
func (a *Allocator) prevBlockBothSides(b Addr) (Addr, error) {
	w, err := a.readWord(prevFooterAddr(b))
	if err != nil {
		return 0, err
	}
	return b - Addr(extractSize(w)), nil
}
