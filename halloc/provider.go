// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The heap provider: the external collaborator Allocator grows its
// backing storage through. Adapted from lldb's Filer (filer.go,
// memfiler.go, osfiler.go) — narrowed to the subset spec.md's external
// interface actually names (grow_heap/heap_limit) plus the ReadAt/WriteAt
// a byte-granular allocator needs to get at header and payload words.

package halloc

import (
	"io"
	"os"

	"github.com/cznic/mathutil"
)

// Provider is a []byte-like model of the storage an Allocator grows into.
// It is not safe for concurrent access; an Allocator uses one Provider
// from one goroutine at a time, matching spec.md §5 (no internal
// synchronization).
type Provider interface {
	// Size returns the current size of the region in bytes
	// (spec.md's heap_limit, relative to the Provider's own origin).
	Size() int64

	// Grow extends the region by n bytes and returns the offset at
	// which the new bytes begin. n is always already rounded to a
	// multiple of DWordSize by the caller. Grow must not move or
	// invalidate any byte at an offset below the old Size().
	Grow(n int64) (off int64, err error)

	// ReadAt and WriteAt address absolute offsets from the region's
	// start, as io.ReaderAt/io.WriterAt, but never return io.EOF: a
	// short read/write past Size is a caller bug, reported as an error.
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
}

const (
	pgBits = 12
	pgSize = 1 << pgBits
	pgMask = pgSize - 1
)

var zeroPage [pgSize]byte

// MemProvider is an in-memory Provider. It is adapted from lldb's
// MemFiler: storage is a map of fixed-size pages keyed by page index, so
// that Grow — which in Go would otherwise risk a reallocating append
// relocating every byte already handed out as a payload — never moves a
// page already in the map; it only adds new ones.
type MemProvider struct {
	pages map[int64]*[pgSize]byte
	size  int64
}

var _ Provider = (*MemProvider)(nil)

// NewMemProvider returns an empty MemProvider.
func NewMemProvider() *MemProvider {
	return &MemProvider{pages: map[int64]*[pgSize]byte{}}
}

// Size implements Provider.
func (f *MemProvider) Size() int64 { return f.size }

// Grow implements Provider.
func (f *MemProvider) Grow(n int64) (int64, error) {
	if n < 0 {
		return 0, &InvalidArgumentError{"MemProvider.Grow: negative n", n}
	}
	off := f.size
	f.size += n
	return off, nil
}

// ReadAt implements Provider.
func (f *MemProvider) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, &InvalidArgumentError{"MemProvider.ReadAt: out of range", off}
	}

	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := len(p)
	for rem != 0 {
		pg := f.pages[pgI]
		if pg == nil {
			pg = &zeroPage
		}
		nc := copy(p[n:n+mathutil.Min(rem, pgSize-pgO)], pg[pgO:])
		pgI++
		pgO = 0
		rem -= nc
		n += nc
	}
	return n, nil
}

// WriteAt implements Provider.
func (f *MemProvider) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, &InvalidArgumentError{"MemProvider.WriteAt: out of range", off}
	}

	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := len(p)
	for rem != 0 {
		pg := f.pages[pgI]
		if pg == nil {
			pg = new([pgSize]byte)
			f.pages[pgI] = pg
		}
		nc := copy(pg[pgO:], p[n:n+mathutil.Min(rem, pgSize-pgO)])
		pgI++
		pgO = 0
		rem -= nc
		n += nc
	}
	return n, nil
}

// FileProvider is a Provider backed by an *os.File, adapted from lldb's
// OSFiler/SimpleFileFiler. It lets the same Allocator bookkeeping persist
// across process restarts, which spec.md's in-memory design never
// requires but does not forbid either.
type FileProvider struct {
	f    *os.File
	size int64
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider returns a FileProvider backed by f. f MUST be
// positioned so that f's current size is the heap's current size (zero
// for a brand new file).
func NewFileProvider(f *os.File) (*FileProvider, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &FileProvider{f: f, size: fi.Size()}, nil
}

// Size implements Provider.
func (f *FileProvider) Size() int64 { return f.size }

// Grow implements Provider.
func (f *FileProvider) Grow(n int64) (int64, error) {
	if n < 0 {
		return 0, &InvalidArgumentError{"FileProvider.Grow: negative n", n}
	}
	off := f.size
	if err := f.f.Truncate(off + n); err != nil {
		return 0, err
	}
	f.size += n
	return off, nil
}

// ReadAt implements Provider.
func (f *FileProvider) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, &InvalidArgumentError{"FileProvider.ReadAt: out of range", off}
	}
	n, err := f.f.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	return n, err
}

// WriteAt implements Provider.
func (f *FileProvider) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, &InvalidArgumentError{"FileProvider.WriteAt: out of range", off}
	}
	return f.f.WriteAt(p, off)
}

// Close closes the underlying file.
func (f *FileProvider) Close() error { return f.f.Close() }
