// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import "fmt"

// InvalidArgumentError reports a caller-supplied argument that cannot be
// honoured, such as an out-of-range address or a malformed Config.
type InvalidArgumentError struct {
	Msg string
	Arg interface{}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("halloc: invalid argument: %s: %v", e.Msg, e.Arg)
}

// CorruptHeapError reports that the heap's internal bookkeeping failed
// an invariant check: a header/footer mismatch, an unexpected tag, or a
// free-list link pointing outside the list. It is what Verify reports;
// extendHeap and address-ordered free-list insertion also return it when
// they meet an inconsistent heap.
type CorruptHeapError struct {
	Msg string
	Off Addr
}

func (e *CorruptHeapError) Error() string {
	return fmt.Sprintf("halloc: corrupt heap at %#x: %s", int64(e.Off), e.Msg)
}

// HeapExhaustedError reports that the Provider refused to grow the heap
// any further.
type HeapExhaustedError struct {
	Requested int64
	Cause     error
}

func (e *HeapExhaustedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("halloc: cannot grow heap by %d bytes: %v", e.Requested, e.Cause)
	}
	return fmt.Sprintf("halloc: cannot grow heap by %d bytes", e.Requested)
}

func (e *HeapExhaustedError) Unwrap() error { return e.Cause }

// DoubleFreeError is the value panic carries when Free or Reallocate is
// called on an address whose block header reports it not allocated.
// spec.md treats this as a fatal programmer error ("a diagnostic is
// emitted and the process exits"); a library must not call os.Exit on
// its host process, so the Go translation is a panic instead — see
// DESIGN.md.
type DoubleFreeError struct {
	Addr Addr
}

func (e *DoubleFreeError) Error() string {
	return fmt.Sprintf("halloc: Free/Reallocate called on non-allocated block at %#x", int64(e.Addr))
}
