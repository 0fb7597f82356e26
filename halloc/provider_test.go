// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMemProviderGrowDoesNotRelocate exercises the property MemProvider
// exists for: bytes already written below Size() must stay put across a
// Grow spanning many pages, since an Allocator may be holding payload
// addresses into them.
func TestMemProviderGrowDoesNotRelocate(t *testing.T) {
	f := NewMemProvider()
	off, err := f.Grow(pgSize)
	require.NoError(t, err)
	require.EqualValues(t, 0, off)

	want := []byte("the first page's sentinel bytes")
	_, err = f.WriteAt(want, 0)
	require.NoError(t, err)

	off, err = f.Grow(4 * pgSize)
	require.NoError(t, err)
	require.EqualValues(t, pgSize, off)

	got := make([]byte, len(want))
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMemProviderReadsUnwrittenPagesAsZero(t *testing.T) {
	f := NewMemProvider()
	_, err := f.Grow(2 * pgSize)
	require.NoError(t, err)

	got := make([]byte, pgSize)
	_, err = f.ReadAt(got, pgSize)
	require.NoError(t, err)
	for _, b := range got {
		require.Zero(t, b)
	}
}

func TestMemProviderOutOfRange(t *testing.T) {
	f := NewMemProvider()
	_, err := f.Grow(WordSize)
	require.NoError(t, err)

	_, err = f.ReadAt(make([]byte, WordSize+1), 0)
	require.Error(t, err)

	_, err = f.WriteAt(make([]byte, 1), -1)
	require.Error(t, err)
}
