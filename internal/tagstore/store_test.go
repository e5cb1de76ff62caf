// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tagstore

import (
	"errors"
	"testing"

	"github.com/opendax/daxd/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(types.New())
	require.NoError(t, err)
	return s
}

func TestNewCreatesStatusTagAtIndexZero(t *testing.T) {
	s := newTestStore(t)
	name, typ, count, err := s.GetByIndex(StatusTagIndex)
	require.NoError(t, err)
	require.Equal(t, "_status", name)
	require.Equal(t, 1, count)
	require.True(t, typ&types.CustomTypeBit != 0)
}

func TestAddCreatesNewTag(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("Speed", types.DINT, 1)
	require.NoError(t, err)
	require.Equal(t, 1, idx) // status tag occupies 0

	name, typ, count, err := s.GetByIndex(idx)
	require.NoError(t, err)
	require.Equal(t, "Speed", name)
	require.Equal(t, types.DINT, typ)
	require.Equal(t, 1, count)
}

func TestAddIsIdempotentForIdenticalSize(t *testing.T) {
	s := newTestStore(t)
	i1, err := s.Add("Flags", types.BOOL, 16)
	require.NoError(t, err)
	i2, err := s.Add("Flags", types.BOOL, 16)
	require.NoError(t, err)
	require.Equal(t, i1, i2)
}

func TestAddGrowsExistingTagOnLargerCount(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("Buf", types.DINT, 2)
	require.NoError(t, err)

	require.NoError(t, s.Write(idx, 0, []byte{1, 2, 3, 4}))

	idx2, err := s.Add("Buf", types.DINT, 4)
	require.NoError(t, err)
	require.Equal(t, idx, idx2)

	got, err := s.Read(idx, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got)

	tail, err := s.Read(idx, 4, 8)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), tail)
}

func TestAddRejectsTypeMismatchOnDuplicateName(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("X", types.DINT, 1)
	require.NoError(t, err)

	_, err = s.Add("X", types.REAL, 1)
	require.True(t, errors.Is(err, types.ErrDuplicate))
}

func TestAddDuplicateDetectionIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	i1, err := s.Add("Motor", types.BOOL, 1)
	require.NoError(t, err)

	i2, err := s.Add("MOTOR", types.BOOL, 1)
	require.NoError(t, err)
	require.Equal(t, i1, i2)
}

func TestGetByNameIsCaseSensitive(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("Motor", types.BOOL, 1)
	require.NoError(t, err)

	_, _, _, err = s.GetByName("Motor")
	require.NoError(t, err)

	_, _, _, err = s.GetByName("motor")
	require.True(t, errors.Is(err, types.ErrNotFound))
}

func TestAddRejectsInvalidNames(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("1bad", types.DINT, 1)
	require.True(t, errors.Is(err, types.ErrArg))

	_, err = s.Add("bad name", types.DINT, 1)
	require.True(t, errors.Is(err, types.ErrArg))
}

func TestAddRejectsZeroCount(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("Z", types.DINT, 0)
	require.True(t, errors.Is(err, types.ErrArg))
}

func TestBoolByteSizeRoundsUp(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("Bits", types.BOOL, 9)
	require.NoError(t, err)
	require.Equal(t, 2, s.tagAt(idx).ByteSize())
}

func TestAllocFailureRollsBack(t *testing.T) {
	s, err := NewWithCapacity(types.New(), 1, 1)
	require.NoError(t, err) // status tag alone fills the capacity

	_, err = s.Add("Overflow", types.DINT, 1)
	require.True(t, errors.Is(err, types.ErrAlloc))
	require.Equal(t, 1, s.Count())
}

func TestForEachVisitsAllTagsInIndexOrder(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Add("A", types.DINT, 1)
	_, _ = s.Add("B", types.DINT, 1)

	var seen []string
	s.ForEach(func(index int, name string, typ types.ID, count int) {
		seen = append(seen, name)
	})
	require.Equal(t, []string{"_status", "A", "B"}, seen)
}
