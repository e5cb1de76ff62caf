// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package events

import (
	"testing"

	"github.com/opendax/daxd/internal/types"
	"github.com/stretchr/testify/require"
)

func addSub(t *testing.T, l *List, args AddArgs, tk types.Kind, current []byte) (uint32, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	args.Notify = sink
	id, err := l.Add(args, tk, current)
	require.NoError(t, err)
	return id, sink
}

type recordingSink struct{ records []Record }

func (s *recordingSink) Send(rec Record) error {
	s.records = append(s.records, rec)
	return nil
}
func (s *recordingSink) ID() string { return "test" }

func TestDispatchWriteFiresOnAnyOverlappingWrite(t *testing.T) {
	l := NewList()
	_, sink := addSub(t, l, AddArgs{Range: Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT}, Kind: Write}, types.KindSigned, nil)

	buf := make([]byte, 4)
	Dispatch(l, 0, buf, 0, 4)
	require.Len(t, sink.records, 1)
}

func TestDispatchWriteDoesNotFireOutsideRange(t *testing.T) {
	l := NewList()
	_, sink := addSub(t, l, AddArgs{Range: Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT}, Kind: Write}, types.KindSigned, nil)

	buf := make([]byte, 8)
	Dispatch(l, 0, buf, 4, 4)
	require.Empty(t, sink.records)
}

func TestDispatchChangeOnlyRestrictsToOverlap(t *testing.T) {
	l := NewList()
	initial := []byte{0, 0}
	_, sink := addSub(t, l, AddArgs{Range: Range{Byte: 0, Size: 2, Count: 2, Datatype: types.SINT}, Kind: Change}, types.KindSigned, initial)

	buf := []byte{0, 9}
	// Write only touches byte 0, which did not change; byte 1 changed but
	// is outside the write's range and must not be scanned.
	Dispatch(l, 0, buf, 0, 1)
	require.Empty(t, sink.records, "change outside the write's overlap must not fire")

	Dispatch(l, 0, buf, 1, 1)
	require.Len(t, sink.records, 1, "change within the write's overlap must fire")
}

func TestDispatchSetFiresOnRisingEdgeAndRearms(t *testing.T) {
	l := NewList()
	_, sink := addSub(t, l, AddArgs{Range: Range{Byte: 0, Bit: 0, Size: 1, Count: 1, Datatype: types.BOOL}, Kind: Set}, types.KindBool, nil)

	Dispatch(l, 0, []byte{0b0000_0001}, 0, 1)
	require.Len(t, sink.records, 1)

	Dispatch(l, 0, []byte{0b0000_0001}, 0, 1)
	require.Len(t, sink.records, 1, "must not refire while bit stays set")

	Dispatch(l, 0, []byte{0b0000_0000}, 0, 1)
	require.Len(t, sink.records, 1, "clearing must not fire SET")

	Dispatch(l, 0, []byte{0b0000_0001}, 0, 1)
	require.Len(t, sink.records, 2, "re-arms after returning to 0")
}

func TestDispatchEqualFiresOnEdgeIntoMatch(t *testing.T) {
	l := NewList()
	_, sink := addSub(t, l, AddArgs{
		Range: Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT}, Kind: Equal, Data: 42,
	}, types.KindSigned, nil)

	Dispatch(l, 0, encodeI32(7), 0, 4)
	require.Empty(t, sink.records)

	Dispatch(l, 0, encodeI32(42), 0, 4)
	require.Len(t, sink.records, 1)

	Dispatch(l, 0, encodeI32(42), 0, 4)
	require.Len(t, sink.records, 1, "must not refire while still equal")
}

func TestDispatchGreaterAndLess(t *testing.T) {
	l := NewList()
	_, gSink := addSub(t, l, AddArgs{
		Range: Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT}, Kind: Greater, Data: 10,
	}, types.KindSigned, nil)
	_, lSink := addSub(t, l, AddArgs{
		Range: Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT}, Kind: Less, Data: 10,
	}, types.KindSigned, nil)

	Dispatch(l, 0, encodeI32(20), 0, 4)
	require.Len(t, gSink.records, 1)
	require.Empty(t, lSink.records)

	Dispatch(l, 0, encodeI32(1), 0, 4)
	require.Len(t, lSink.records, 1)
}

func TestDispatchDeadband(t *testing.T) {
	l := NewList()
	initial := encodeI32(100)
	_, sink := addSub(t, l, AddArgs{
		Range: Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT}, Kind: Deadband, Deadband: 5,
	}, types.KindSigned, initial)

	Dispatch(l, 0, encodeI32(102), 0, 4)
	require.Empty(t, sink.records, "delta of 2 is within the deadband")

	Dispatch(l, 0, encodeI32(110), 0, 4)
	require.Len(t, sink.records, 1, "delta of 10 from the last-reported 100 exceeds the deadband")
}

func encodeI32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}
