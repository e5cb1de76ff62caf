// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tagstore

import (
	"errors"
	"testing"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/types"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	id      string
	records []events.Record
}

func (s *recordingSink) Send(rec events.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) ID() string { return s.id }

func TestReadWriteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("V", types.DINT, 1)
	require.NoError(t, err)

	require.NoError(t, s.Write(idx, 0, []byte{0x01, 0x02, 0x03, 0x04}))
	got, err := s.Read(idx, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)
}

func TestWriteRejectsOutOfBounds(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("V", types.DINT, 1)
	require.NoError(t, err)

	err = s.Write(idx, 2, []byte{1, 2, 3})
	require.True(t, errors.Is(err, types.ErrTooBig))
}

func TestMaskedWriteOnlyTouchesMaskedBits(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("V", types.BYTE, 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(idx, 0, []byte{0b1111_0000}))

	err = s.MaskedWrite(idx, 0, []byte{0b0000_1010}, []byte{0b0000_1111})
	require.NoError(t, err)

	got, err := s.Read(idx, 0, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0b1111_1010), got[0])
}

func TestWriteDispatchesWriteEvent(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("V", types.DINT, 1)
	require.NoError(t, err)

	evList, err := s.EventsFor(idx)
	require.NoError(t, err)

	sink := &recordingSink{id: "mod-1"}
	_, err = evList.Add(events.AddArgs{
		Range:  events.Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT},
		Kind:   events.Write,
		Notify: sink,
	}, types.KindSigned, nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(idx, 0, []byte{1, 0, 0, 0}))
	require.Len(t, sink.records, 1)
	require.Equal(t, events.Write, sink.records[0].Kind)
}

func TestWriteOutsideSubscriptionRangeDoesNotDispatch(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("V", types.DINT, 2)
	require.NoError(t, err)

	evList, err := s.EventsFor(idx)
	require.NoError(t, err)

	sink := &recordingSink{id: "mod-1"}
	_, err = evList.Add(events.AddArgs{
		Range:  events.Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT},
		Kind:   events.Write,
		Notify: sink,
	}, types.KindSigned, nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(idx, 4, []byte{1, 0, 0, 0}))
	require.Empty(t, sink.records)
}

func TestChangeEventFiresOnlyWhenValueDiffers(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Add("V", types.DINT, 1)
	require.NoError(t, err)

	evList, err := s.EventsFor(idx)
	require.NoError(t, err)
	initial, err := s.SnapshotRange(idx, 0, 4)
	require.NoError(t, err)

	sink := &recordingSink{id: "mod-1"}
	_, err = evList.Add(events.AddArgs{
		Range:  events.Range{Byte: 0, Size: 4, Count: 1, Datatype: types.DINT},
		Kind:   events.Change,
		Notify: sink,
	}, types.KindSigned, initial)
	require.NoError(t, err)

	require.NoError(t, s.Write(idx, 0, []byte{0, 0, 0, 0}))
	require.Empty(t, sink.records, "writing the same zero value must not fire CHANGE")

	require.NoError(t, s.Write(idx, 0, []byte{7, 0, 0, 0}))
	require.Len(t, sink.records, 1)
}
