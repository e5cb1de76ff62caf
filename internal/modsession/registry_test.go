// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package modsession

import (
	"errors"
	"testing"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/types"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesSessionAtNextIndex(t *testing.T) {
	r := New()

	s1, err := r.Register(100, 1111, "plc-a")
	require.NoError(t, err)
	require.Equal(t, 0, s1.Index)

	s2, err := r.Register(200, 2222, "plc-b")
	require.NoError(t, err)
	require.Equal(t, 1, s2.Index)

	require.Equal(t, 2, r.Count())
}

func TestRegisterIsIdempotentForKnownFrameID(t *testing.T) {
	r := New()

	s1, err := r.Register(100, 1111, "plc-a")
	require.NoError(t, err)

	s2, err := r.Register(100, 9999, "renamed")
	require.NoError(t, err)

	require.Same(t, s1, s2)
	require.Equal(t, uint32(1111), s2.Pid)
	require.Equal(t, 1, r.Count())
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := New()
	_, err := r.Register(1, 1, "")
	require.ErrorIs(t, err, types.ErrArg)
}

func TestUnregisterClosesChannelAndKeepsSlot(t *testing.T) {
	r := New()
	s, err := r.Register(100, 1, "plc-a")
	require.NoError(t, err)

	require.NoError(t, r.Unregister(100))

	_, open := <-s.Events
	require.False(t, open)

	_, found := r.ByFrameID(100)
	require.False(t, found)

	byIdx, err := r.ByIndex(0)
	require.NoError(t, err)
	require.Same(t, s, byIdx)
	require.Equal(t, 1, r.Count())
}

func TestUnregisterUnknownSession(t *testing.T) {
	r := New()
	err := r.Unregister(999)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestByPidFindsRegisteredSession(t *testing.T) {
	r := New()
	s, err := r.Register(100, 4242, "plc-a")
	require.NoError(t, err)

	found, err := r.ByPid(4242)
	require.NoError(t, err)
	require.Same(t, s, found)

	_, err = r.ByPid(1)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestByIndexRejectsOutOfRange(t *testing.T) {
	r := New()
	_, err := r.ByIndex(0)
	require.ErrorIs(t, err, types.ErrArg)
}

func TestSendDropsOnFullChannelAndReportsMsgSend(t *testing.T) {
	r := New()
	s, err := r.Register(1, 1, "plc-a")
	require.NoError(t, err)

	s.Events = make(chan events.Record, 1)
	require.NoError(t, s.Send(events.Record{}))

	err = s.Send(events.Record{})
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrMsgSend))
}

func TestSessionIDMatchesFrameSessionID(t *testing.T) {
	r := New()
	s, err := r.Register(777, 1, "plc-a")
	require.NoError(t, err)
	require.Equal(t, "777", s.ID())
}
