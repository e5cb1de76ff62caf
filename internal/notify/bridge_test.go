// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package notify

import (
	"testing"

	"github.com/opendax/daxd/internal/events"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	id   string
	last events.Record
	err  error
}

func (f *fakeSink) ID() string { return f.id }
func (f *fakeSink) Send(rec events.Record) error {
	f.last = rec
	return f.err
}

func TestConnectWithEmptyAddressIsNoop(t *testing.T) {
	Connect("")
	require.Nil(t, conn)
}

func TestNewBridgeReturnsInnerUnchangedWhenNotConnected(t *testing.T) {
	inner := &fakeSink{id: "42"}
	sink := NewBridge(inner, "42")
	require.Same(t, inner, sink)
}

func TestBridgeSendDelegatesToInner(t *testing.T) {
	inner := &fakeSink{id: "7"}
	b := &Bridge{Inner: inner, Subject: "dax.events.7"}

	rec := events.Record{Kind: events.Write, TagIndex: 3, EventID: 1}
	require.NoError(t, b.Send(rec))
	require.Equal(t, rec, inner.last)
	require.Equal(t, "7", b.ID())
}

func TestCloseWithNoConnectionIsNoop(t *testing.T) {
	conn = nil
	Close()
	require.Nil(t, conn)
}
