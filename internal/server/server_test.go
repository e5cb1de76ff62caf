// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendax/daxd/internal/config"
	"github.com/opendax/daxd/internal/types"
	"github.com/opendax/daxd/internal/wire"
)

func TestNewBindsListenerOnConfiguredAddr(t *testing.T) {
	srv, err := New(config.ProgramConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer srv.listener.Close()

	require.NotNil(t, srv.Addr())
	require.Equal(t, 1, srv.Store.Count()) // reserved status tag only
}

func TestNewRejectsUnparsableAddr(t *testing.T) {
	_, err := New(config.ProgramConfig{Addr: "not-an-address"})
	require.Error(t, err)
}

func TestRunServesOneTagAddRoundTripThenShutsDownOnCancel(t *testing.T) {
	srv, err := New(config.ProgramConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	nameField := make([]byte, 32)
	copy(nameField, "speed")
	payload := make([]byte, 32+8)
	copy(payload, nameField)
	binary.BigEndian.PutUint32(payload[32:36], uint32(types.DINT))
	binary.BigEndian.PutUint32(payload[36:40], 1)

	req := &wire.Frame{SessionID: 1, Command: wire.TagAdd, Payload: payload}
	require.NoError(t, wire.WriteFrame(conn, req))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.DecodeFrame(conn)
	require.NoError(t, err)
	require.Len(t, reply.Payload, 4)
	idx := binary.BigEndian.Uint32(reply.Payload)
	require.Equal(t, uint32(1), idx) // first tag after the reserved status tag

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestStatusLoopRefreshesStatusTagUptime(t *testing.T) {
	srv, err := New(config.ProgramConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer srv.listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	srv.statusLoop(ctx)

	data, err := srv.Store.Read(0, 0, 4)
	require.NoError(t, err)
	uptime := binary.LittleEndian.Uint32(data)
	require.GreaterOrEqual(t, uptime, uint32(1))
}
