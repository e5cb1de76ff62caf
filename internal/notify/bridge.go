// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package notify optionally bridges module notification channels onto
// NATS subjects, adapted from the teacher's pkg/nats client: a single
// package-level connection, opened once at startup, that every module
// session's events.Sink can additionally publish through.
//
// The in-process channel (internal/modsession.Session.Events) remains the
// primary, required delivery path (§4.E/§5: non-blocking, no external
// I/O in the core). NATS is an optional fan-out for modules that live in
// a different process or host and therefore cannot share that channel.
package notify

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/pkg/daxlog"
)

var (
	connOnce sync.Once
	conn     *nats.Conn
)

// Connect opens the package-level NATS connection. It is a no-op (and
// safe to call) when address is empty, matching the teacher's
// nats.Connect skip-if-unconfigured behavior.
func Connect(address string) {
	if address == "" {
		return
	}
	connOnce.Do(func() {
		c, err := nats.Connect(address,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					daxlog.Warnf("notify: NATS disconnected: %v", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				daxlog.Infof("notify: NATS reconnected to %s", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			daxlog.Warnf("notify: NATS connect to %s failed: %v", address, err)
			return
		}
		conn = c
		daxlog.Infof("notify: NATS connected to %s", address)
	})
}

// Close closes the package-level NATS connection, if one is open.
func Close() {
	if conn != nil {
		conn.Close()
		conn = nil
	}
}

// Bridge wraps an events.Sink, additionally publishing every record onto
// a NATS subject. Publish failures are logged and otherwise ignored: the
// wrapped sink's own Send result is what the matcher acts on (§4.E —
// MSG_SEND is about the primary channel, not the optional fan-out).
type Bridge struct {
	Inner   events.Sink
	Subject string
}

// NewBridge returns inner unchanged if NATS is not connected, otherwise
// wraps it to additionally publish on "dax.events.<sessionID>".
func NewBridge(inner events.Sink, sessionID string) events.Sink {
	if conn == nil {
		return inner
	}
	return &Bridge{Inner: inner, Subject: "dax.events." + sessionID}
}

// ID satisfies events.Sink by delegating to the wrapped sink.
func (b *Bridge) ID() string { return b.Inner.ID() }

// Send delivers rec to the wrapped sink, then best-effort publishes an
// encoded copy to NATS.
func (b *Bridge) Send(rec events.Record) error {
	err := b.Inner.Send(rec)
	if conn != nil {
		if pubErr := conn.Publish(b.Subject, events.EncodeRecord(rec)); pubErr != nil {
			daxlog.Warnf("notify: publish to %s failed: %v", b.Subject, pubErr)
		}
	}
	return err
}
