// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the §6 external interfaces: the fixed 20-byte
// frame header, the stable command-code enumeration, and the Command
// Dispatcher (component F) that decodes a frame and routes it to the
// Type Registry, Tag Store, Event Subscription List or module session
// registry.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/opendax/daxd/internal/types"
	"github.com/opendax/daxd/pkg/daxlog"
)

// HeaderSize is the fixed frame header size (§6). Field widths are ours
// to choose; once chosen they are stable, so every integer field here is
// written/read big-endian for the same reason the event notification
// record is: a frame may cross a platform boundary between module and
// server.
const HeaderSize = 20

// MaxPayloadSize bounds a single frame's payload so a corrupt or hostile
// size field can't make DecodeFrame allocate unboundedly.
const MaxPayloadSize = 1 << 20 // 1 MiB

// Frame is one decoded wire message, either direction.
type Frame struct {
	SessionID uint64
	Command   Command
	SenderPID uint32
	Payload   []byte
}

// DecodeFrame reads exactly one frame from r: the fixed header, then its
// declared payload. The transport (r) delivers whole frames; DecodeFrame
// never sees a partial message span two calls.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[16:20])
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum", types.ErrTooBig, size)
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	f := &Frame{
		SessionID: binary.BigEndian.Uint64(header[0:8]),
		Command:   Command(binary.BigEndian.Uint32(header[8:12])),
		SenderPID: binary.BigEndian.Uint32(header[12:16]),
		Payload:   payload,
	}
	daxlog.TraceFrame(fmt.Sprintf("recv session=%d cmd=%s", f.SessionID, f.Command), header[:])
	daxlog.TraceFrame(fmt.Sprintf("recv session=%d payload", f.SessionID), f.Payload)
	return f, nil
}

// Encode serialises f back into its wire representation, used for
// replies (the server plays both roles of the header: session id and
// sender pid are echoed from the request by convention, see dispatcher.go).
func (f *Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.BigEndian.PutUint64(buf[0:8], f.SessionID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(f.Command))
	binary.BigEndian.PutUint32(buf[12:16], f.SenderPID)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// WriteFrame encodes f and writes it to w.
func WriteFrame(w io.Writer, f *Frame) error {
	buf := f.Encode()
	daxlog.TraceFrame(fmt.Sprintf("send session=%d cmd=%s", f.SessionID, f.Command), buf)
	_, err := w.Write(buf)
	return err
}
