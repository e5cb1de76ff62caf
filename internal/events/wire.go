// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package events

import "encoding/binary"

// RecordWireSize is the event notification record's wire size (§6).
const RecordWireSize = 25

// EncodeRecord lays out rec exactly as §6's event notification record:
// every field network byte order (big-endian), independent of how the
// server decodes tag payload bytes themselves (§6: "does not reinterpret
// tag payload bytes"). It lives alongside Record rather than in the wire
// package so internal/notify can encode records without importing
// internal/wire (which itself imports internal/notify to bridge
// EVENT_ADD subscriptions).
func EncodeRecord(rec Record) []byte {
	buf := make([]byte, RecordWireSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(rec.Kind))
	binary.BigEndian.PutUint32(buf[4:8], rec.TagIndex)
	binary.BigEndian.PutUint32(buf[8:12], rec.EventID)
	binary.BigEndian.PutUint32(buf[12:16], rec.Byte)
	binary.BigEndian.PutUint32(buf[16:20], rec.Count)
	binary.BigEndian.PutUint32(buf[20:24], rec.Datatype)
	buf[24] = rec.Bit
	return buf
}

// DecodeRecord parses an encoded event notification record, primarily
// used by module-side client code and tests.
func DecodeRecord(buf []byte) Record {
	return Record{
		Kind:     Kind(binary.BigEndian.Uint32(buf[0:4])),
		TagIndex: binary.BigEndian.Uint32(buf[4:8]),
		EventID:  binary.BigEndian.Uint32(buf[8:12]),
		Byte:     binary.BigEndian.Uint32(buf[12:16]),
		Count:    binary.BigEndian.Uint32(buf[16:20]),
		Datatype: binary.BigEndian.Uint32(buf[20:24]),
		Bit:      buf[24],
	}
}
