// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import "github.com/opendax/daxd/internal/events"

// RecordSize is the event notification record's wire size (§6).
const RecordSize = events.RecordWireSize

// EncodeRecord and DecodeRecord forward to the events package, which owns
// the Record type and its wire layout (see events.EncodeRecord for why).
var (
	EncodeRecord = events.EncodeRecord
	DecodeRecord = events.DecodeRecord
)
