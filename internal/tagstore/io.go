// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tagstore

import (
	"fmt"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/stats"
	"github.com/opendax/daxd/internal/types"
)

// Read/Write/MaskedWrite are the Read/Write Engine (component C): the
// three byte-range primitives every command in §6 that touches tag data
// ultimately calls. A successful Write or MaskedWrite runs the Event
// Matcher (events.Dispatch) against the touched range before returning,
// under the same per-tag lock as the mutation itself (§5: writers observe
// either a write's full effect including its event dispatch, or none of
// it).

// Read returns a copy of size bytes starting at offset within tag index.
func (s *Store) Read(index, offset, size int) ([]byte, error) {
	tag := s.tagAt(index)
	if tag == nil {
		return nil, fmt.Errorf("%w: tag index %d", types.ErrArg, index)
	}
	if offset < 0 || size < 0 {
		return nil, fmt.Errorf("%w: negative offset or size", types.ErrArg)
	}

	tag.mu.RLock()
	defer tag.mu.RUnlock()
	if offset+size > len(tag.Buffer) {
		return nil, fmt.Errorf("%w: read [%d,%d) exceeds tag size %d", types.ErrTooBig, offset, offset+size, len(tag.Buffer))
	}

	out := make([]byte, size)
	copy(out, tag.Buffer[offset:offset+size])
	return out, nil
}

// Write overwrites len(data) bytes starting at offset within tag index,
// then dispatches events over [offset, offset+len(data)) before releasing
// the tag's lock, so a concurrent writer on the same tag can never
// interleave with event evaluation (§5: a write and the event dispatch it
// triggers are atomic with respect to other writers of that tag).
func (s *Store) Write(index, offset int, data []byte) error {
	tag := s.tagAt(index)
	if tag == nil {
		return fmt.Errorf("%w: tag index %d", types.ErrArg, index)
	}
	if offset < 0 {
		return fmt.Errorf("%w: negative offset", types.ErrArg)
	}

	tag.mu.Lock()
	defer tag.mu.Unlock()
	if offset+len(data) > len(tag.Buffer) {
		return fmt.Errorf("%w: write [%d,%d) exceeds tag size %d", types.ErrTooBig, offset, offset+len(data), len(tag.Buffer))
	}
	copy(tag.Buffer[offset:], data)

	stats.BytesWritten.Add(float64(len(data)))
	events.Dispatch(tag.Events, uint32(index), tag.Buffer, offset, len(data))
	return nil
}

// MaskedWrite writes data[i] into the buffer wherever mask[i] has a set
// bit, leaving other bits untouched, then dispatches events over
// [offset, offset+len(data)) before releasing the tag's lock (§4.C: the
// masked write is a single atomic read-modify-write for dispatch
// purposes, not three separate ones; §5: dispatch itself stays inside the
// same critical section as the mutation).
func (s *Store) MaskedWrite(index, offset int, data, mask []byte) error {
	if len(data) != len(mask) {
		return fmt.Errorf("%w: data and mask must be the same length", types.ErrArg)
	}

	tag := s.tagAt(index)
	if tag == nil {
		return fmt.Errorf("%w: tag index %d", types.ErrArg, index)
	}
	if offset < 0 {
		return fmt.Errorf("%w: negative offset", types.ErrArg)
	}

	tag.mu.Lock()
	defer tag.mu.Unlock()
	if offset+len(data) > len(tag.Buffer) {
		return fmt.Errorf("%w: masked write [%d,%d) exceeds tag size %d", types.ErrTooBig, offset, offset+len(data), len(tag.Buffer))
	}
	for i := range data {
		cur := tag.Buffer[offset+i]
		tag.Buffer[offset+i] = (cur &^ mask[i]) | (data[i] & mask[i])
	}

	stats.BytesWritten.Add(float64(len(data)))
	events.Dispatch(tag.Events, uint32(index), tag.Buffer, offset, len(data))
	return nil
}

// EventsFor returns the subscription list owned by tag index, used by the
// command dispatcher to service EVENT_ADD/EVENT_DEL (wire commands 10/11).
func (s *Store) EventsFor(index int) (*events.List, error) {
	tag := s.tagAt(index)
	if tag == nil {
		return nil, fmt.Errorf("%w: tag index %d", types.ErrArg, index)
	}
	return tag.Events, nil
}

// TagKind reports the event-compatibility Kind (§4.D) of tag index's
// datatype, used when validating EVENT_ADD.
func (s *Store) TagKind(index int) (types.Kind, error) {
	tag := s.tagAt(index)
	if tag == nil {
		return types.KindInvalid, fmt.Errorf("%w: tag index %d", types.ErrArg, index)
	}
	return s.registry.KindOf(tag.Type), nil
}

// SnapshotRange returns a copy of tag index's bytes in [offset, offset+size),
// used to seed a new CHANGE/DEADBAND subscription's baseline (§4.D: a new
// subscription's initial state is the tag's current value, so the first
// write only fires on an actual change from it).
func (s *Store) SnapshotRange(index, offset, size int) ([]byte, error) {
	return s.Read(index, offset, size)
}
