// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package events

import (
	"github.com/opendax/daxd/internal/stats"
	"github.com/opendax/daxd/internal/types"
	"github.com/opendax/daxd/pkg/daxlog"
)

// Dispatch is the Event Matcher (component E). It is invoked after every
// successful write/masked-write with the tag's current buffer (post-write)
// and the byte range that changed. For each subscription whose range
// intersects [writeOffset, writeOffset+writeSize), it evaluates the kind's
// predicate, restricted to that overlap, and, if it fires, sends exactly
// one Record through the subscription's Notify sink.
//
// buf must be the full tag buffer (Dispatch slices into it using each
// subscription's own Range); tagIndex identifies the tag for the record.
func Dispatch(list *List, tagIndex uint32, buf []byte, writeOffset, writeSize int) {
	for _, sub := range list.snapshotAll() {
		if !intersects(sub.Range, writeOffset, writeSize) {
			continue
		}

		fire := evaluate(sub, buf, writeOffset, writeSize)
		if !fire {
			continue
		}

		rec := Record{
			Kind:     sub.Kind,
			TagIndex: tagIndex,
			EventID:  sub.ID,
			Byte:     uint32(sub.Range.Byte),
			Count:    uint32(sub.Range.Count),
			Datatype: uint32(sub.Range.Datatype),
			Bit:      uint8(sub.Range.Bit),
		}

		stats.EventsFired.Inc()
		if err := sub.Notify.Send(rec); err != nil {
			// §4.E / §7: dispatch failures never propagate to the writer.
			// The write already succeeded; we just lose this event.
			stats.EventsDropped.Inc()
			daxlog.Warnf("events: dropping event %d for tag %d: %v", sub.ID, tagIndex, err)
		}
	}
}

// intersects implements the range-intersection test of §4.E.
func intersects(r Range, writeOffset, writeSize int) bool {
	return writeOffset <= r.Byte+r.Size-1 && writeOffset+writeSize-1 >= r.Byte
}

// overlap computes [lo, hi) as absolute byte offsets: the intersection of
// the subscription's watched range and the bytes the triggering write
// actually touched. Per-element scans restrict themselves to this window;
// edge-flag/snapshot indexing stays relative to the full subscription (the
// element's position i, not its position within the overlap), so state for
// elements outside the overlap is left untouched rather than re-armed.
func overlap(r Range, writeOffset, writeSize int) (lo, hi int) {
	lo = r.Byte
	if writeOffset > lo {
		lo = writeOffset
	}
	hi = r.end()
	if writeOffset+writeSize < hi {
		hi = writeOffset + writeSize
	}
	return lo, hi
}

// evaluate runs sub's kind-specific predicate against the tag's current
// buffer, mutating sub's test state as a side effect where the kind
// requires it (CHANGE/DEADBAND snapshots, SET/RESET/EQUAL/GREATER/LESS edge
// flags). It returns whether the subscription fires.
func evaluate(sub *Subscription, buf []byte, writeOffset, writeSize int) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	lo, hi := overlap(sub.Range, writeOffset, writeSize)
	if lo >= hi {
		return false
	}

	switch sub.Kind {
	case Write:
		return true
	case Change:
		return evalChange(sub, buf, lo, hi)
	case Set:
		return evalSetReset(sub, buf, lo, hi, true)
	case Reset:
		return evalSetReset(sub, buf, lo, hi, false)
	case Equal, Greater, Less:
		return evalCompare(sub, buf, lo, hi)
	case Deadband:
		return evalDeadband(sub, buf, lo, hi)
	default:
		return false
	}
}

func evalChange(sub *Subscription, buf []byte, lo, hi int) bool {
	changed := false

	if sub.Range.Datatype == types.BOOL {
		for i := 0; i < sub.Range.Count; i++ {
			bitIdx := sub.Range.Bit + i
			byteIdx := sub.Range.Byte + bitIdx/8
			if byteIdx < lo || byteIdx >= hi {
				continue
			}
			if bitAt(buf, sub.Range.Byte, bitIdx) != bitAt(sub.snapshot, 0, bitIdx) {
				changed = true
				setBit(sub.snapshot, bitIdx, bitAt(buf, sub.Range.Byte, bitIdx))
			}
		}
		return changed
	}

	for off := lo; off < hi; off++ {
		rel := off - sub.Range.Byte
		if buf[off] != sub.snapshot[rel] {
			changed = true
			sub.snapshot[rel] = buf[off]
		}
	}
	return changed
}

// bitAt reads the bit at absolute bit index bitIdx, where base is the byte
// offset bit 0 of buf corresponds to.
func bitAt(buf []byte, base, bitIdx int) bool {
	byteIdx := base + bitIdx/8
	bitPos := uint(bitIdx % 8)
	if byteIdx < 0 || byteIdx >= len(buf) {
		return false
	}
	return buf[byteIdx]&(1<<bitPos) != 0
}

func setBit(buf []byte, bitIdx int, v bool) {
	byteIdx := bitIdx / 8
	bitPos := uint(bitIdx % 8)
	if byteIdx < 0 || byteIdx >= len(buf) {
		return
	}
	if v {
		buf[byteIdx] |= 1 << bitPos
	} else {
		buf[byteIdx] &^= 1 << bitPos
	}
}

// evalSetReset implements SET (wantValue=true) and RESET (wantValue=false),
// §4.E: per bit, a rising (or falling, for RESET) edge fires once and
// re-arms when the bit returns to the opposite value.
func evalSetReset(sub *Subscription, buf []byte, lo, hi int, wantValue bool) bool {
	fired := false
	for i := 0; i < sub.Range.Count; i++ {
		bitIdx := sub.Range.Bit + i
		byteIdx := sub.Range.Byte + bitIdx/8
		if byteIdx < lo || byteIdx >= hi {
			continue
		}

		bit := buf[byteIdx]&(1<<uint(bitIdx%8)) != 0
		if bit == wantValue {
			if !sub.edgeFlags[i] {
				sub.edgeFlags[i] = true
				fired = true
			}
		} else {
			sub.edgeFlags[i] = false
		}
	}
	return fired
}

// evalCompare implements EQUAL/GREATER/LESS, §4.E: per element, the edge
// flag must transition 0->1 for the event to fire.
func evalCompare(sub *Subscription, buf []byte, lo, hi int) bool {
	fam, ok := families[sub.Range.Datatype]
	if !ok {
		return false
	}

	wantSign := map[Kind]int{Equal: 0, Greater: -1, Less: 1}[sub.Kind]

	fired := false
	for i := 0; i < sub.Range.Count; i++ {
		off := sub.Range.Byte + i*fam.width
		if off < lo || off+fam.width > hi {
			continue
		}
		elem := buf[off : off+fam.width]
		matches := fam.compareToComparand(elem, sub.comparand) == wantSign

		if matches {
			if !sub.edgeFlags[i] {
				sub.edgeFlags[i] = true
				fired = true
			}
		} else {
			sub.edgeFlags[i] = false
		}
	}
	return fired
}

// evalDeadband implements DEADBAND, §4.E.
func evalDeadband(sub *Subscription, buf []byte, lo, hi int) bool {
	fam, ok := families[sub.Range.Datatype]
	if !ok {
		return false
	}

	fired := false
	for i := 0; i < sub.Range.Count; i++ {
		off := sub.Range.Byte + i*fam.width
		if off < lo || off+fam.width > hi {
			continue
		}
		rel := i * fam.width
		cur := buf[off : off+fam.width]
		prev := sub.snapshot[rel : rel+fam.width]

		if fam.delta(cur, prev) >= sub.deadband {
			copy(prev, cur)
			fired = true
		}
	}
	return fired
}
