// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events implements the Event Subscription List (component D) and
// the Event Matcher/Dispatcher (component E): the per-tag list of
// subscriptions, the predicates that decide which ones fire on a write, and
// delivery of event records through each subscription's notification sink.
package events

import (
	"fmt"
	"sync"

	"github.com/opendax/daxd/internal/types"
)

// Kind is an event subscription kind (§3.3).
type Kind int

const (
	Write Kind = iota
	Change
	Set
	Reset
	Equal
	Greater
	Less
	Deadband
)

func (k Kind) String() string {
	switch k {
	case Write:
		return "WRITE"
	case Change:
		return "CHANGE"
	case Set:
		return "SET"
	case Reset:
		return "RESET"
	case Equal:
		return "EQUAL"
	case Greater:
		return "GREATER"
	case Less:
		return "LESS"
	case Deadband:
		return "DEADBAND"
	default:
		return "UNKNOWN"
	}
}

// Range identifies the sub-region of a tag a subscription watches (the
// "handle" of the glossary): byte offset, bit offset (BOOL only), element
// size, element count and the datatype used to interpret it.
type Range struct {
	Byte     int
	Bit      int
	Size     int
	Count    int
	Datatype types.ID
}

// end returns the exclusive byte offset one past the watched range.
func (r Range) end() int {
	return r.Byte + r.Size
}

// Record is the event notification pushed to a module's notification
// channel on fire (§6 wire layout; the struct fields map 1:1 onto that
// layout, encoding is handled by EncodeRecord/DecodeRecord in wire.go).
type Record struct {
	Kind     Kind
	TagIndex uint32
	EventID  uint32
	Byte     uint32
	Count    uint32
	Datatype uint32
	Bit      uint8
}

// Sink is the opaque, non-owning handle to a module's notification
// channel (glossary: "Notification channel"). Implementations must not
// block: Send is called with the store's write path in flight (§5).
type Sink interface {
	// Send delivers rec, or returns an error if the channel is
	// closed/full. It must never block.
	Send(rec Record) error
	// ID uniquely identifies the owning module session, used for the
	// AUTH ownership check on Delete.
	ID() string
}

// Subscription is one registered interest in a sub-region of a tag.
type Subscription struct {
	ID     uint32
	Range  Range
	Kind   Kind
	Notify Sink

	// comparand and deadband are the kind-dependent constant (§3.3 "data"):
	// comparand is the EQUAL/GREATER/LESS comparison value, deadband the
	// DEADBAND threshold.
	comparand int64
	deadband  float64

	// test is the kind-dependent rolling state (§3.3 "test"): a byte
	// snapshot for CHANGE/DEADBAND, or an edge-flag bitset for SET/RESET/
	// EQUAL/GREATER/LESS. Exactly one of these is populated per kind.
	mu        sync.Mutex
	snapshot  []byte
	edgeFlags []bool
}

// List is the per-tag, unordered collection of subscriptions (component D).
type List struct {
	mu      sync.Mutex
	subs    []*Subscription
	nextID  uint32
}

// NewList returns an empty subscription list. The first added
// subscription gets id 1 (id 0 is never issued, matching the teacher's
// "zero means absent" idiom used for tag index 0 being reserved).
func NewList() *List {
	return &List{nextID: 1}
}

// AddArgs bundles the Add parameters that need validating against the
// watched tag before a Subscription is created.
type AddArgs struct {
	Range    Range
	Kind     Kind
	Data     int64   // EQUAL/GREATER/LESS comparand
	Deadband float64 // DEADBAND threshold
	Notify   Sink
}

// compatibility is the Kind x datatype-Kind table from §4.D.
func compatible(kind Kind, tk types.Kind) bool {
	switch kind {
	case Write, Change:
		return true
	case Set, Reset:
		return tk == types.KindBool
	case Equal:
		return tk == types.KindSigned || tk == types.KindUnsigned
	case Greater, Less, Deadband:
		return tk == types.KindSigned || tk == types.KindUnsigned || tk == types.KindFloat
	default:
		return false
	}
}

// Add validates args against the current tag bytes (currentBytes is the
// tag's buffer slice for [range.Byte, range.Byte+range.Size)) and, on
// success, appends a new Subscription and returns its id.
func (l *List) Add(args AddArgs, tagKind types.Kind, currentBytes []byte) (uint32, error) {
	if !compatible(args.Kind, tagKind) {
		return 0, fmt.Errorf("%w: event kind %s not compatible with this datatype", types.ErrArg, args.Kind)
	}
	if args.Range.Count < 1 {
		return 0, fmt.Errorf("%w: count must be >= 1", types.ErrArg)
	}

	sub := &Subscription{
		Range:     args.Range,
		Kind:      args.Kind,
		Notify:    args.Notify,
		comparand: args.Data,
		deadband:  args.Deadband,
	}

	switch args.Kind {
	case Change:
		sub.snapshot = append([]byte(nil), currentBytes...)
	case Deadband:
		sub.snapshot = append([]byte(nil), currentBytes...)
	case Set, Reset:
		sub.edgeFlags = make([]bool, args.Range.Count)
	case Equal, Greater, Less:
		sub.edgeFlags = make([]bool, args.Range.Count)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	sub.ID = l.nextID
	l.nextID++
	l.subs = append(l.subs, sub)
	return sub.ID, nil
}

// Delete removes the subscription with id, authorizing only the owner
// (the caller whose Sink.ID() matches the subscription's notify handle).
func (l *List) Delete(id uint32, caller Sink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sub := range l.subs {
		if sub.ID != id {
			continue
		}
		if sub.Notify.ID() != caller.ID() {
			return fmt.Errorf("%w: caller does not own subscription %d", types.ErrAuth, id)
		}
		l.subs = append(l.subs[:i], l.subs[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: no subscription with id %d", types.ErrNotFound, id)
}

// snapshotAll returns a shallow copy of the current subscriptions, safe to
// range over without holding l.mu (the matcher calls each sub's own
// mutex-protected predicate independently, see matcher.go).
func (l *List) snapshotAll() []*Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Subscription, len(l.subs))
	copy(out, l.subs)
	return out
}

// Len reports the number of live subscriptions, mainly for tests/debug.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
