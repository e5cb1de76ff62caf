// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package modsession stands in for the out-of-scope module/process
// supervisor (spec §1 Non-goals): it is the minimal in-core collaborator
// the Command Dispatcher needs to answer MOD_REG/MOD_GET and to hand the
// Event Matcher a concrete notification sink. It carries no process
// supervision or IPC transport logic of its own.
//
// Sessions live in an append-only array exactly like the tag store's tag
// array (internal/tagstore), for the same reason: indices handed out to
// callers must stay valid for the life of the server.
package modsession

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/types"
)

// defaultChannelBuffer is the notification channel's buffer size. A module
// that falls this far behind starts losing events (MSG_SEND, §7) rather
// than stalling the writer that triggered them.
const defaultChannelBuffer = 256

// Session is one registered module's identity plus its non-blocking
// notification channel. It implements events.Sink.
type Session struct {
	Index     int
	SessionID uint64 // the frame header's module/session id
	Pid       uint32
	Name      string

	Events chan events.Record
}

// Send implements events.Sink. It never blocks: if the channel is full the
// event is dropped and MSG_SEND is returned to the matcher (which only
// logs it, per §4.E/§7 — the write itself already succeeded).
func (s *Session) Send(rec events.Record) error {
	select {
	case s.Events <- rec:
		return nil
	default:
		return fmt.Errorf("%w: session %d notification channel full", types.ErrMsgSend, s.SessionID)
	}
}

// ID satisfies events.Sink; subscription ownership is keyed on it.
func (s *Session) ID() string {
	return strconv.FormatUint(s.SessionID, 10)
}

// Registry is the module session table.
type Registry struct {
	mu       sync.RWMutex
	sessions []*Session
	byFrame  map[uint64]int // frame session id -> index into sessions
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byFrame: make(map[uint64]int)}
}

// Register handles MOD_REG (§6 command 1) with a non-empty payload: it
// creates (or, if frameSessionID is already known, idempotently returns)
// a Session.
func (r *Registry) Register(frameSessionID uint64, pid uint32, name string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: module name must not be empty", types.ErrArg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byFrame[frameSessionID]; ok {
		return r.sessions[idx], nil
	}

	s := &Session{
		Index:     len(r.sessions),
		SessionID: frameSessionID,
		Pid:       pid,
		Name:      name,
		Events:    make(chan events.Record, defaultChannelBuffer),
	}
	r.sessions = append(r.sessions, s)
	r.byFrame[frameSessionID] = s.Index
	return s, nil
}

// Unregister handles MOD_REG with an empty payload (§6): the session's
// notification channel is closed so the module's reader observes EOF, but
// the slot stays in the append-only array (its index may still be
// referenced by MOD_GET-by-index, and subscriptions it owned are not
// silently reassigned — deletion of those is out of scope, §4.D).
func (r *Registry) Unregister(frameSessionID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byFrame[frameSessionID]
	if !ok {
		return fmt.Errorf("%w: unknown session", types.ErrNotFound)
	}
	close(r.sessions[idx].Events)
	delete(r.byFrame, frameSessionID)
	return nil
}

// ByFrameID looks up a registered session by its frame header session id.
func (r *Registry) ByFrameID(frameSessionID uint64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byFrame[frameSessionID]
	if !ok {
		return nil, false
	}
	return r.sessions[idx], true
}

// ByIndex implements the MOD_GET "by index" form (§6 command 9).
func (r *Registry) ByIndex(i int) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.sessions) {
		return nil, fmt.Errorf("%w: session index %d", types.ErrArg, i)
	}
	return r.sessions[i], nil
}

// ByPid implements the MOD_GET "by pid" form (§6 command 9).
func (r *Registry) ByPid(pid uint32) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Pid == pid {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: pid %d", types.ErrNotFound, pid)
}

// Count reports the number of registered sessions, including unregistered
// (but still slotted) ones, for the system status tag.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
