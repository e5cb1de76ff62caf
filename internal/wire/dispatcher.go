// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/modsession"
	"github.com/opendax/daxd/internal/notify"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/types"
	"github.com/opendax/daxd/pkg/daxlog"
)

const nameFieldSize = 32

// Dispatcher is the Command Dispatcher (component F): it decodes a Frame,
// validates the command code, and routes it to the Type Registry, Tag
// Store, Event Subscription List or module session registry (§4.F).
type Dispatcher struct {
	Store    *tagstore.Store
	Sessions *modsession.Registry

	// RateLimit/RateBurst configure the per-session inbound frame limiter.
	// Zero RateLimit disables limiting.
	RateLimit float64
	RateBurst int

	mu       sync.Mutex
	limiters map[uint64]*rate.Limiter
}

func (d *Dispatcher) limiterFor(sessionID uint64) *rate.Limiter {
	if d.RateLimit <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiters == nil {
		d.limiters = make(map[uint64]*rate.Limiter)
	}
	l, ok := d.limiters[sessionID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.RateLimit), d.RateBurst)
		d.limiters[sessionID] = l
	}
	return l
}

// Handle decodes and routes one frame, returning zero or more reply
// frames (TAG_LIST streams one per tag plus a terminator; MOD_REG has no
// reply; every other command replies exactly once). Unknown commands
// produce a logged error and no reply (§4.F).
func (d *Dispatcher) Handle(f *Frame) []*Frame {
	if limiter := d.limiterFor(f.SessionID); limiter != nil && !limiter.Allow() {
		daxlog.Warnf("wire: session %d exceeded its inbound rate limit, dropping %s", f.SessionID, f.Command)
		return nil
	}

	daxlog.Tracef("wire: session %d dispatching %s, %d byte payload", f.SessionID, f.Command, len(f.Payload))

	switch f.Command {
	case ModReg:
		d.handleModReg(f)
		return nil
	case TagAdd:
		return []*Frame{d.reply(f, d.handleTagAdd(f))}
	case TagDel:
		return []*Frame{d.reply(f, d.handleTagDel(f))}
	case TagGet:
		return []*Frame{d.reply(f, d.handleTagGet(f))}
	case TagList:
		return d.handleTagList(f)
	case TagRead:
		return []*Frame{d.reply(f, d.handleTagRead(f))}
	case TagWrite:
		return []*Frame{d.reply(f, d.handleTagWrite(f))}
	case TagMWrite:
		return []*Frame{d.reply(f, d.handleTagMWrite(f))}
	case ModGet:
		return []*Frame{d.reply(f, d.handleModGet(f))}
	case EventAdd:
		return []*Frame{d.reply(f, d.handleEventAdd(f))}
	case EventDel:
		return []*Frame{d.reply(f, d.handleEventDel(f))}
	case CDTCreate:
		return []*Frame{d.reply(f, d.handleCDTCreate(f))}
	default:
		daxlog.Errorf("wire: session %d sent unknown command code %d", f.SessionID, f.Command)
		return nil
	}
}

func (d *Dispatcher) reply(req *Frame, payload []byte) *Frame {
	return &Frame{SessionID: req.SessionID, Command: req.Command, SenderPID: req.SenderPID, Payload: payload}
}

func statusPayload(err error) []byte {
	if err != nil {
		daxlog.Warnf("wire: command failed: %v", err)
		return []byte{byte(StatusError)}
	}
	return []byte{byte(StatusOK)}
}

func putName(buf []byte, name string) {
	n := copy(buf[:nameFieldSize], name)
	for i := n; i < nameFieldSize; i++ {
		buf[i] = 0
	}
}

func getName(buf []byte) string {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		i = len(buf)
	}
	return string(buf[:i])
}

func (d *Dispatcher) handleModReg(f *Frame) {
	name := strings.TrimRight(string(f.Payload), "\x00")
	if name == "" {
		if err := d.Sessions.Unregister(f.SessionID); err != nil {
			daxlog.Warnf("wire: MOD_REG unregister session %d: %v", f.SessionID, err)
		}
		return
	}
	if _, err := d.Sessions.Register(f.SessionID, f.SenderPID, name); err != nil {
		daxlog.Warnf("wire: MOD_REG register session %d: %v", f.SessionID, err)
	}
}

// handleTagAdd decodes {name[32], type:u32, count:u32} (§6 command 2).
func (d *Dispatcher) handleTagAdd(f *Frame) []byte {
	if len(f.Payload) != nameFieldSize+8 {
		return nil
	}
	name := getName(f.Payload[:nameFieldSize])
	typ := types.ID(binary.BigEndian.Uint32(f.Payload[nameFieldSize : nameFieldSize+4]))
	count := int(binary.BigEndian.Uint32(f.Payload[nameFieldSize+4 : nameFieldSize+8]))

	idx, err := d.Store.Add(name, typ, count)
	if err != nil {
		daxlog.Warnf("wire: TAG_ADD %q: %v", name, err)
		return nil
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(idx))
	return out
}

// handleTagDel: tag deletion is out of scope (spec §3.2/§4.B: the tag
// array is append-only, no delete operation is specified), so this
// always reports failure rather than silently succeeding.
func (d *Dispatcher) handleTagDel(f *Frame) []byte {
	return statusPayload(fmt.Errorf("%w: tag deletion is not supported", types.ErrArg))
}

// handleTagGet decodes either name[32] or index:u32 and replies
// {name[32], type:u32, count:u32, index:u32} (§6 command 4).
func (d *Dispatcher) handleTagGet(f *Frame) []byte {
	var index int
	var name string
	var typ types.ID
	var count int
	var err error

	switch len(f.Payload) {
	case nameFieldSize:
		name = getName(f.Payload)
		index, typ, count, err = d.Store.GetByName(name)
	case 4:
		index = int(binary.BigEndian.Uint32(f.Payload))
		name, typ, count, err = d.Store.GetByIndex(index)
	default:
		err = fmt.Errorf("%w: malformed TAG_GET payload", types.ErrArg)
	}
	if err != nil {
		daxlog.Warnf("wire: TAG_GET: %v", err)
		return nil
	}

	out := make([]byte, nameFieldSize+12)
	putName(out[:nameFieldSize], name)
	binary.BigEndian.PutUint32(out[nameFieldSize:nameFieldSize+4], uint32(typ))
	binary.BigEndian.PutUint32(out[nameFieldSize+4:nameFieldSize+8], uint32(count))
	binary.BigEndian.PutUint32(out[nameFieldSize+8:nameFieldSize+12], uint32(index))
	return out
}

// handleTagList streams one descriptor frame per tag (optionally
// filtered by a name prefix carried in the payload) plus a terminating
// empty-payload frame (§6 command 5, "stream of tag descriptors").
func (d *Dispatcher) handleTagList(f *Frame) []*Frame {
	prefix := strings.TrimRight(string(f.Payload), "\x00")

	var frames []*Frame
	d.Store.ForEach(func(index int, name string, typ types.ID, count int) {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			return
		}
		out := make([]byte, nameFieldSize+12)
		putName(out[:nameFieldSize], name)
		binary.BigEndian.PutUint32(out[nameFieldSize:nameFieldSize+4], uint32(typ))
		binary.BigEndian.PutUint32(out[nameFieldSize+4:nameFieldSize+8], uint32(count))
		binary.BigEndian.PutUint32(out[nameFieldSize+8:nameFieldSize+12], uint32(index))
		frames = append(frames, d.reply(f, out))
	})
	frames = append(frames, d.reply(f, nil))
	return frames
}

// handleTagRead decodes {index:u32, offset:u32, size:u32} (§6 command 6).
func (d *Dispatcher) handleTagRead(f *Frame) []byte {
	if len(f.Payload) != 12 {
		return nil
	}
	index := int(binary.BigEndian.Uint32(f.Payload[0:4]))
	offset := int(binary.BigEndian.Uint32(f.Payload[4:8]))
	size := int(binary.BigEndian.Uint32(f.Payload[8:12]))

	data, err := d.Store.Read(index, offset, size)
	if err != nil {
		daxlog.Warnf("wire: TAG_READ tag %d: %v", index, err)
		return nil
	}
	return data
}

// handleTagWrite decodes {index:u32, offset:u32, bytes} (§6 command 7).
func (d *Dispatcher) handleTagWrite(f *Frame) []byte {
	if len(f.Payload) < 8 {
		return statusPayload(fmt.Errorf("%w: malformed TAG_WRITE payload", types.ErrArg))
	}
	index := int(binary.BigEndian.Uint32(f.Payload[0:4]))
	offset := int(binary.BigEndian.Uint32(f.Payload[4:8]))
	data := f.Payload[8:]

	err := d.Store.Write(index, offset, data)
	return statusPayload(err)
}

// handleTagMWrite decodes {index:u32, offset:u32, bytes, mask}, bytes and
// mask evenly splitting the remaining payload (§6 command 8).
func (d *Dispatcher) handleTagMWrite(f *Frame) []byte {
	if len(f.Payload) < 8 || (len(f.Payload)-8)%2 != 0 {
		return statusPayload(fmt.Errorf("%w: malformed TAG_MWRITE payload", types.ErrArg))
	}
	index := int(binary.BigEndian.Uint32(f.Payload[0:4]))
	offset := int(binary.BigEndian.Uint32(f.Payload[4:8]))
	rest := f.Payload[8:]
	half := len(rest) / 2
	data, mask := rest[:half], rest[half:]

	err := d.Store.MaskedWrite(index, offset, data, mask)
	return statusPayload(err)
}

// handleModGet decodes {kind:u8, value:u32}, kind 0 = lookup by index,
// kind 1 = lookup by pid, and replies {index:u32, pid:u32, name[32]}
// (§6 command 9; the table's "pid or index" is disambiguated this way
// since the wire table does not specify a discriminator).
func (d *Dispatcher) handleModGet(f *Frame) []byte {
	if len(f.Payload) != 5 {
		return nil
	}
	kind := f.Payload[0]
	value := binary.BigEndian.Uint32(f.Payload[1:5])

	var s *modsession.Session
	var err error
	if kind == 0 {
		s, err = d.Sessions.ByIndex(int(value))
	} else {
		s, err = d.Sessions.ByPid(value)
	}
	if err != nil {
		daxlog.Warnf("wire: MOD_GET: %v", err)
		return nil
	}

	out := make([]byte, 8+nameFieldSize)
	binary.BigEndian.PutUint32(out[0:4], uint32(s.Index))
	binary.BigEndian.PutUint32(out[4:8], s.Pid)
	putName(out[8:8+nameFieldSize], s.Name)
	return out
}

// handleEventAdd decodes a fixed 44-byte EVENT_ADD payload (not given a
// wire shape by the table, which only names the command in §4.F's
// routing; see DESIGN.md) and replies with the new event id, or no
// reply on failure.
func (d *Dispatcher) handleEventAdd(f *Frame) []byte {
	if len(f.Payload) != 44 {
		return nil
	}
	tagIndex := int(binary.BigEndian.Uint32(f.Payload[0:4]))
	kind := events.Kind(binary.BigEndian.Uint32(f.Payload[4:8]))
	byteOff := int(binary.BigEndian.Uint32(f.Payload[8:12]))
	bit := int(binary.BigEndian.Uint32(f.Payload[12:16]))
	size := int(binary.BigEndian.Uint32(f.Payload[16:20]))
	count := int(binary.BigEndian.Uint32(f.Payload[20:24]))
	datatype := types.ID(binary.BigEndian.Uint32(f.Payload[24:28]))
	data := int64(binary.BigEndian.Uint64(f.Payload[28:36]))
	deadband := math.Float64frombits(binary.BigEndian.Uint64(f.Payload[36:44]))

	tagKind, err := d.Store.TagKind(tagIndex)
	if err != nil {
		daxlog.Warnf("wire: EVENT_ADD tag %d: %v", tagIndex, err)
		return nil
	}
	current, err := d.Store.SnapshotRange(tagIndex, byteOff, size)
	if err != nil {
		daxlog.Warnf("wire: EVENT_ADD tag %d: %v", tagIndex, err)
		return nil
	}
	list, err := d.Store.EventsFor(tagIndex)
	if err != nil {
		daxlog.Warnf("wire: EVENT_ADD tag %d: %v", tagIndex, err)
		return nil
	}

	sess, ok := d.Sessions.ByFrameID(f.SessionID)
	if !ok {
		daxlog.Warnf("wire: EVENT_ADD from unregistered session %d", f.SessionID)
		return nil
	}

	id, err := list.Add(events.AddArgs{
		Range:    events.Range{Byte: byteOff, Bit: bit, Size: size, Count: count, Datatype: datatype},
		Kind:     kind,
		Data:     data,
		Deadband: deadband,
		Notify:   notify.NewBridge(sess, sess.ID()),
	}, tagKind, current)
	if err != nil {
		daxlog.Warnf("wire: EVENT_ADD tag %d: %v", tagIndex, err)
		return nil
	}

	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, id)
	return out
}

// handleEventDel decodes {tagIndex:u32, eventID:u32} (§6 routing, no
// table entry; see DESIGN.md).
func (d *Dispatcher) handleEventDel(f *Frame) []byte {
	if len(f.Payload) != 8 {
		return statusPayload(fmt.Errorf("%w: malformed EVENT_DEL payload", types.ErrArg))
	}
	tagIndex := int(binary.BigEndian.Uint32(f.Payload[0:4]))
	eventID := binary.BigEndian.Uint32(f.Payload[4:8])

	list, err := d.Store.EventsFor(tagIndex)
	if err != nil {
		return statusPayload(err)
	}
	sess, ok := d.Sessions.ByFrameID(f.SessionID)
	if !ok {
		return statusPayload(fmt.Errorf("%w: unregistered session", types.ErrAuth))
	}
	return statusPayload(list.Delete(eventID, sess))
}

// handleCDTCreate decodes a UTF-8 "name:member,type,count:..." spec
// string (§4.A) and replies with the new type id, or no reply on
// failure.
func (d *Dispatcher) handleCDTCreate(f *Frame) []byte {
	id, err := d.Store.Registry().CreateCDT(string(f.Payload))
	if err != nil {
		daxlog.Warnf("wire: CDT_CREATE: %v", err)
		return nil
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(id))
	return out
}
