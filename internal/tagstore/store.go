// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tagstore implements the Tag Store (component B) and the
// Read/Write Engine (component C): named, typed storage cells with
// growable backing buffers, a name index for lookup, and the byte-range
// read/write/masked-write primitives over them.
//
// Tag indices are stable for the lifetime of the server (§3.2): the tag
// array only ever grows by appending, mirroring the append-only, pooled
// growth strategy the teacher's buffer.PersistentBufferPool uses to avoid
// reallocation-driven index churn.
package tagstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/stats"
	"github.com/opendax/daxd/internal/types"
	"github.com/opendax/daxd/pkg/daxlog"
)

// defaultIncrement is the fixed growth increment for the tag array and name
// index (§4.B growth policy default).
const defaultIncrement = 1024

// StatusTagIndex is the reserved index of the system status tag (§3.2).
const StatusTagIndex = 0

// Tag is a named, typed storage cell (§3.2).
type Tag struct {
	mu     sync.RWMutex
	Name   string
	Type   types.ID
	Count  int
	Buffer []byte
	Events *events.List
}

// ByteSize returns the tag's current backing-buffer size in bytes.
func (t *Tag) ByteSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Buffer)
}

// Store is the Tag Store (component B).
type Store struct {
	mu        sync.RWMutex
	registry  *types.Registry
	increment int
	// maxCapacity, if non-zero, simulates the fixed-size-arena ALLOC
	// failure path from §4.B ("if only one allocation succeeds, roll back
	// to the previous size and return ALLOC"). Go's append never fails in
	// practice, so without a cap this branch would be unreachable; tests
	// exercise it by setting a small maxCapacity.
	maxCapacity int

	tags  []*Tag // append-only; index == tag identifier
	names []*Tag // sorted by strings.ToLower(Name), mirrors tags
}

// New creates a Store bound to registry and creates the reserved system
// status tag at index 0.
func New(registry *types.Registry) (*Store, error) {
	s := &Store{registry: registry, increment: defaultIncrement}
	if err := s.createStatusTag(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithCapacity is New with an explicit growth increment and an optional
// capacity limit (0 means unlimited). The server passes its configured
// tag-array size as the increment; tests set a small limit to exercise the
// ALLOC rollback path.
func NewWithCapacity(registry *types.Registry, increment, maxCapacity int) (*Store, error) {
	s := &Store{registry: registry, increment: increment, maxCapacity: maxCapacity}
	if err := s.createStatusTag(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createStatusTag() error {
	statusType, err := s.registry.CreateCDT("_status:uptime,UDINT,1:tags,UDINT,1:modules,UDINT,1")
	if err != nil {
		return fmt.Errorf("tagstore: create status CDT: %w", err)
	}
	idx, err := s.Add("_status", statusType, 1)
	if err != nil {
		return fmt.Errorf("tagstore: create status tag: %w", err)
	}
	if idx != StatusTagIndex {
		return fmt.Errorf("tagstore: status tag got index %d, want %d", idx, StatusTagIndex)
	}
	return nil
}

// byteSize computes §3.2's byte-size formula for (typ, count).
func (s *Store) byteSize(typ types.ID, count int) (int, error) {
	if typ == types.BOOL {
		return (count + 7) / 8, nil
	}
	elemSize, ok := s.registry.Size(typ)
	if !ok {
		return 0, fmt.Errorf("%w: unknown type %d", types.ErrBadType, typ)
	}
	return count * elemSize, nil
}

// Add implements create(name, type, count), §3.2/§4.B.
func (s *Store) Add(name string, typ types.ID, count int) (int, error) {
	if len(name) == 0 || len(name) > 32 {
		return 0, fmt.Errorf("%w: name length must be in [1,32]", types.ErrTooBig)
	}
	if !validTagName(name) {
		return 0, fmt.Errorf("%w: invalid tag name %q", types.ErrArg, name)
	}
	if count < 1 {
		return 0, fmt.Errorf("%w: count must be >= 1", types.ErrArg)
	}
	size, err := s.byteSize(typ, count)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(name)
	pos, existing := s.findLocked(lower)
	if existing != nil {
		if existing.Type != typ {
			return 0, fmt.Errorf("%w: tag %q already exists with a different type", types.ErrDuplicate, name)
		}
		if existing.Count >= count {
			return s.indexOfLocked(existing), nil
		}
		if err := s.growTagLocked(existing, count); err != nil {
			return 0, err
		}
		return s.indexOfLocked(existing), nil
	}

	if err := s.growCapacityLocked(len(s.tags) + 1); err != nil {
		return 0, err
	}

	tag := &Tag{
		Name:   name,
		Type:   typ,
		Count:  count,
		Buffer: make([]byte, size),
		Events: events.NewList(),
	}

	s.tags = append(s.tags, tag)
	s.insertNameLocked(pos, tag)
	s.registry.IncRefcount(typ)
	stats.TagsCreated.Inc()
	stats.TagCount.Set(float64(len(s.tags)))

	return len(s.tags) - 1, nil
}

// growCapacityLocked grows the tag array and name index together, by
// s.increment slots at a time, whenever wantLen exceeds their capacity
// (§4.B). When maxCapacity is set and wantLen exceeds it, it returns ALLOC
// before touching either array, so nothing needs rolling back.
func (s *Store) growCapacityLocked(wantLen int) error {
	if s.maxCapacity != 0 && wantLen > s.maxCapacity {
		return fmt.Errorf("%w: tag array capacity exhausted", types.ErrAlloc)
	}
	if wantLen > cap(s.tags) && s.increment > 0 {
		newCap := cap(s.tags) + s.increment
		tags := make([]*Tag, len(s.tags), newCap)
		copy(tags, s.tags)
		names := make([]*Tag, len(s.names), newCap)
		copy(names, s.names)
		s.tags, s.names = tags, names
	}
	return nil
}

func (s *Store) growTagLocked(tag *Tag, newCount int) error {
	newSize, err := s.byteSize(tag.Type, newCount)
	if err != nil {
		return err
	}
	tag.mu.Lock()
	defer tag.mu.Unlock()
	grown := make([]byte, newSize)
	copy(grown, tag.Buffer)
	tag.Buffer = grown
	tag.Count = newCount
	return nil
}

// findLocked returns the tag whose lowercased name equals lower, and the
// insertion point to use if it does not exist.
func (s *Store) findLocked(lower string) (pos int, tag *Tag) {
	pos = sort.Search(len(s.names), func(i int) bool {
		return strings.ToLower(s.names[i].Name) >= lower
	})
	if pos < len(s.names) && strings.ToLower(s.names[pos].Name) == lower {
		return pos, s.names[pos]
	}
	return pos, nil
}

func (s *Store) insertNameLocked(pos int, tag *Tag) {
	s.names = append(s.names, nil)
	copy(s.names[pos+1:], s.names[pos:])
	s.names[pos] = tag
}

func (s *Store) indexOfLocked(tag *Tag) int {
	for i, t := range s.tags {
		if t == tag {
			return i
		}
	}
	return -1
}

// GetByName implements get_by_name, §4.B: an O(log n) binary search over
// the sorted name index followed by an exact, case-sensitive match among
// same-lowercase entries (duplicate detection is case-insensitive, lookup
// equality is case-sensitive, §3.2).
func (s *Store) GetByName(name string) (index int, typ types.ID, count int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(name)
	pos := sort.Search(len(s.names), func(i int) bool {
		return strings.ToLower(s.names[i].Name) >= lower
	})
	for i := pos; i < len(s.names) && strings.ToLower(s.names[i].Name) == lower; i++ {
		if s.names[i].Name == name {
			return s.indexOfLocked(s.names[i]), s.names[i].Type, s.names[i].Count, nil
		}
	}
	return 0, 0, 0, fmt.Errorf("%w: tag %q", types.ErrNotFound, name)
}

// GetByIndex implements get_by_index, §4.B.
func (s *Store) GetByIndex(i int) (name string, typ types.ID, count int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.tags) {
		return "", 0, 0, fmt.Errorf("%w: tag index %d", types.ErrArg, i)
	}
	t := s.tags[i]
	return t.Name, t.Type, t.Count, nil
}

// Count returns the number of live tags, including the reserved status
// tag.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tags)
}

// tagAt returns the Tag for a valid index, or nil.
func (s *Store) tagAt(i int) *Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.tags) {
		return nil
	}
	return s.tags[i]
}

// ForEach calls fn for every live tag in index order, used by TAG_LIST
// (§6 command 5). fn must not mutate the store.
func (s *Store) ForEach(fn func(index int, name string, typ types.ID, count int)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, t := range s.tags {
		fn(i, t.Name, t.Type, t.Count)
	}
}

// DescribeCDT is a read-only convenience query (not in the §6 wire table,
// supplementing it the way the original source's listing tooling does):
// returns the members of a registered CDT by name.
func (s *Store) DescribeCDT(name string) ([]types.Member, error) {
	id, ok := s.registry.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: type %q", types.ErrNotFound, name)
	}
	cdt, ok := s.registry.CDTByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a compound type", types.ErrBadType, name)
	}
	return cdt.Members, nil
}

// Registry exposes the store's bound Type Registry, e.g. for CDT_CREATE
// handling in the command dispatcher.
func (s *Store) Registry() *types.Registry {
	return s.registry
}

func validTagName(name string) bool {
	if name == "" {
		return false
	}
	first := name[0]
	if !(first == '_' || (first >= 'A' && first <= 'Z') || (first >= 'a' && first <= 'z')) {
		return false
	}
	for i := 1; i < len(name); i++ {
		b := name[i]
		ok := b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// RefreshStatus recomputes the system status tag's contents. It is called
// periodically by the server's background loop (the one recurring domain
// job, SPEC_FULL.md "Supplemented Features").
func (s *Store) RefreshStatus(uptimeSeconds uint32, moduleCount uint32) {
	s.mu.RLock()
	tagCount := uint32(len(s.tags))
	s.mu.RUnlock()

	buf := make([]byte, 12)
	putU32(buf[0:4], uptimeSeconds)
	putU32(buf[4:8], tagCount)
	putU32(buf[8:12], moduleCount)

	if err := s.Write(StatusTagIndex, 0, buf); err != nil {
		daxlog.Warnf("tagstore: refresh status tag: %v", err)
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
