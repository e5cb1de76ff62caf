// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package types implements OpenDAX's Type Registry (component A): the
// catalogue of base scalar types and user-defined compound types (CDTs),
// and the size/layout computations every other component builds on.
//
// A type identifier is a 32-bit value. The reserved high bit (CustomTypeBit)
// distinguishes a CDT index from one of the fixed base-type identifiers
// below; callers never need to know the encoding, they go through
// Resolve/NameOf/Size.
package types

import (
	"fmt"
	"strings"
	"sync"
)

// ID is a type identifier: either one of the fixed Base* constants, or
// CustomTypeBit|index into the registry's CDT table.
type ID uint32

// CustomTypeBit marks id as an index into the CDT table rather than a base
// type constant.
const CustomTypeBit ID = 1 << 31

// Kind classifies a base type for the purposes of event-kind compatibility
// (§4.D) and comparison (§4.E).
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindUnsigned
	KindSigned
	KindFloat
	KindCDT
)

// Base type identifiers. Values are stable and must never be renumbered:
// they appear on the wire (§6) and are referenced by live tags.
const (
	Invalid ID = iota
	BOOL
	BYTE
	SINT
	WORD
	UINT
	INT
	DWORD
	UDINT
	DINT
	TIME
	REAL
	LWORD
	ULINT
	LINT
	LREAL
	maxBaseType
)

type baseTypeInfo struct {
	name  string
	bits  int
	kind  Kind
}

var baseTypes = map[ID]baseTypeInfo{
	BOOL:  {"BOOL", 1, KindBool},
	BYTE:  {"BYTE", 8, KindUnsigned},
	SINT:  {"SINT", 8, KindSigned},
	WORD:  {"WORD", 16, KindUnsigned},
	UINT:  {"UINT", 16, KindUnsigned},
	INT:   {"INT", 16, KindSigned},
	DWORD: {"DWORD", 32, KindUnsigned},
	UDINT: {"UDINT", 32, KindUnsigned},
	DINT:  {"DINT", 32, KindSigned},
	TIME:  {"TIME", 32, KindUnsigned},
	REAL:  {"REAL", 32, KindFloat},
	LWORD: {"LWORD", 64, KindUnsigned},
	ULINT: {"ULINT", 64, KindUnsigned},
	LINT:  {"LINT", 64, KindSigned},
	LREAL: {"LREAL", 64, KindFloat},
}

// Member is one field of a compound datatype: its name, element type and
// array count.
type Member struct {
	Name  string
	Type  ID
	Count int

	// ByteOffset/BitOffset/BitSize describe where this member begins inside
	// the CDT's packed layout (§3.1). For a repeated non-BOOL member this is
	// the offset of element 0; elements are laid out contiguously from
	// there. For a BOOL member it is the bit offset of element 0 among the
	// CDT's packed bits.
	ByteOffset int
	BitOffset  int
}

// CDT is a registered compound datatype: an ordered list of members and
// its precomputed total byte size.
type CDT struct {
	Name      string
	Members   []Member
	ByteSize  int
	refcount  int
}

// Registry is the Type Registry (component A). The zero value is not
// usable; construct with New.
type Registry struct {
	mu   sync.RWMutex
	cdts []*CDT
	// byLowerName maps the case-insensitive CDT name to its index into cdts.
	byLowerName map[string]int
}

// New returns an empty Registry (only the base types are known).
func New() *Registry {
	return &Registry{byLowerName: make(map[string]int)}
}

// Resolve returns the type identifier for name, recognising base-type names
// case-insensitively and otherwise performing a linear search of registered
// CDTs. It returns (0, false) if name is not known.
func (r *Registry) Resolve(name string) (ID, bool) {
	upper := strings.ToUpper(name)
	for id, info := range baseTypes {
		if info.name == upper {
			return id, true
		}
	}

	lower := strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx, ok := r.byLowerName[lower]; ok {
		return CustomTypeBit | ID(idx), true
	}
	return 0, false
}

// NameOf returns the registered name for id, or "" if id does not resolve.
func (r *Registry) NameOf(id ID) string {
	if id&CustomTypeBit != 0 {
		idx := int(id &^ CustomTypeBit)
		r.mu.RLock()
		defer r.mu.RUnlock()
		if idx < 0 || idx >= len(r.cdts) {
			return ""
		}
		return r.cdts[idx].Name
	}
	if info, ok := baseTypes[id]; ok {
		return info.name
	}
	return ""
}

// IsBase reports whether id names one of the fixed base types.
func IsBase(id ID) bool {
	_, ok := baseTypes[id]
	return ok
}

// KindOf classifies id for event-compatibility and comparison purposes.
func (r *Registry) KindOf(id ID) Kind {
	if id&CustomTypeBit != 0 {
		return KindCDT
	}
	if info, ok := baseTypes[id]; ok {
		return info.kind
	}
	return KindInvalid
}

// BitWidth returns the bit-width of a base scalar type, or 0 if id is not a
// recognised base type (including CDTs, which have no fixed element width).
func BitWidth(id ID) int {
	if info, ok := baseTypes[id]; ok {
		return info.bits
	}
	return 0
}

// Size returns the size, in bytes, of a single element of type id.
//
// For base types this is bits/8 rounded as per §4.A (BOOL returns 0 here;
// callers computing a tag's byte size handle BOOL's bit-packing themselves,
// per §3.2). For CDTs it is the precomputed recursive layout size (§3.1).
func (r *Registry) Size(id ID) (int, bool) {
	if id&CustomTypeBit != 0 {
		idx := int(id &^ CustomTypeBit)
		r.mu.RLock()
		defer r.mu.RUnlock()
		if idx < 0 || idx >= len(r.cdts) {
			return 0, false
		}
		return r.cdts[idx].ByteSize, true
	}

	info, ok := baseTypes[id]
	if !ok {
		return 0, false
	}
	if id == BOOL {
		return 0, true
	}
	return info.bits / 8, true
}

// CDTByID returns the registered CDT for id, if any.
func (r *Registry) CDTByID(id ID) (*CDT, bool) {
	if id&CustomTypeBit == 0 {
		return nil, false
	}
	idx := int(id &^ CustomTypeBit)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.cdts) {
		return nil, false
	}
	return r.cdts[idx], true
}

// IncRefcount/DecRefcount are called by the tag store whenever a tag of a
// custom type is created/destroyed (§3.1 invariant: a CDT may not be
// deleted while its refcount is positive). Deletion itself is not
// implemented in this iteration (spec §3.2 Non-goal), these exist so the
// bookkeeping is in place when it is.
func (r *Registry) IncRefcount(id ID) {
	if c, ok := r.CDTByID(id); ok {
		r.mu.Lock()
		c.refcount++
		r.mu.Unlock()
	}
}

func (r *Registry) DecRefcount(id ID) {
	if c, ok := r.CDTByID(id); ok {
		r.mu.Lock()
		if c.refcount > 0 {
			c.refcount--
		}
		r.mu.Unlock()
	}
}

// Refcount reports a CDT's current refcount, mainly for tests.
func (r *Registry) Refcount(id ID) int {
	if c, ok := r.CDTByID(id); ok {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return c.refcount
	}
	return 0
}

var validNamePrefix = func(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

var validNameByte = func(b byte) bool {
	return validNamePrefix(b) || (b >= '0' && b <= '9')
}

func validIdentifier(name string) bool {
	if name == "" || len(name) > 32 {
		return false
	}
	if !validNamePrefix(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !validNameByte(name[i]) {
			return false
		}
	}
	return true
}

// CreateCDT parses spec ("Name:member1,type1,count1:member2,type2,count2…")
// and, on success, appends the resulting CDT to the registry and returns its
// type identifier. See §4.A for the failure conditions.
func (r *Registry) CreateCDT(spec string) (ID, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 1 || !validIdentifier(parts[0]) {
		return 0, fmt.Errorf("%w: invalid CDT name", ErrArg)
	}
	name := parts[0]

	r.mu.Lock()
	defer r.mu.Unlock()

	lower := strings.ToLower(name)
	if _, exists := r.byLowerName[lower]; exists {
		return 0, fmt.Errorf("%w: CDT %q already exists", ErrDuplicate, name)
	}
	if _, ok := r.resolveLocked(name); ok {
		return 0, fmt.Errorf("%w: %q collides with a base type name", ErrDuplicate, name)
	}

	cdt := &CDT{Name: name}
	seen := make(map[string]bool)

	bitCursor := 0
	for _, memberSpec := range parts[1:] {
		fields := strings.Split(memberSpec, ",")
		if len(fields) != 3 {
			return 0, fmt.Errorf("%w: malformed member spec %q", ErrArg, memberSpec)
		}
		mName, mTypeName, mCountStr := fields[0], fields[1], fields[2]
		if !validIdentifier(mName) {
			return 0, fmt.Errorf("%w: invalid member name %q", ErrArg, mName)
		}
		if seen[strings.ToLower(mName)] {
			return 0, fmt.Errorf("%w: duplicate member name %q", ErrDuplicate, mName)
		}

		mType, ok := r.resolveLocked(mTypeName)
		if !ok {
			return 0, fmt.Errorf("%w: unknown member type %q", ErrArg, mTypeName)
		}

		count, err := parseCount(mCountStr)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrArg, err)
		}

		member := Member{Name: mName, Type: mType, Count: count}
		if mType == BOOL {
			member.BitOffset = bitCursor
			bitCursor += count
		} else {
			bitCursor = (bitCursor + 7) &^ 7 // align up to byte boundary
			member.ByteOffset = bitCursor / 8
			elemSize, ok := r.sizeLocked(mType)
			if !ok {
				return 0, fmt.Errorf("%w: unknown member type %q", ErrArg, mTypeName)
			}
			bitCursor += count * elemSize * 8
		}

		seen[strings.ToLower(mName)] = true
		cdt.Members = append(cdt.Members, member)
	}

	cdt.ByteSize = (bitCursor + 7) / 8

	idx := len(r.cdts)
	r.cdts = append(r.cdts, cdt)
	r.byLowerName[lower] = idx
	return CustomTypeBit | ID(idx), nil
}

func parseCount(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid count %q", s)
		}
		n = n*10 + int(s[i]-'0')
	}
	if n < 1 {
		return 0, fmt.Errorf("count must be >= 1")
	}
	return n, nil
}

// resolveLocked is Resolve's body without acquiring r.mu (caller must hold
// at least a read lock, or the write lock as CreateCDT does).
func (r *Registry) resolveLocked(name string) (ID, bool) {
	upper := strings.ToUpper(name)
	for id, info := range baseTypes {
		if info.name == upper {
			return id, true
		}
	}
	if idx, ok := r.byLowerName[strings.ToLower(name)]; ok {
		return CustomTypeBit | ID(idx), true
	}
	return 0, false
}

func (r *Registry) sizeLocked(id ID) (int, bool) {
	if id&CustomTypeBit != 0 {
		idx := int(id &^ CustomTypeBit)
		if idx < 0 || idx >= len(r.cdts) {
			return 0, false
		}
		return r.cdts[idx].ByteSize, true
	}
	info, ok := baseTypes[id]
	if !ok {
		return 0, false
	}
	if id == BOOL {
		return 0, true
	}
	return info.bits / 8, true
}
