// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveBaseTypesCaseInsensitive(t *testing.T) {
	r := New()
	id, ok := r.Resolve("dint")
	require.True(t, ok)
	require.Equal(t, DINT, id)

	id, ok = r.Resolve("DINT")
	require.True(t, ok)
	require.Equal(t, DINT, id)
}

func TestResolveUnknownName(t *testing.T) {
	r := New()
	_, ok := r.Resolve("NOSUCHTYPE")
	require.False(t, ok)
}

func TestSizeOfBaseTypes(t *testing.T) {
	r := New()
	size, ok := r.Size(DINT)
	require.True(t, ok)
	require.Equal(t, 4, size)

	size, ok = r.Size(BOOL)
	require.True(t, ok)
	require.Equal(t, 0, size) // callers compute BOOL's packed size themselves
}

func TestCreateCDTComputesPackedLayout(t *testing.T) {
	r := New()
	id, err := r.CreateCDT("Motor:running,BOOL,1:speed,DINT,1:flags,BOOL,3")
	require.NoError(t, err)
	require.True(t, id&CustomTypeBit != 0)

	cdt, ok := r.CDTByID(id)
	require.True(t, ok)
	require.Len(t, cdt.Members, 3)

	require.Equal(t, "running", cdt.Members[0].Name)
	require.Equal(t, 0, cdt.Members[0].BitOffset)

	require.Equal(t, "speed", cdt.Members[1].Name)
	require.Equal(t, 1, cdt.Members[1].ByteOffset) // aligned up from bit 1 to byte 1

	require.Equal(t, "flags", cdt.Members[2].Name)

	// total: 1 bit (running) rounded up to byte 1, + 4 bytes (speed) = 5
	// bytes = 40 bits, + 3 bits (flags) = 43 bits -> ceil(43/8) = 6 bytes.
	require.Equal(t, 6, cdt.ByteSize)
}

func TestCreateCDTRejectsDuplicateName(t *testing.T) {
	r := New()
	_, err := r.CreateCDT("Widget:a,DINT,1")
	require.NoError(t, err)

	_, err = r.CreateCDT("widget:b,DINT,1")
	require.True(t, errors.Is(err, ErrDuplicate))
}

func TestCreateCDTRejectsNameCollidingWithBaseType(t *testing.T) {
	r := New()
	_, err := r.CreateCDT("DINT:a,BOOL,1")
	require.True(t, errors.Is(err, ErrDuplicate))
}

func TestCreateCDTRejectsUnknownMemberType(t *testing.T) {
	r := New()
	_, err := r.CreateCDT("Widget:a,NOSUCH,1")
	require.True(t, errors.Is(err, ErrArg))
}

func TestCreateCDTRejectsDuplicateMemberName(t *testing.T) {
	r := New()
	_, err := r.CreateCDT("Widget:a,DINT,1:a,DINT,1")
	require.True(t, errors.Is(err, ErrDuplicate))
}

func TestCreateCDTAllowsNestedCDTMembers(t *testing.T) {
	r := New()
	innerID, err := r.CreateCDT("Inner:x,DINT,1")
	require.NoError(t, err)
	innerSize, _ := r.Size(innerID)
	require.Equal(t, 4, innerSize)

	outerID, err := r.CreateCDT("Outer:a,Inner,2:b,BOOL,1")
	require.NoError(t, err)
	outerSize, _ := r.Size(outerID)
	require.Equal(t, 9, outerSize) // 2*4 bytes + 1 bit -> ceil
}

func TestRefcountTracksCDTUsage(t *testing.T) {
	r := New()
	id, err := r.CreateCDT("Widget:a,DINT,1")
	require.NoError(t, err)
	require.Equal(t, 0, r.Refcount(id))

	r.IncRefcount(id)
	r.IncRefcount(id)
	require.Equal(t, 2, r.Refcount(id))

	r.DecRefcount(id)
	require.Equal(t, 1, r.Refcount(id))
}

func TestKindOfClassifiesBaseTypesAndCDTs(t *testing.T) {
	r := New()
	require.Equal(t, KindBool, r.KindOf(BOOL))
	require.Equal(t, KindSigned, r.KindOf(DINT))
	require.Equal(t, KindUnsigned, r.KindOf(UDINT))
	require.Equal(t, KindFloat, r.KindOf(REAL))

	id, _ := r.CreateCDT("Widget:a,DINT,1")
	require.Equal(t, KindCDT, r.KindOf(id))
}
