// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package events

import (
	"encoding/binary"
	"math"

	"github.com/opendax/daxd/internal/types"
)

// This file implements the "comparable scalar" capability design note:
// rather than hand-rolling one comparison function per base numeric type,
// every signed/unsigned integer width shares one generic decode+compare
// body, instantiated per width; floats share their own generic body. A
// per-type lookup table (numericFamily) picks the right instantiation.

type signedWidth interface{ ~int8 | ~int16 | ~int32 | ~int64 }
type unsignedWidth interface{ ~uint8 | ~uint16 | ~uint32 | ~uint64 }
type floatWidth interface{ ~float32 | ~float64 }

func decodeSigned[T signedWidth](buf []byte) int64 {
	var v T
	switch any(v).(type) {
	case int8:
		return int64(int8(buf[0]))
	case int16:
		return int64(int16(binary.LittleEndian.Uint16(buf)))
	case int32:
		return int64(int32(binary.LittleEndian.Uint32(buf)))
	case int64:
		return int64(binary.LittleEndian.Uint64(buf))
	}
	panic("unreachable")
}

func decodeUnsigned[T unsignedWidth](buf []byte) uint64 {
	var v T
	switch any(v).(type) {
	case uint8:
		return uint64(buf[0])
	case uint16:
		return uint64(binary.LittleEndian.Uint16(buf))
	case uint32:
		return uint64(binary.LittleEndian.Uint32(buf))
	case uint64:
		return binary.LittleEndian.Uint64(buf)
	}
	panic("unreachable")
}

func decodeFloat[T floatWidth](buf []byte) float64 {
	var v T
	switch any(v).(type) {
	case float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	}
	panic("unreachable")
}

// sign returns sign(a - b) for any ordered numeric domain.
func sign[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// numericFamily describes how to decode and compare elements of one base
// type for EQUAL/GREATER/LESS/DEADBAND purposes.
type numericFamily struct {
	width int
	// compareToComparand returns sign(comparand - current element).
	compareToComparand func(buf []byte, comparand int64) int
	// delta returns |current-prev| widened to a signed domain, as float64,
	// for the DEADBAND predicate.
	delta func(curr, prev []byte) float64
	// asFloat decodes the element as a float64.
	asFloat func(buf []byte) float64
}

var families = map[types.ID]numericFamily{
	types.SINT: {
		width: 1,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, decodeSigned[int8](buf)) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(decodeSigned[int8](a) - decodeSigned[int8](b))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeSigned[int8](buf)) },
	},
	types.INT: {
		width: 2,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, decodeSigned[int16](buf)) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(decodeSigned[int16](a) - decodeSigned[int16](b))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeSigned[int16](buf)) },
	},
	types.DINT: {
		width: 4,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, decodeSigned[int32](buf)) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(decodeSigned[int32](a) - decodeSigned[int32](b))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeSigned[int32](buf)) },
	},
	types.LINT: {
		width: 8,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, decodeSigned[int64](buf)) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(decodeSigned[int64](a) - decodeSigned[int64](b))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeSigned[int64](buf)) },
	},
	types.BYTE: {
		width: 1,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, int64(decodeUnsigned[uint8](buf))) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(int16(decodeUnsigned[uint8](a)) - int16(decodeUnsigned[uint8](b)))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint8](buf)) },
	},
	types.WORD: {
		width: 2,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, int64(decodeUnsigned[uint16](buf))) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(int32(decodeUnsigned[uint16](a)) - int32(decodeUnsigned[uint16](b)))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint16](buf)) },
	},
	types.UINT: {
		width: 2,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, int64(decodeUnsigned[uint16](buf))) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(int32(decodeUnsigned[uint16](a)) - int32(decodeUnsigned[uint16](b)))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint16](buf)) },
	},
	types.DWORD: {
		width: 4,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, int64(decodeUnsigned[uint32](buf))) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(int64(decodeUnsigned[uint32](a)) - int64(decodeUnsigned[uint32](b)))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint32](buf)) },
	},
	types.UDINT: {
		width: 4,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, int64(decodeUnsigned[uint32](buf))) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(int64(decodeUnsigned[uint32](a)) - int64(decodeUnsigned[uint32](b)))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint32](buf)) },
	},
	types.TIME: {
		width: 4,
		compareToComparand: func(buf []byte, c int64) int { return sign(c, int64(decodeUnsigned[uint32](buf))) },
		delta:              func(a, b []byte) float64 { return math.Abs(float64(int64(decodeUnsigned[uint32](a)) - int64(decodeUnsigned[uint32](b)))) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint32](buf)) },
	},
	types.LWORD: {
		width: 8,
		compareToComparand: func(buf []byte, c int64) int { return sign(uint64(c), decodeUnsigned[uint64](buf)) },
		delta:              func(a, b []byte) float64 { return bigAbsDiff(decodeUnsigned[uint64](a), decodeUnsigned[uint64](b)) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint64](buf)) },
	},
	types.ULINT: {
		width: 8,
		compareToComparand: func(buf []byte, c int64) int { return sign(uint64(c), decodeUnsigned[uint64](buf)) },
		delta:              func(a, b []byte) float64 { return bigAbsDiff(decodeUnsigned[uint64](a), decodeUnsigned[uint64](b)) },
		asFloat:            func(buf []byte) float64 { return float64(decodeUnsigned[uint64](buf)) },
	},
	types.REAL: {
		width: 4,
		compareToComparand: func(buf []byte, c int64) int { return sign(float64(c), decodeFloat[float32](buf)) },
		delta:              func(a, b []byte) float64 { return math.Abs(decodeFloat[float32](a) - decodeFloat[float32](b)) },
		asFloat:            func(buf []byte) float64 { return decodeFloat[float32](buf) },
	},
	types.LREAL: {
		width: 8,
		compareToComparand: func(buf []byte, c int64) int { return sign(float64(c), decodeFloat[float64](buf)) },
		delta:              func(a, b []byte) float64 { return math.Abs(decodeFloat[float64](a) - decodeFloat[float64](b)) },
		asFloat:            func(buf []byte) float64 { return decodeFloat[float64](buf) },
	},
}

// bigAbsDiff computes |a-b| for 64-bit unsigned values without overflowing
// int64, the "wider signed difference type" the deadband predicate needs
// for the widest base integer type (§4.E).
func bigAbsDiff(a, b uint64) float64 {
	if a >= b {
		return float64(a - b)
	}
	return float64(b - a)
}

// encodeFloatInto writes v back into buf using the family's native width.
// DEADBAND does not use it: evalDeadband updates its "test" snapshot by
// copying the element's raw bytes.
func encodeFloatInto(id types.ID, buf []byte, v float64) {
	switch id {
	case types.SINT:
		buf[0] = byte(int8(v))
	case types.INT:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
	case types.DINT:
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	case types.LINT:
		binary.LittleEndian.PutUint64(buf, uint64(int64(v)))
	case types.BYTE:
		buf[0] = byte(uint8(v))
	case types.WORD, types.UINT:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case types.DWORD, types.UDINT, types.TIME:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case types.LWORD, types.ULINT:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	case types.REAL:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case types.LREAL:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	}
}
