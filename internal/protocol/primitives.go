// Package protocol implements the typed MySQL/MariaDB wire encoders and
// decoders: primitive integer/string forms, text- and binary-row decoding,
// binary parameter encoding, and the column-metadata-to-semantic-type
// resolver.
package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrIncompleteMessage is returned by any decoder that needs more bytes
// than the supplied buffer contains.
var ErrIncompleteMessage = errors.New("protocol: incomplete message")

// ErrExtraBytes is returned when a decoder finishes before consuming the
// whole buffer it was handed, and the caller required an exact match.
var ErrExtraBytes = errors.New("protocol: unexpected trailing bytes")

// nullLenEncSentinel is the single byte (0xFB) that denotes SQL NULL where
// a length-encoded string is otherwise expected.
const nullLenEncSentinel = 0xfb

// FixedUint reads an n-byte little-endian unsigned integer (n in 1,2,3,4,8).
func FixedUint(b []byte, n int) (uint64, error) {
	if len(b) < n {
		return 0, ErrIncompleteMessage
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// PutFixedUint writes an n-byte little-endian unsigned integer.
func PutFixedUint(dst []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, byte(v))
		v >>= 8
	}
	return dst
}

// LenEncInt decodes a length-encoded integer. It returns the value, the
// number of bytes consumed, and whether the encoding denoted SQL NULL
// (only meaningful to callers that accept NULL in this position, such as
// text-row cells).
func LenEncInt(b []byte) (v uint64, n int, isNull bool, err error) {
	if len(b) < 1 {
		return 0, 0, false, ErrIncompleteMessage
	}
	switch first := b[0]; {
	case first < 0xfb:
		return uint64(first), 1, false, nil
	case first == nullLenEncSentinel:
		return 0, 1, true, nil
	case first == 0xfc:
		if len(b) < 3 {
			return 0, 0, false, ErrIncompleteMessage
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), 3, false, nil
	case first == 0xfd:
		if len(b) < 4 {
			return 0, 0, false, ErrIncompleteMessage
		}
		return uint64(b[1]) | uint64(b[2])<<8 | uint64(b[3])<<16, 4, false, nil
	case first == 0xfe:
		if len(b) < 9 {
			return 0, 0, false, ErrIncompleteMessage
		}
		return binary.LittleEndian.Uint64(b[1:9]), 9, false, nil
	default:
		return 0, 0, false, errors.New("protocol: invalid length-encoded integer tag 0xff")
	}
}

// PutLenEncInt appends v to dst using the smallest length-encoded form.
func PutLenEncInt(dst []byte, v uint64) []byte {
	switch {
	case v < 0xfb:
		return append(dst, byte(v))
	case v <= 0xffff:
		dst = append(dst, 0xfc)
		return PutFixedUint(dst, v, 2)
	case v <= 0xffffff:
		dst = append(dst, 0xfd)
		return PutFixedUint(dst, v, 3)
	default:
		dst = append(dst, 0xfe)
		return PutFixedUint(dst, v, 8)
	}
}

// LenEncIntSize returns the number of bytes PutLenEncInt would write for v.
func LenEncIntSize(v uint64) int {
	switch {
	case v < 0xfb:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffff:
		return 4
	default:
		return 9
	}
}

// NullTerminatedString reads a string up to (and past) the next 0x00 byte.
func NullTerminatedString(b []byte) (s string, n int, err error) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, ErrIncompleteMessage
}

// PutNullTerminatedString appends s followed by a single 0x00 byte.
func PutNullTerminatedString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}

// LenEncString reads a length-encoded string: a length-encoded integer
// followed by that many bytes. isNull mirrors LenEncInt's NULL marker.
func LenEncString(b []byte) (s []byte, n int, isNull bool, err error) {
	l, hdrLen, isNull, err := LenEncInt(b)
	if err != nil {
		return nil, 0, false, err
	}
	if isNull {
		return nil, hdrLen, true, nil
	}
	total := hdrLen + int(l)
	if len(b) < total {
		return nil, 0, false, ErrIncompleteMessage
	}
	return b[hdrLen:total], total, false, nil
}

// PutLenEncString appends s as a length-encoded string.
func PutLenEncString(dst []byte, s []byte) []byte {
	dst = PutLenEncInt(dst, uint64(len(s)))
	return append(dst, s...)
}

// EOFTerminatedString returns the rest of b verbatim (used for the last
// field of packets whose total length is already known from the frame).
func EOFTerminatedString(b []byte) []byte { return b }

// FixedString reads exactly n bytes.
func FixedString(b []byte, n int) ([]byte, error) {
	if len(b) < n {
		return nil, ErrIncompleteMessage
	}
	return b[:n], nil
}

// Float32 decodes an IEEE-754 single-precision value (4 bytes, LE).
func Float32(b []byte) (float32, error) {
	v, err := FixedUint(b, 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

// PutFloat32 appends an IEEE-754 single-precision value.
func PutFloat32(dst []byte, f float32) []byte {
	return PutFixedUint(dst, uint64(math.Float32bits(f)), 4)
}

// Float64 decodes an IEEE-754 double-precision value (8 bytes, LE).
func Float64(b []byte) (float64, error) {
	v, err := FixedUint(b, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// PutFloat64 appends an IEEE-754 double-precision value.
func PutFloat64(dst []byte, f float64) []byte {
	return PutFixedUint(dst, math.Float64bits(f), 8)
}
