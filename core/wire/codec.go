// Package wire encodes the fixed-width scalar payloads carried inside
// topic-tagged messages. All multi-byte values travel big-endian.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Kind identifies a scalar payload type.
type Kind uint8

const (
	Bool Kind = iota + 1
	Int32
	Float32
	Float64
)

var (
	// ErrInvalidLength is returned when a payload does not match the width of its kind.
	ErrInvalidLength = errors.New("invalid payload length")
	// ErrUnsupportedKind is returned for kinds the codec does not know.
	ErrUnsupportedKind = errors.New("unsupported kind")
)

var byteOrder = binary.BigEndian

// Size returns the wire width of the kind in bytes.
func (k Kind) Size() (int, error) {
	switch k {
	case Bool:
		return 1, nil
	case Int32, Float32:
		return 4, nil
	case Float64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedKind, k)
	}
}

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Encode converts v to its wire form. The dynamic type of v must match kind.
func Encode(kind Kind, v any) ([]byte, error) {
	switch kind {
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("encode %s: got %T", kind, v)
		}
		return EncodeBool(b), nil
	case Int32:
		i, ok := v.(int32)
		if !ok {
			return nil, fmt.Errorf("encode %s: got %T", kind, v)
		}
		return EncodeInt32(i), nil
	case Float32:
		f, ok := v.(float32)
		if !ok {
			return nil, fmt.Errorf("encode %s: got %T", kind, v)
		}
		return EncodeFloat32(f), nil
	case Float64:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("encode %s: got %T", kind, v)
		}
		return EncodeFloat64(f), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, kind)
	}
}

// Decode parses b as a value of the given kind.
func Decode(kind Kind, b []byte) (any, error) {
	switch kind {
	case Bool:
		return DecodeBool(b)
	case Int32:
		return DecodeInt32(b)
	case Float32:
		return DecodeFloat32(b)
	case Float64:
		return DecodeFloat64(b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, kind)
	}
}

func checkLen(kind Kind, b []byte, want int) error {
	if len(b) != want {
		return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrInvalidLength, kind, want, len(b))
	}
	return nil
}

func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool treats any nonzero byte as true.
func DecodeBool(b []byte) (bool, error) {
	if err := checkLen(Bool, b, 1); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func EncodeInt32(v int32) []byte {
	b := make([]byte, 4)
	byteOrder.PutUint32(b, uint32(v))
	return b
}

func DecodeInt32(b []byte) (int32, error) {
	if err := checkLen(Int32, b, 4); err != nil {
		return 0, err
	}
	return int32(byteOrder.Uint32(b)), nil
}

// EncodeFloat32 preserves the exact IEEE-754 bit pattern, NaN payloads included.
func EncodeFloat32(v float32) []byte {
	b := make([]byte, 4)
	byteOrder.PutUint32(b, math.Float32bits(v))
	return b
}

func DecodeFloat32(b []byte) (float32, error) {
	if err := checkLen(Float32, b, 4); err != nil {
		return 0, err
	}
	return math.Float32frombits(byteOrder.Uint32(b)), nil
}

func EncodeFloat64(v float64) []byte {
	b := make([]byte, 8)
	byteOrder.PutUint64(b, math.Float64bits(v))
	return b
}

func DecodeFloat64(b []byte) (float64, error) {
	if err := checkLen(Float64, b, 8); err != nil {
		return 0, err
	}
	return math.Float64frombits(byteOrder.Uint64(b)), nil
}

// EncodeFloat32Pair packs two float32 values back to back.
func EncodeFloat32Pair(x, y float32) []byte {
	return append(EncodeFloat32(x), EncodeFloat32(y)...)
}

// DecodeFloat32Pair parses exactly eight bytes as [x, y].
func DecodeFloat32Pair(b []byte) (x, y float32, err error) {
	if len(b) != 8 {
		return 0, 0, fmt.Errorf("%w: float32 pair wants 8 bytes, got %d", ErrInvalidLength, len(b))
	}
	x, _ = DecodeFloat32(b[:4])
	y, _ = DecodeFloat32(b[4:])
	return x, y, nil
}
