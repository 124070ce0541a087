package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 127, -127, math.MaxInt32, math.MinInt32} {
		got, err := DecodeInt32(EncodeInt32(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestInt32IsBigEndian(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x05}, EncodeInt32(5))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0x81}, EncodeInt32(-127))
}

func TestFloat32RoundTripSpecialValues(t *testing.T) {
	vals := []float32{0, -0, 0.8, -1, 1, math.MaxFloat32, math.SmallestNonzeroFloat32,
		float32(math.Inf(1)), float32(math.Inf(-1))}
	for _, v := range vals {
		got, err := DecodeFloat32(EncodeFloat32(v))
		require.NoError(t, err)
		assert.Equal(t, math.Float32bits(v), math.Float32bits(got))
	}
	nan := math.Float32frombits(0x7fc00001)
	got, err := DecodeFloat32(EncodeFloat32(nan))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7fc00001), math.Float32bits(got))
}

func TestFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 3.14159, -2e300, math.Inf(1), math.Inf(-1)} {
		got, err := DecodeFloat64(EncodeFloat64(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	got, err := DecodeFloat64(EncodeFloat64(math.NaN()))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))
}

func TestBool(t *testing.T) {
	assert.Equal(t, []byte{1}, EncodeBool(true))
	assert.Equal(t, []byte{0}, EncodeBool(false))
	v, err := DecodeBool([]byte{7})
	require.NoError(t, err)
	assert.True(t, v)
	v, err = DecodeBool([]byte{0})
	require.NoError(t, err)
	assert.False(t, v)
}

func TestDecodeInvalidLength(t *testing.T) {
	cases := []struct {
		kind Kind
		b    []byte
	}{
		{Bool, nil},
		{Bool, []byte{1, 0}},
		{Int32, []byte{1, 2, 3}},
		{Float32, []byte{1, 2, 3, 4, 5}},
		{Float64, []byte{1, 2, 3, 4}},
	}
	for _, c := range cases {
		_, err := Decode(c.kind, c.b)
		assert.ErrorIs(t, err, ErrInvalidLength, c.kind.String())
	}
}

func TestUnsupportedKind(t *testing.T) {
	_, err := Decode(Kind(42), []byte{1})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	_, err = Encode(Kind(0), true)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	_, err = Kind(9).Size()
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestGenericEncodeDecode(t *testing.T) {
	b, err := Encode(Float32, float32(0.5))
	require.NoError(t, err)
	v, err := Decode(Float32, b)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), v)

	_, err = Encode(Int32, "nope")
	assert.Error(t, err)
}

func TestFloat32Pair(t *testing.T) {
	b := EncodeFloat32Pair(0, 0.8)
	require.Len(t, b, 8)
	x, y, err := DecodeFloat32Pair(b)
	require.NoError(t, err)
	assert.Equal(t, float32(0), x)
	assert.Equal(t, float32(0.8), y)

	_, _, err = DecodeFloat32Pair(b[:7])
	assert.ErrorIs(t, err, ErrInvalidLength)
}
