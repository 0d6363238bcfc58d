// Package dispatch encodes channel values for upstream transmission and
// forwards value changes to the session while it is registered.
package dispatch

import (
	"encoding/binary"
	"math"

	"github.com/sweeney/supla-device/internal/channel"
)

// EncodeDouble stores f as an 8-byte little-endian IEEE-754 double.
func EncodeDouble(f float64) channel.Value {
	var v channel.Value
	binary.LittleEndian.PutUint64(v[:], math.Float64bits(f))
	return v
}

// DecodeDouble reads a value written by EncodeDouble.
func DecodeDouble(v channel.Value) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v[:]))
}

// EncodeFloat32 stores a single-precision reading in the 8-byte double layout
// by widening its bit pattern.
func EncodeFloat32(f float32) channel.Value {
	var v channel.Value
	binary.LittleEndian.PutUint64(v[:], ExpandFloat32(math.Float32bits(f)))
	return v
}

// ExpandFloat32 widens an IEEE-754 single bit pattern into the equivalent
// double bit pattern: sign copied, exponent rebiased from 127 to 1023, mantissa
// shifted into the top of the 52-bit field. Zeros, subnormals, infinities and
// NaNs are preserved.
func ExpandFloat32(bits uint32) uint64 {
	sign := uint64(bits>>31) << 63
	exp := int((bits >> 23) & 0xff)
	mant := uint64(bits & 0x7fffff)

	switch exp {
	case 0:
		if mant == 0 {
			return sign
		}
		// Subnormal single: normalise, every double can hold it.
		e := -126
		for mant&0x800000 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x7fffff
		return sign | uint64(e+1023)<<52 | mant<<29
	case 0xff:
		return sign | uint64(0x7ff)<<52 | mant<<29
	default:
		return sign | uint64(exp-127+1023)<<52 | mant<<29
	}
}

// EncodeTempHumidity stores temperature and humidity as two little-endian
// 32-bit integers in thousandths.
func EncodeTempHumidity(temp, humidity float64) channel.Value {
	var v channel.Value
	binary.LittleEndian.PutUint32(v[0:4], uint32(int32(temp*1000)))
	binary.LittleEndian.PutUint32(v[4:8], uint32(int32(humidity*1000)))
	return v
}

// DecodeTempHumidity reads a value written by EncodeTempHumidity.
func DecodeTempHumidity(v channel.Value) (temp, humidity float64) {
	t := int32(binary.LittleEndian.Uint32(v[0:4]))
	h := int32(binary.LittleEndian.Uint32(v[4:8]))
	return float64(t) / 1000, float64(h) / 1000
}
