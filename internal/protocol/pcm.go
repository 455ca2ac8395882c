package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortPCM is returned when a binary frame is not a whole number of samples
var ErrShortPCM = errors.New("protocol: pcm payload length not a multiple of 4")

// AppendPCM appends samples as little-endian float32
func AppendPCM(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// EncodePCM encodes samples as little-endian float32
func EncodePCM(samples []float32) []byte {
	return AppendPCM(make([]byte, 0, len(samples)*4), samples)
}

// DecodePCM decodes little-endian float32 samples into dst, growing it as
// needed, and returns the filled slice.
func DecodePCM(dst []float32, data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return dst[:0], ErrShortPCM
	}
	n := len(data) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return dst, nil
}
