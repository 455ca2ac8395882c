// Package wavelet implements block-wise Haar wavelet shrinkage.
//
// A block is decomposed recursively into approximation and detail subbands,
// every detail coefficient is soft-thresholded, and the block is rebuilt.
// Only the largest power-of-two prefix of a block is transformed; the
// remaining tail samples are passed through untouched.
package wavelet

import "math"

// LargestPowerOfTwo returns the largest power of two <= n, or 0 when n < 1
func LargestPowerOfTwo(n int) int {
	if n < 1 {
		return 0
	}
	p := 1
	for p<<1 <= n {
		p <<= 1
	}
	return p
}

// SoftThreshold shrinks c toward zero by t.
// Values with |c| < t collapse to 0; the sign of c is kept otherwise.
func SoftThreshold(c, t float64) float64 {
	a := math.Abs(c)
	if a < t {
		return 0
	}
	return math.Copysign(a-t, c)
}

// DWT returns the recursive Haar decomposition of signal.
//
// At each level the active region [0, n) is replaced by n/2 approximation
// coefficients followed by n/2 detail coefficients, then the approximation
// half is decomposed again. Recursion stops once the active length is below 2
// or odd, so power-of-two inputs are decomposed all the way down.
func DWT(signal []float64) []float64 {
	out := make([]float64, len(signal))
	copy(out, signal)
	forward(out, make([]float64, len(signal)))
	return out
}

// IDWT inverts DWT
func IDWT(coeffs []float64) []float64 {
	out := make([]float64, len(coeffs))
	copy(out, coeffs)
	inverse(out, make([]float64, len(coeffs)))
	return out
}

func forward(buf, scratch []float64) {
	n := len(buf)
	if n < 2 || n%2 != 0 {
		return
	}

	half := n / 2
	for i := 0; i < half; i++ {
		s0, s1 := buf[2*i], buf[2*i+1]
		scratch[i] = (s0 + s1) / math.Sqrt2
		scratch[half+i] = (s0 - s1) / math.Sqrt2
	}
	copy(buf, scratch[:n])

	forward(buf[:half], scratch)
}

func inverse(buf, scratch []float64) {
	n := len(buf)
	if n < 2 || n%2 != 0 {
		return
	}

	half := n / 2
	inverse(buf[:half], scratch)

	for i := 0; i < half; i++ {
		a, d := buf[i], buf[half+i]
		scratch[2*i] = (a + d) / math.Sqrt2
		scratch[2*i+1] = (a - d) / math.Sqrt2
	}
	copy(buf, scratch[:n])
}

// Denoiser runs the transform/threshold/inverse cycle with reusable buffers.
// It is not safe for concurrent use.
type Denoiser struct {
	coeffs  []float64
	scratch []float64
}

// NewDenoiser preallocates buffers for blocks up to blockSize samples
func NewDenoiser(blockSize int) *Denoiser {
	n := LargestPowerOfTwo(blockSize)
	return &Denoiser{
		coeffs:  make([]float64, n),
		scratch: make([]float64, n),
	}
}

// DenoiseInto writes the denoised version of src into dst.
// dst must be at least len(src) long and may alias src.
func (d *Denoiser) DenoiseInto(dst, src []float32, threshold float64) {
	if len(dst) > len(src) {
		dst = dst[:len(src)]
	}
	n := LargestPowerOfTwo(len(src))

	// Tail beyond the power-of-two prefix is not covered by the transform
	copy(dst[n:], src[n:])

	if n < 2 {
		copy(dst[:n], src[:n])
		return
	}

	if cap(d.coeffs) < n {
		d.coeffs = make([]float64, n)
		d.scratch = make([]float64, n)
	}
	coeffs := d.coeffs[:n]
	scratch := d.scratch[:n]

	for i := 0; i < n; i++ {
		coeffs[i] = float64(src[i])
	}

	forward(coeffs, scratch)

	// Index 0 holds the coarsest approximation; everything after it is detail
	for i := 1; i < n; i++ {
		coeffs[i] = SoftThreshold(coeffs[i], threshold)
	}

	inverse(coeffs, scratch)

	for i := 0; i < n; i++ {
		dst[i] = float32(coeffs[i])
	}
}

// Denoise returns a denoised copy of block. It never modifies block.
func Denoise(block []float32, threshold float64) []float32 {
	out := make([]float32, len(block))
	NewDenoiser(len(block)).DenoiseInto(out, block, threshold)
	return out
}
