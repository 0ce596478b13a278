// SPDX-License-Identifier: MIT
/*
Package fft implements the single precision Fourier transforms used by the
visualizer.

Four reference operations convert between float32 samples and complex64
bins:

	DFT / IDFT   O(n²) direct sums, any n >= 1
	FFT / IFFT   recursive radix-2 decimation in time, n must be a power of two

Plan is the allocation free, iterative counterpart of FFT/IFFT that the
analysis hot path uses. It produces the same bins as FFT.

Sign convention: the forward transforms use exp(-2πi·jk/n), the inverse
transforms use exp(+2πi·jk/n) and divide by n.
*/
package fft

import (
	"fmt"
	"math"

	"musicviz/pkg/bitint"
)

const (
	forward = -1.0
	inverse = 1.0
)

// twiddle returns exp(sign·2πi·k/n). The angle is reduced modulo n in
// integer arithmetic first so large j·k products keep full precision.
func twiddle(k, n int, sign float64) complex64 {
	s, c := math.Sincos(sign * 2 * math.Pi * float64(k%n) / float64(n))
	return complex(float32(c), float32(s))
}

// DFT computes the discrete Fourier transform of in by direct summation.
func DFT(in []float32) []complex64 {
	n := len(in)
	out := make([]complex64, n)
	for k := range n {
		var sum complex64
		for j, x := range in {
			sum += complex(x, 0) * twiddle(j*k, n, forward)
		}
		out[k] = sum
	}
	return out
}

// IDFT inverts DFT. Only the real part of each reconstructed sample is kept.
func IDFT(in []complex64) []float32 {
	n := len(in)
	out := make([]float32, n)
	for k := range n {
		var sum complex64
		for j, x := range in {
			sum += x * twiddle(j*k, n, inverse)
		}
		out[k] = real(sum) / float32(n)
	}
	return out
}

// FFT computes the same transform as DFT in O(n log n).
// It panics if len(in) is not a power of two.
func FFT(in []float32) []complex64 {
	n := len(in)
	mustPowerOfTwo(n)

	src := make([]complex64, n)
	for i, x := range in {
		src[i] = complex(x, 0)
	}
	out := make([]complex64, n)
	transform(out, src, 0, 1, forward)
	return out
}

// IFFT inverts FFT. It panics if len(in) is not a power of two.
func IFFT(in []complex64) []float32 {
	n := len(in)
	mustPowerOfTwo(n)

	tmp := make([]complex64, n)
	transform(tmp, in, 0, 1, inverse)

	out := make([]float32, n)
	scale := 1 / float32(n)
	for i, c := range tmp {
		out[i] = real(c) * scale
	}
	return out
}

// transform writes the len(out) point transform of the subsequence
// src[offset], src[offset+stride], src[offset+2·stride], ... into out.
//
// The even subsequence (offset, 2·stride) is transformed into the first half
// of out and the odd subsequence (offset+stride, 2·stride) into the second
// half. Neither subsequence is copied.
func transform(out, src []complex64, offset, stride int, sign float64) {
	n := len(out)
	if n == 1 {
		out[0] = src[offset]
		return
	}

	half := n / 2
	transform(out[:half], src, offset, stride*2, sign)
	transform(out[half:], src, offset+stride, stride*2, sign)

	for k := range half {
		e := out[k]
		o := twiddle(k, n, sign) * out[k+half]
		out[k] = e + o
		out[k+half] = e - o
	}
}

func mustPowerOfTwo(n int) {
	if !bitint.IsPowerOfTwo(n) {
		panic(fmt.Sprintf("fft: length %d is not a power of two", n))
	}
}

// Magnitude returns |c| in single precision.
func Magnitude(c complex64) float32 {
	return float32(math.Hypot(float64(real(c)), float64(imag(c))))
}
