// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used when sizing Fourier
transforms and frame buffers.

All functions are O(1), allocation free and safe to call from the audio
callback.

Usage:

	// Reject an FFT size at configuration time
	if !bitint.IsPowerOfTwo(fftSize) { ... }

	// Number of radix-2 stages for a 2048 point transform
	stages := bitint.Log2(2048) // 11

	// Reverse the low 3 bits of 1 (001 -> 100)
	j := bitint.ReverseBits(1, 3) // 4

NextPowerOfTwo subtracts one before measuring the bit length so that exact
powers of two map to themselves:

	size = 8: bits.Len(7) = 3, 1<<3 = 8
	size = 9: bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Values <= 0 map to 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
// A power of two has a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns floor(log2(n)) for n > 0 and -1 otherwise.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// ReverseBits reverses the lowest width bits of i. Higher bits are discarded.
func ReverseBits(i, width int) int {
	if width <= 0 {
		return 0
	}
	return int(bits.Reverse(uint(i)) >> (bits.UintSize - width))
}
