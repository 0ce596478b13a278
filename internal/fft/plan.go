// SPDX-License-Identifier: MIT
package fft

import (
	"fmt"

	"musicviz/pkg/bitint"
)

// Plan holds the precomputed tables for an iterative, in-place radix-2
// transform of a fixed size. Forward and Inverse do not allocate.
//
// A Plan is not safe for concurrent use; each analyzer owns its own.
type Plan struct {
	n       int
	rev     []int       // bit-reversal permutation
	twiddle []complex64 // exp(-2πi·k/n), k in [0, n/2)
	work    []complex64 // scratch for Inverse
}

// NewPlan prepares a transform of n points. n must be a power of two.
func NewPlan(n int) (*Plan, error) {
	if !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("fft plan size must be a power of 2, got %d", n)
	}

	width := bitint.Log2(n)
	rev := make([]int, n)
	for i := range rev {
		rev[i] = bitint.ReverseBits(i, width)
	}

	tw := make([]complex64, n/2)
	for k := range tw {
		tw[k] = twiddle(k, n, forward)
	}

	return &Plan{
		n:       n,
		rev:     rev,
		twiddle: tw,
		work:    make([]complex64, n),
	}, nil
}

// Len returns the transform size.
func (p *Plan) Len() int {
	return p.n
}

// Forward writes the transform of src into dst. len(dst) must equal Len();
// src shorter than Len() is zero padded, longer src is truncated.
func (p *Plan) Forward(dst []complex64, src []float32) {
	p.checkLen(len(dst))
	for i, r := range p.rev {
		if r < len(src) {
			dst[i] = complex(src[r], 0)
		} else {
			dst[i] = 0
		}
	}
	p.butterflies(dst, false)
}

// Inverse writes the inverse transform of src into dst, keeping the real
// part of every sample. Both slices must have length Len().
func (p *Plan) Inverse(dst []float32, src []complex64) {
	p.checkLen(len(dst))
	p.checkLen(len(src))
	for i, r := range p.rev {
		p.work[i] = src[r]
	}
	p.butterflies(p.work, true)

	scale := 1 / float32(p.n)
	for i, c := range p.work {
		dst[i] = real(c) * scale
	}
}

// butterflies runs the log2(n) combine stages over data, which must already
// be in bit-reversed order.
func (p *Plan) butterflies(data []complex64, conj bool) {
	for size := 2; size <= p.n; size <<= 1 {
		half := size >> 1
		step := p.n / size
		for start := 0; start < p.n; start += size {
			for k := range half {
				w := p.twiddle[k*step]
				if conj {
					w = complex(real(w), -imag(w))
				}
				a := start + k
				b := a + half
				o := w * data[b]
				data[b] = data[a] - o
				data[a] += o
			}
		}
	}
}

func (p *Plan) checkLen(n int) {
	if n != p.n {
		panic(fmt.Sprintf("fft: buffer length %d does not match plan size %d", n, p.n))
	}
}
