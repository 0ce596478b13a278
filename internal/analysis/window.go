// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"strings"

	"musicviz/internal/log"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied to samples before the transform.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "bartletthann"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// applyWindow multiplies coeffs in place by the selected gonum window.
// Unknown types fall back to Hann.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		log.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}

// windowTable caches the coefficients for the most recent input length.
// The number of buffered frames is stable once the buffer has filled, so
// the coefficients are rebuilt only while it is filling.
type windowTable struct {
	kind    WindowFunc
	n       int
	coeffs  []float32
	scratch []float64
}

func newWindowTable(kind WindowFunc, maxLen int) windowTable {
	return windowTable{
		kind:    kind,
		coeffs:  make([]float32, maxLen),
		scratch: make([]float64, maxLen),
	}
}

// forLength returns the n coefficients for an n sample window.
func (w *windowTable) forLength(n int) []float32 {
	if n == w.n {
		return w.coeffs[:n]
	}
	w.n = n
	coeffs := w.coeffs[:n]

	switch {
	case w.kind == Hann:
		// Periodic form, N = n: the first coefficient is 0 and the last is not.
		for i := range coeffs {
			coeffs[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n))))
		}
	case n == 1:
		// The symmetric gonum windows divide by n-1.
		coeffs[0] = 1
	default:
		scratch := w.scratch[:n]
		for i := range scratch {
			scratch[i] = 1
		}
		applyWindow(scratch, w.kind)
		for i, c := range scratch {
			coeffs[i] = float32(c)
		}
	}
	return coeffs
}
