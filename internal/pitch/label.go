// SPDX-License-Identifier: MIT
package pitch

import (
	"math"
	"strconv"
)

// Label is the displayed pitch. Windows without a pitch leave it alone;
// only Reset sets an explicit zero.
type Label struct {
	hz  float64
	set bool
}

// Observe records an estimate when ok is true and reports whether the
// label changed.
func (l *Label) Observe(hz float64, ok bool) bool {
	if !ok || (l.set && l.hz == hz) {
		return false
	}
	l.hz, l.set = hz, true
	return true
}

// Reset clears the label to 0 Hz.
func (l *Label) Reset() {
	l.hz, l.set = 0, true
}

// Value returns the displayed frequency and whether one was ever set.
func (l *Label) Value() (float64, bool) { return l.hz, l.set }

// Text formats the label, or "—" before the first estimate.
func (l *Label) Text() string {
	if !l.set {
		return "—"
	}
	return FormatHz(l.hz)
}

// FormatHz formats a frequency with three significant digits, switching to
// kHz from 999.5 Hz up: 10.0 Hz, 220 Hz, 4.50 kHz.
func FormatHz(hz float64) string {
	if hz < 999.5 {
		return precision3(hz) + " Hz"
	}
	return precision3(hz/1000) + " kHz"
}

// precision3 keeps trailing zeros, unlike %.3g.
func precision3(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'e', 2, 64), 64)
	exp := int(math.Floor(math.Log10(math.Abs(rounded))))
	return strconv.FormatFloat(rounded, 'f', max(2-exp, 0), 64)
}
