// SPDX-License-Identifier: MIT
package audio

// peak returns the largest absolute sample value.
func peak(buf []float32) float32 {
	var m float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		m = max(m, s)
	}
	return m
}

// gate silences buf when its peak stays below threshold and reports
// whether the gate was open. A threshold of zero keeps it open.
func gate(buf []float32, threshold float32) bool {
	if threshold <= 0 || peak(buf) >= threshold {
		return true
	}
	clear(buf)
	return false
}

// mix folds interleaved frames of channels into dst by averaging them.
// dst must hold len(in)/channels samples.
func mix(dst, in []float32, channels int) {
	if channels <= 1 {
		copy(dst, in)
		return
	}
	scale := 1 / float32(channels)
	for i := range dst {
		var sum float32
		for _, s := range in[i*channels : (i+1)*channels] {
			sum += s
		}
		dst[i] = sum * scale
	}
}
