// SPDX-License-Identifier: MIT
package analysis

// BeatDetector flags sudden rises in a band level.
type BeatDetector struct {
	threshold      float64 // level a beat must exceed
	minEnergyRatio float64 // rise over the previous level
	cooldown       int     // observations ignored after a beat
	lastEnergy     float64
	quiet          int
}

// NewBeatDetector returns a detector. cooldown is counted in observations.
func NewBeatDetector(threshold, minEnergyRatio float64, cooldown int) *BeatDetector {
	return &BeatDetector{
		threshold:      threshold,
		minEnergyRatio: minEnergyRatio,
		cooldown:       max(cooldown, 0),
	}
}

// Observe takes the next level and reports whether it is a beat.
func (bd *BeatDetector) Observe(energy float64) bool {
	last := bd.lastEnergy
	bd.lastEnergy = energy
	if bd.quiet > 0 {
		bd.quiet--
		return false
	}
	if energy > bd.threshold && (last == 0 || energy/last > bd.minEnergyRatio) {
		bd.quiet = bd.cooldown
		return true
	}
	return false
}

// Reset forgets the previous level.
func (bd *BeatDetector) Reset() {
	bd.lastEnergy = 0
	bd.quiet = 0
}
