package sampler

import "math"

func pow2(x float64) float64 { return math.Exp2(x) }

// dBToGain converts a decibel value to a linear amplitude gain.
func dBToGain(db float64) float64 { return math.Pow(10, db/20) }

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
