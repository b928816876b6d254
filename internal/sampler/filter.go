package sampler

import "math"

// BiquadCoeffs is a normalized (a0 == 1) RBJ biquad coefficient set.
type BiquadCoeffs struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// BiquadState is one direct-form-II-transposed biquad's running
// state, reused per-voice across both stereo channels (spec §3's
// "biquad state ×2" is two independent BiquadState values, one per
// channel, sharing a BiquadCoeffs).
type BiquadState struct {
	z1, z2 float64
}

// Process runs one sample through the filter using coeffs, updating
// the direct-form-II-transposed state.
func (s *BiquadState) Process(c *BiquadCoeffs, in float64) float64 {
	out := c.B0*in + s.z1
	s.z1 = c.B1*in - c.A1*out + s.z2
	s.z2 = c.B2*in - c.A2*out
	return out
}

// Reset clears the filter's memory, used on voice (re)allocation so a
// reused Voice slot doesn't carry over the previous note's filter
// ringing.
func (s *BiquadState) Reset() { s.z1, s.z2 = 0, 0 }

// ComputeBiquad derives normalized RBJ coefficients for the given
// filter type, cutoff (Hz) and resonance (dB, treated as the RBJ "Q"
// shape parameter via Q = 10^(resonance/20)), at sampleRate (spec
// §4.6 step 4: "recompute biquad coefficients from cutoff ± envelope
// and LFO modulation"). cutoff is clamped well inside the Nyquist
// range to keep the trigonometric terms well-conditioned.
func ComputeBiquad(ft FilterType, cutoff, resonanceDB, sampleRate float64) BiquadCoeffs {
	cutoff = clampFloat(cutoff, 20, sampleRate*0.45)
	q := dBToGain(resonanceDB)
	if q < 0.1 {
		q = 0.1
	}

	w0 := 2 * math.Pi * cutoff / sampleRate
	cosW0 := math.Cos(w0)
	sinW0 := math.Sin(w0)
	alpha := sinW0 / (2 * q)

	var b0, b1, b2, a0, a1, a2 float64
	switch ft {
	case FilterHighpass2Pole:
		b0 = (1 + cosW0) / 2
		b1 = -(1 + cosW0)
		b2 = (1 + cosW0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW0
		a2 = 1 - alpha
	case FilterBandpass2Pole:
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cosW0
		a2 = 1 - alpha
	case FilterPeaking2Pole:
		a := math.Pow(10, resonanceDB/40)
		b0 = 1 + alpha*a
		b1 = -2 * cosW0
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosW0
		a2 = 1 - alpha/a
	default: // FilterLowpass2Pole
		b0 = (1 - cosW0) / 2
		b1 = 1 - cosW0
		b2 = (1 - cosW0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW0
		a2 = 1 - alpha
	}

	return BiquadCoeffs{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}
