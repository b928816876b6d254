package sampler

import "math"

// LFOState is the per-voice runtime state for one of a layer's three
// LFOs: a phase accumulator plus a delay/fade envelope gating its
// output, matching spec §3's "three LFO states" and §4.6's per-block
// freq/delay/fade handling.
type LFOState struct {
	params     LFOParams
	phase      float64 // 0..1
	elapsedSec float64
	stepSec    float64 // seconds advanced per Advance call (one DSP block)
}

// NewLFOState starts an LFO at zero phase and zero elapsed time.
// sampleRate/BlockSize gives stepSec, the wall-clock time one DSP
// block covers.
func NewLFOState(p LFOParams, sampleRate float64, blockSize int) LFOState {
	return LFOState{params: p, stepSec: float64(blockSize) / sampleRate}
}

// Advance moves the LFO's phase and delay/fade envelope forward by
// one DSP block and returns its current output in -1..1, scaled by
// the fade-in envelope (0 during Delay, ramping 0→1 across Fade).
func (l *LFOState) Advance() float64 {
	l.elapsedSec += l.stepSec
	if l.params.Freq > 0 {
		l.phase += l.params.Freq * l.stepSec
		l.phase -= math.Floor(l.phase)
	}
	raw := math.Sin(2 * math.Pi * l.phase)

	gate := 0.0
	if l.elapsedSec >= l.params.Delay {
		if l.params.Fade <= 0 {
			gate = 1
		} else {
			gate = clampFloat((l.elapsedSec-l.params.Delay)/l.params.Fade, 0, 1)
		}
	}
	return raw * gate
}
