package sampler

import "math"

const int16Scale = 1.0 / 32768.0

// RenderBlock runs one BLOCK_SIZE-frame DSP block for v (spec §4.6
// "Per-block DSP"), mixing into out (len(out) channels, each sized at
// least blockSize frames, added to — not overwritten, so the caller
// can sum many voices into the same buffer).
//
// When the voice terminates (amp envelope finished, or end of sample
// with no loop) RenderBlock marks the slot inactive itself. It returns
// false when called on an inactive voice or when the amp envelope
// finishes in this call; the block in which the sample end is reached
// still returns true.
func (v *Voice) RenderBlock(out [][]float32) bool {
	if !v.Active() {
		return false
	}

	// Step 1: advance envelopes one step; terminate on amp env finish.
	v.ampEnv.Advance()
	if v.ampEnv.Terminated() {
		v.Mode = VoiceInactive
		v.releasePipe()
		return false
	}
	v.filEnv.Advance()
	v.pitchEnv.Advance()

	ampLFOVal := v.ampLFO.Advance()
	filLFOVal := v.filLFO.Advance()
	pitchLFOVal := v.pitchLFO.Advance()

	// Step 2: effective frequency and phase increment.
	pitchBend := 1.0
	if v.channel != nil {
		pitchBend = v.channel.PitchBendFactor()
	}
	pitchCents := v.pitchEnvDepth*v.pitchEnv.Level() + pitchLFOVal*v.Layer.PitchLFO.Depth
	effFreq := v.nominalFreq * pitchBend * pow2(pitchCents/1200)
	v.delta = freqToDelta(effFreq, v.sampleRate)

	// Step 3: target gain and left/right ramp.
	chanVolume, chanExpression := 1.0, 1.0
	if v.channel != nil {
		chanVolume = float64(v.channel.Volume) / 16383.0
		chanExpression = float64(v.channel.Expression) / 16383.0
	}
	gainScale := v.ampEnv.Level() * chanVolume * chanExpression * (1 + ampLFOVal*v.Layer.AmpLFO.Depth)
	targetL := v.targetLGain * gainScale
	targetR := v.targetRGain * gainScale
	stepL := (targetL - v.lastLGain) / float64(blockSize)
	stepR := (targetR - v.lastRGain) / float64(blockSize)

	// Step 4: filter coefficients for this block.
	cutoff := v.cutoff * pow2((v.filEnv.Level()*v.filEnvDepth+filLFOVal*v.Layer.FilLFO.Depth)/1200)
	resonance := v.resonance
	if v.channel != nil {
		cutoff *= pow2(v.channel.CutoffOffset / 1200)
		resonance += v.channel.ResonanceOffset
	}
	resonance = clampFloat(resonance, 0.7, 32)
	coeffs := ComputeBiquad(v.Layer.FilterType, cutoff, resonance, v.sampleRate)

	n := blockSize
	if len(out) > 0 && len(out[0]) < n {
		n = len(out[0])
	}
	stereo := v.Mode == VoiceStereo16

	// Step 5: inner sample loop into out, then step 6 (filter) applied
	// per sample so no extra scratch buffer is needed.
	for i := 0; i < n; i++ {
		if v.loopEnd > 0 && v.pos>>phaseShift >= v.loopEnd {
			if v.loopStart == -1 {
				v.Mode = VoiceInactive
				v.releasePipe()
				break
			}
			v.pos -= (v.loopEnd - v.loopStart) << phaseShift
		}
		if v.sampleEnd > 0 && v.pos>>phaseShift >= v.sampleEnd && v.loopStart == -1 {
			v.Mode = VoiceInactive
			v.releasePipe()
			break
		}

		frame := v.pos >> phaseShift
		frac := float64(v.pos&(phaseOne-1)) / float64(phaseOne)

		lGain := v.lastLGain + stepL*float64(i)
		rGain := v.lastRGain + stepR*float64(i)

		sL := v.interpolate(frame, frac, 0)
		filteredL := v.biquadL.Process(&coeffs, sL*lGain)
		out[0][i] += float32(filteredL)

		if len(out) > 1 {
			sR := sL
			if stereo {
				sR = v.interpolate(frame, frac, 1)
			}
			filteredR := v.biquadR.Process(&coeffs, sR*rGain)
			out[1][i] += float32(filteredR)
		}

		v.pos += v.delta
	}

	// Step 7: remember ramp endpoints for next block.
	v.lastLGain, v.lastRGain = targetL, targetR

	if v.pipe != nil {
		consumedNow := v.pos>>phaseShift - v.pipeBaseFrame
		if consumedNow > v.pipeConsumed {
			v.pipe.Advance(int(consumedNow - v.pipeConsumed))
			v.pipeConsumed = consumedNow
		}
	}
	return true
}

// interpolate fetches the cubic-Lagrange-interpolated sample at
// (frame, frac) on the given waveform channel, handling loop-wrap
// when a tap falls past loop_end (spec §4.6 step 5).
func (v *Voice) interpolate(frame int64, frac float64, channel int) float64 {
	w := v.Layer.Waveform
	if w == nil {
		return 0
	}
	tap := func(off int64) float64 {
		f := frame + off
		if v.loopEnd > 0 && v.loopStart >= 0 {
			for f >= v.loopEnd {
				f -= v.loopEnd - v.loopStart
			}
		}
		if v.pipe != nil && f >= v.pipeBaseFrame {
			idx := f - v.pipeBaseFrame - v.pipeConsumed
			if idx < 0 {
				idx = 0
			}
			if s, ok := v.pipe.Read(int(idx), channel); ok {
				return float64(s) * int16Scale
			}
			return 0 // not yet produced by the prefetch worker: silence, not stale memory
		}
		return float64(w.Sample(int(f), channel)) * int16Scale
	}

	x0, x1, x2, x3 := tap(-1), tap(0), tap(1), tap(2)
	t := frac
	return (-t*(t-1)*(t-2)*x0 +
		3*(t+1)*(t-1)*(t-2)*x1 -
		3*(t+1)*t*(t-2)*x2 +
		(t+1)*t*(t-1)*x3) / 6
}

// freqToDelta converts an effective playback frequency into the
// 64-bit split (integer_step, frac_step) phase increment. The
// waveform's SourceRate is the rate at which it plays at its nominal
// (unshifted) pitch, so the increment is simply freq/sampleRate of
// output frames per source frame, scaled into the fixed-point split.
func freqToDelta(freq, sampleRate float64) int64 {
	ratio := freq / sampleRate
	if ratio < 0 {
		ratio = 0
	}
	return int64(math.Round(ratio * float64(phaseOne)))
}
