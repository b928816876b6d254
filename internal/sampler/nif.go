package sampler

import "math/rand"

// applyNIFs runs layer's registered note-init functions against v in
// registration order (spec §4.6 "Apply each registered NIF... NIFs
// are a tagged closure (kind_id, integer_variant, float_param) that
// the module interprets deterministically"). Randomized NIFs use a
// package-level source seeded once at startup; determinism here means
// "the kind/variant/param triplet is interpreted the same way every
// time", not "reproducible random values".
func applyNIFs(v *Voice, layer *Layer, velocity int) {
	for _, n := range layer.NIFs {
		switch n.Kind {
		case NIFAddRandomAmp:
			v.targetLGain *= dBToGain(n.Param * (rand.Float64()*2 - 1))
			v.targetRGain *= dBToGain(n.Param * (rand.Float64()*2 - 1))
			v.lastLGain, v.lastRGain = v.targetLGain, v.targetRGain
		case NIFAddRandomFilter:
			v.cutoff *= pow2(n.Param * (rand.Float64()*2 - 1) / 1200)
		case NIFAddRandomPitch:
			v.nominalFreq *= pow2(n.Param * (rand.Float64()*2 - 1) / 1200)
		case NIFVelocityToEnvParam:
			applyVelocityToEnv(v, n.Variant, float64(velocity)/127.0*n.Param)
		case NIFVelocityToPitch:
			v.nominalFreq *= pow2(float64(velocity) / 127.0 * n.Param / 1200)
		case NIFCCToDelay:
			// Variant selects which envelope's delay is nudged; the CC
			// value itself isn't available at voice-init time in this
			// model, so Param is taken as an already-scaled seconds
			// offset computed by the caller before NIFs run.
			addEnvDelay(v, n.Variant, n.Param)
		}
	}
}

// applyVelocityToEnv scales the depth of the envelope selected by
// variant (0=amp, 1=filter, 2=pitch) by extra, a velocity-derived
// offset in the envelope's native units.
func applyVelocityToEnv(v *Voice, variant int, extra float64) {
	switch variant {
	case 0:
		v.ampEnvDepth += extra
	case 1:
		v.filEnvDepth += extra
	case 2:
		v.pitchEnvDepth += extra
	}
}

func addEnvDelay(v *Voice, variant int, extraSeconds float64) {
	var e *EnvelopeState
	switch variant {
	case 0:
		e = &v.ampEnv
	case 1:
		e = &v.filEnv
	case 2:
		e = &v.pitchEnv
	default:
		return
	}
	if extraSeconds <= 0 {
		return
	}
	extraSteps := int(extraSeconds * v.sampleRate / float64(blockSize))
	if e.stage == StageDelay {
		e.shape.DelaySteps += extraSteps
	}
}
