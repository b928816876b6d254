package sampler

// Finalize precomputes everything about l that voice init and
// per-block rendering assume is already resolved: envelope shapes
// quantized to blocksPerSecond, the cached linear gain, and the
// velocity curve's interpolated points (spec §9 "Envelopes as
// precomputed shapes"; grounded on sampler_layer.c's
// sampler_layer_finalize, which runs once at program-load time, off
// the audio thread).
func (l *Layer) Finalize(blocksPerSecond float64) {
	l.shape.amp = NewEnvelopeShape(l.AmpEnv, blocksPerSecond)
	l.shape.fil = NewEnvelopeShape(l.FilEnv, blocksPerSecond)
	l.shape.pitch = NewEnvelopeShape(l.PitchEnv, blocksPerSecond)
	l.gainLinear = dBToGain(l.GainDB)
	FinalizeVelcurve(l)
}
