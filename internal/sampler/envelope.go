package sampler

// EnvelopeStage enumerates the DAHDSR stages a voice's envelope can be
// in.
type EnvelopeStage int

const (
	StageDelay EnvelopeStage = iota
	StageAttack
	StageHold
	StageDecay
	StageSustain
	StageRelease
	StageFinished
)

// EnvelopeShape is the immutable, precomputed piecewise-linear DAHDSR
// shape built once at layer-finalisation time (spec §9 "Envelopes as
// precomputed shapes"): each stage carries its length in envelope
// update steps (one step per BLOCK_SIZE-frame DSP block, per spec
// §4.6) and the level to ramp toward, so per-voice state is only a
// stage index and a position within it.
type EnvelopeShape struct {
	DelaySteps  int
	AttackSteps int
	HoldSteps   int
	DecaySteps  int
	ReleaseSteps int
	StartLevel  float64
	SustainLevel float64
}

// NewEnvelopeShape converts author-time EnvelopeParams (seconds) into
// an EnvelopeShape quantized to blocksPerSecond update steps —
// srate/BLOCK_SIZE, per the original's cbox_envelope_init_dahdsr call
// with m->module.srate / CBOX_BLOCK_SIZE.
func NewEnvelopeShape(p EnvelopeParams, blocksPerSecond float64) EnvelopeShape {
	return EnvelopeShape{
		DelaySteps:   stepsOrZero(p.Delay, blocksPerSecond),
		AttackSteps:  stepsOrZero(p.Attack, blocksPerSecond),
		HoldSteps:    stepsOrZero(p.Hold, blocksPerSecond),
		DecaySteps:   stepsOrZero(p.Decay, blocksPerSecond),
		ReleaseSteps: stepsOrZero(p.Release, blocksPerSecond),
		StartLevel:   p.Start,
		SustainLevel: p.Sustain,
	}
}

func stepsOrZero(seconds, blocksPerSecond float64) int {
	if seconds <= 0 {
		return 0
	}
	n := int(seconds * blocksPerSecond)
	if n < 1 {
		n = 1
	}
	return n
}

// EnvelopeState is the per-voice runtime state for one DAHDSR
// envelope instance: a stage and a position within it, plus the last
// computed level (so Advance/Level don't need to recompute from
// scratch on every call).
type EnvelopeState struct {
	shape             EnvelopeShape
	stage             EnvelopeStage
	pos               int
	level             float64
	releaseStartLevel float64
}

// NewEnvelopeState starts an envelope in its delay stage (or attack,
// if DelaySteps is 0). shape is copied by value so each voice gets an
// independent copy it can nudge (e.g. a CC-to-delay note-init
// function extending DelaySteps) without disturbing the layer's
// shared, precomputed shape or any other voice using it.
func NewEnvelopeState(shape EnvelopeShape) EnvelopeState {
	s := EnvelopeState{shape: shape, stage: StageDelay, level: shape.StartLevel}
	if shape.DelaySteps == 0 {
		s.stage = StageAttack
	}
	return s
}

// Advance steps the envelope forward by one BLOCK_SIZE-frame DSP
// block (spec §4.6 step 1: "Advance amp, filter, pitch envelopes one
// step").
func (e *EnvelopeState) Advance() {
	s := e.shape
	switch e.stage {
	case StageDelay:
		e.pos++
		if e.pos >= s.DelaySteps {
			e.stage, e.pos = StageAttack, 0
		}
	case StageAttack:
		e.pos++
		if s.AttackSteps <= 0 || e.pos >= s.AttackSteps {
			e.level = 1
			e.stage, e.pos = StageHold, 0
			if s.HoldSteps == 0 {
				e.stage, e.pos = StageDecay, 0
			}
		} else {
			e.level = s.StartLevel + (1-s.StartLevel)*float64(e.pos)/float64(s.AttackSteps)
		}
	case StageHold:
		e.pos++
		if e.pos >= s.HoldSteps {
			e.stage, e.pos = StageDecay, 0
		}
	case StageDecay:
		e.pos++
		if s.DecaySteps <= 0 || e.pos >= s.DecaySteps {
			e.level = s.SustainLevel
			e.stage, e.pos = StageSustain, 0
		} else {
			e.level = 1 - (1-s.SustainLevel)*float64(e.pos)/float64(s.DecaySteps)
		}
	case StageSustain:
		e.level = s.SustainLevel
	case StageRelease:
		e.pos++
		if s.ReleaseSteps <= 0 || e.pos >= s.ReleaseSteps {
			e.level = 0
			e.stage = StageFinished
		} else {
			e.level = e.releaseStartLevel * (1 - float64(e.pos)/float64(s.ReleaseSteps))
		}
	case StageFinished:
		e.level = 0
	}
}

// Release jumps the envelope into its release stage, capturing the
// current level as the ramp-down's starting point (not always 1 or
// Sustain — a note can be released mid-attack).
func (e *EnvelopeState) Release() {
	if e.stage == StageFinished {
		return
	}
	e.releaseStartLevel = e.level
	e.stage, e.pos = StageRelease, 0
}

// Level returns the envelope's current 0..1 level.
func (e *EnvelopeState) Level() float64 { return e.level }

// Terminated reports whether the envelope has fully completed its
// release (spec §3 voice lifetime: "transitions to inactive when the
// amp envelope finishes").
func (e *EnvelopeState) Terminated() bool { return e.stage == StageFinished }

// Stage exposes the current stage, mostly for tests.
func (e *EnvelopeState) Stage() EnvelopeStage { return e.stage }
