// Package sampler implements the polyphonic sample-playback voice
// pool and its per-voice DSP pipeline: interpolation, DAHDSR
// envelopes, LFOs, and a biquad filter (spec §4.6), bound to an
// SFZ-style region/group program model (spec §3).
package sampler

import "github.com/calfbox-go/calfbox/internal/wavebank"

// LoopMode enumerates a region's looping behavior.
type LoopMode int

const (
	LoopNoLoop LoopMode = iota
	LoopOneShot
	LoopContinuous
	LoopSustain
	loopUnknown // sentinel meaning "not yet resolved", mirrors slm_unknown
)

// FilterType enumerates the supported biquad topologies.
type FilterType int

const (
	FilterLowpass2Pole FilterType = iota
	FilterHighpass2Pole
	FilterBandpass2Pole
	FilterPeaking2Pole
)

// VoiceMode distinguishes how a voice reads its source waveform.
type VoiceMode int

const (
	VoiceInactive VoiceMode = iota
	VoiceMono16
	VoiceStereo16
)

// ModSource / ModDest enumerate the fixed modulation-matrix endpoints
// (spec §3 "fixed modulation matrix").
type ModSource int

const (
	ModSrcNone ModSource = iota
	ModSrcCC
	ModSrcAmpLFO
	ModSrcFilLFO
	ModSrcPitchLFO
	ModSrcVelocity
	ModSrcChannelAftertouch
	ModSrcPolyAftertouch
)

type ModDest int

const (
	ModDestNone ModDest = iota
	ModDestGain
	ModDestCutoff
	ModDestResonance
	ModDestPitch
)

// Modulation is one entry of a layer's fixed modulation matrix: an
// optional pair of sources feeding a destination with a scale amount.
type Modulation struct {
	Src    ModSource
	Src2   ModSource // ModSrcNone if unused
	CC     int       // valid when Src/Src2 == ModSrcCC
	Dest   ModDest
	Amount float64
	Flags  int
}

// NIFKind enumerates the deterministic note-init-function kinds a
// layer can register (spec §4.6 "NIFs are a tagged closure").
type NIFKind int

const (
	NIFAddRandomAmp NIFKind = iota
	NIFAddRandomFilter
	NIFAddRandomPitch
	NIFVelocityToEnvParam
	NIFVelocityToPitch
	NIFCCToDelay
)

// NIF is a tagged closure the voice-init path applies in registration
// order: (kind, an integer variant selecting which envelope/parameter
// it targets, and a float scale).
type NIF struct {
	Kind    NIFKind
	Variant int
	Param   float64
}

// EnvelopeParams are the DAHDSR shape parameters as authored (seconds
// for time stages, 0..1 for levels), before finalisation converts them
// into a per-sample-rate EnvelopeShape.
type EnvelopeParams struct {
	Delay, Attack, Hold, Decay, Release float64 // seconds
	Sustain                             float64 // 0..1
	Start                               float64 // 0..1 initial level
	Depth                               float64 // modulation depth in cents (pitch/filter envelopes)
	Vel2Depth                           float64
}

// LFOParams describe one of a layer's three LFOs (amp/filter/pitch).
type LFOParams struct {
	Freq  float64 // Hz
	Delay float64 // seconds before the LFO starts
	Fade  float64 // seconds to fade in
	Depth float64 // modulation depth (cents, or dest-specific units)
}

// Layer is the SFZ-style region descriptor (spec §3 "SamplerLayer").
// Group inheritance ("a region layer may have a parent group layer;
// unset fields take the parent's value") is resolved at parse time by
// Clone, not by a live parent pointer: the sfz parser clones the
// enclosing <group>'s fully-resolved Layer as the starting point for
// each <region>, then applies the region's own key=value overrides on
// top — the same clone-then-override shape as sampler_layer_clone
// followed by sampler_layer_load_overrides in the original engine.
type Layer struct {

	Waveform *wavebank.Waveform

	LoKey, HiKey   int
	LoVel, HiVel   int
	Key            int // -1 unless pinned via the "key" shorthand
	RootKey        int
	TuneCents      float64
	TransposeSemis int
	KeyTrackCents  float64 // pitch key-scaling, cents per semitone (100 = normal)

	LoopStart, LoopEnd int // frames; LoopStart == -1 means "no loop"
	SampleOffset       int
	SampleEnd          int
	LoopMode           LoopMode

	AmpEnv, FilEnv, PitchEnv EnvelopeParams
	AmpLFO, FilLFO, PitchLFO LFOParams

	FilterType      FilterType
	Cutoff          float64 // Hz
	Resonance       float64 // dB
	FilterVelTrack  float64

	Modulations []Modulation
	NIFs        []NIF

	ExclusiveGroup int // -1 if none
	OffBy          int // -1 if none

	Velcurve         [128]float64
	VelcurveQuadratic bool

	GainDB float64
	PanPos float64 // -1..1

	AuxSendGains [2]float64
	AuxSendBuses [2]int

	SwDown, SwUp, SwLast, SwPrevious int // -1 if unused
	SwLoKey, SwHiKey                 int

	// resolved at Finalize time
	gainLinear float64
	shape      struct {
		amp, fil, pitch EnvelopeShape
	}
}

// NewLayer returns a Layer with calfbox's documented defaults (spec §6
// SFZ key defaults): pitch_keycenter 60, pitch_keytrack 100 cents,
// transpose 0, tune 0, volume 0dB, pan 0, offset 0.
func NewLayer() *Layer {
	l := &Layer{
		LoKey:          0,
		HiKey:          127,
		LoVel:          0,
		HiVel:          127,
		Key:            -1,
		RootKey:        60,
		KeyTrackCents:  100,
		LoopMode:       loopUnknown,
		LoopStart:      -1,
		ExclusiveGroup: -1,
		OffBy:          -1,
		SwDown:         -1,
		SwUp:           -1,
		SwLast:         -1,
		SwPrevious:     -1,
		SwLoKey:        0,
		SwHiKey:        127,
		VelcurveQuadratic: true,
	}
	for i := range l.Velcurve {
		l.Velcurve[i] = -1
	}
	l.Velcurve[0] = 0
	l.Velcurve[127] = 1
	return l
}

// Clone returns a deep-enough copy of l suitable as the starting point
// for a <region> beneath l as an enclosing <group>: the Velcurve array
// copies by value, and Modulations/NIFs get fresh backing slices so
// the region can append/replace without mutating the group.
func (l *Layer) Clone() *Layer {
	cp := *l
	if l.Modulations != nil {
		cp.Modulations = append([]Modulation(nil), l.Modulations...)
	}
	if l.NIFs != nil {
		cp.NIFs = append([]NIF(nil), l.NIFs...)
	}
	return &cp
}

// Program is an ordered list of layers plus a program number (spec §3
// "SamplerProgram").
type Program struct {
	Number int
	Name   string
	Layers []*Layer

	// LoadID correlates this program's load with log lines emitted
	// during async RT command completion (e.g. prefetch attach),
	// since Number/Name alone can collide across reloads of the same
	// instrument slot.
	LoadID string
}

// Channel is the per-MIDI-channel runtime state (spec §3
// "SamplerChannel"). Controller values are stored pre-scaled to their
// 14-bit internal representation where the spec calls for it.
type Channel struct {
	Program *Program

	PitchBendValue14 int     // raw 14-bit value, 8192 == centered
	PitchBendRange   float64 // semitones
	pitchBendFactor  float64

	Volume, Pan, Expression, Modulation int // 14-bit (0..16383)
	Sustain, Sostenuto                  bool
	CutoffOffset, ResonanceOffset       float64 // cents / dB offsets from CC71/74
}

// NewChannel returns a Channel with neutral defaults: centered pan,
// full volume/expression, zero pitch bend.
func NewChannel() *Channel {
	c := &Channel{
		PitchBendValue14: 8192,
		PitchBendRange:   2,
		Volume:           16383,
		Pan:              8192,
		Expression:       16383,
	}
	c.recomputePitchBend()
	return c
}

// SetPitchBend stores a new raw 14-bit pitch-bend value and
// recomputes the cached multiplicative factor.
func (c *Channel) SetPitchBend(value14 int) {
	c.PitchBendValue14 = value14
	c.recomputePitchBend()
}

func (c *Channel) recomputePitchBend() {
	c.pitchBendFactor = pitchBendFactor(c.PitchBendValue14, c.PitchBendRange)
}

// PitchBendFactor returns the precomputed multiplicative frequency
// factor for the channel's current pitch-bend value (spec §4.6):
// 2^((value14 - 8192) * pbrange / (1200 * 8192)), where pbrange is
// PitchBendRange expressed in cents (100 per semitone).
func (c *Channel) PitchBendFactor() float64 { return c.pitchBendFactor }

func pitchBendFactor(value14 int, semitoneRange float64) float64 {
	return pow2(float64(value14-8192) * semitoneRange * 100.0 / (1200.0 * 8192.0))
}
