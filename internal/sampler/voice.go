package sampler

import (
	"math"

	"github.com/calfbox-go/calfbox/internal/prefetch"
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

// MaxSamplerVoices is the fixed size of the polyphony pool (spec
// §4.6 "MAX_SAMPLER_VOICES = 128").
const MaxSamplerVoices = 128

// MaxReleasedGroups bounds how many exclusive groups a single note-on
// can collect for cutoff processing (spec §4.6 "collect up to 4 such
// groups", source constant MAX_RELEASED_GROUPS). Exposed as a named
// constant rather than a bare literal per the redesign note asking
// that this limit be documented as a tunable.
const MaxReleasedGroups = 4

const blockSize = 16 // matches engine.BlockSize; kept local to avoid an import cycle

// phaseShift is the number of fractional bits in a voice's 64-bit
// split (integer_sample, frac_pos) position/delta representation.
const phaseShift = 32
const phaseOne = int64(1) << phaseShift

// Voice is one polyphony slot (spec §3 "SamplerVoice"). A Voice with
// Mode == VoiceInactive is free for reuse by voice allocation.
type Voice struct {
	Mode    VoiceMode
	Layer   *Layer
	Program *Program

	pos      int64 // integer_sample << phaseShift | frac_pos, frames
	delta    int64 // integer_step << phaseShift | frac_step, frames/sample
	loopStart, loopEnd int64 // frames, -1 means no loop
	sampleEnd int64

	Note, Velocity int
	Released               bool
	ReleasedWithSustain    bool
	ReleasedWithSostenuto  bool
	CapturedSostenuto      bool

	nominalFreq float64

	lastLGain, lastRGain float64
	targetLGain, targetRGain float64

	cutoff, resonance float64
	ampEnvDepth, filEnvDepth, pitchEnvDepth float64

	biquadL, biquadR BiquadState

	ampEnv, filEnv, pitchEnv EnvelopeState
	ampLFO, filLFO, pitchLFO LFOState

	loopMode LoopMode
	offBy    int

	channel *Channel

	sampleRate float64

	// Streamed-sample state (spec §4.7): set only when the voice's
	// waveform has frames beyond its preloaded prefix. pipeBaseFrame is
	// the first source frame served by the pipe rather than
	// Layer.Waveform.Data directly; pipeConsumed tracks how far the
	// voice has advanced into it so Pipe.Advance is only ever told
	// about newly-read frames.
	prefetchWorker *prefetch.Worker
	pipe           *prefetch.Pipe
	pipeIdx        int
	pipeBaseFrame  int64
	pipeConsumed   int64
}

// Active reports whether the slot currently holds a sounding note.
func (v *Voice) Active() bool { return v.Mode != VoiceInactive }

// Pool is the fixed-size voice array plus the allocation/exclusive-
// group bookkeeping that spans all voices of one sampler instance.
type Pool struct {
	voices         [MaxSamplerVoices]Voice
	sampleRate     float64
	prefetchWorker *prefetch.Worker
}

// NewPool returns a Pool with every voice inactive.
func NewPool(sampleRate float64) *Pool {
	p := &Pool{sampleRate: sampleRate}
	for i := range p.voices {
		p.voices[i].sampleRate = sampleRate
		p.voices[i].pipeIdx = -1
	}
	return p
}

// AttachPrefetchWorker wires a running prefetch worker into the pool;
// subsequent note-ons for waveforms with streamed (beyond-preload)
// frames will acquire a pipe from it. Without a worker attached,
// voices read every frame straight from the waveform's Data.
func (p *Pool) AttachPrefetchWorker(w *prefetch.Worker) {
	p.prefetchWorker = w
}

// Voices exposes the underlying slice for iteration by the module's
// per-block render loop.
func (p *Pool) Voices() []Voice { return p.voices[:] }

// firstInactive returns the index of the first free slot, or -1 if
// the pool is exhausted (spec §4.6: "if the pool is exhausted,
// additional matching layers are silently dropped").
func (p *Pool) firstInactive() int {
	for i := range p.voices {
		if !p.voices[i].Active() {
			return i
		}
	}
	return -1
}

// layerMatches reports whether layer l accepts (note, velocity),
// including the keyswitch state passed as swState.
func layerMatches(l *Layer, note, velocity int, swState int) bool {
	if note < l.LoKey || note > l.HiKey {
		return false
	}
	if velocity < l.LoVel || velocity > l.HiVel {
		return false
	}
	if l.Key != -1 && l.Key != note {
		return false
	}
	if l.SwLast != -1 && l.SwLast != swState {
		return false
	}
	return true
}

// NoteOn performs voice allocation and init for one (channel, note,
// velocity) event (spec §4.6 "Voice allocation" / "Voice init"),
// walking program.Layers and populating one Voice slot per matching
// layer for which an inactive slot exists. It then runs exclusive-
// group enforcement across the whole pool.
func (p *Pool) NoteOn(ch *Channel, program *Program, note, velocity int, swState int) {
	if program == nil {
		return
	}

	groups := make([]int, 0, MaxReleasedGroups)

	for _, layer := range program.Layers {
		if !layerMatches(layer, note, velocity, swState) {
			continue
		}
		idx := p.firstInactive()
		if idx == -1 {
			break
		}
		p.initVoice(&p.voices[idx], ch, program, layer, note, velocity)

		if layer.ExclusiveGroup >= 0 && len(groups) < MaxReleasedGroups {
			alreadyCollected := false
			for _, g := range groups {
				if g == layer.ExclusiveGroup {
					alreadyCollected = true
					break
				}
			}
			if !alreadyCollected {
				groups = append(groups, layer.ExclusiveGroup)
			}
		}
	}

	if len(groups) > 0 {
		p.cutByGroups(groups, note)
	}
}

// cutByGroups releases every active voice (other than ones holding
// note) whose off_by id is in groups (spec §4.6 "Exclusive-group
// enforcement").
func (p *Pool) cutByGroups(groups []int, note int) {
	for i := range p.voices {
		v := &p.voices[i]
		if !v.Active() || v.Note == note || v.offBy < 0 {
			continue
		}
		for _, g := range groups {
			if v.offBy == g {
				v.Released = true
				v.ampEnv.Release()
				break
			}
		}
	}
}

func (p *Pool) initVoice(v *Voice, ch *Channel, program *Program, layer *Layer, note, velocity int) {
	v.releasePipe() // return any pipe this slot held from its previous note to the free pool

	w := layer.Waveform
	mode := VoiceMono16
	if w != nil && w.Channels == 2 {
		mode = VoiceStereo16
	}

	*v = Voice{
		Mode:       mode,
		Layer:      layer,
		Program:    program,
		Note:       note,
		Velocity:   velocity,
		channel:    ch,
		sampleRate: v.sampleRate,
		loopMode:   layer.LoopMode,
		offBy:      layer.OffBy,
		pipeIdx:    -1,
	}

	rootKey := layer.RootKey
	if layer.Key != -1 {
		rootKey = layer.Key
	}
	// freq = layer.freq * 2^(((note-root)*keytrack + tune + 100*transpose)/1200), spec §4.6 "Voice init".
	cents := float64(note-rootKey)*layer.KeyTrackCents + layer.TuneCents + 100.0*float64(layer.TransposeSemis)
	v.nominalFreq = waveformBaseFreq(w) * pow2(cents/1200.0)

	gain := layer.gainLinear * layer.VelocityGain(velocity)
	v.targetLGain, v.targetRGain = panGains(gain, layer.PanPos)
	v.lastLGain, v.lastRGain = v.targetLGain, v.targetRGain

	v.cutoff = layer.Cutoff
	v.resonance = layer.Resonance
	v.ampEnvDepth = layer.AmpEnv.Depth
	v.filEnvDepth = layer.FilEnv.Depth
	v.pitchEnvDepth = layer.PitchEnv.Depth

	v.ampEnv = NewEnvelopeState(layer.shape.amp)
	v.filEnv = NewEnvelopeState(layer.shape.fil)
	v.pitchEnv = NewEnvelopeState(layer.shape.pitch)

	v.ampLFO = NewLFOState(layer.AmpLFO, v.sampleRate, blockSize)
	v.filLFO = NewLFOState(layer.FilLFO, v.sampleRate, blockSize)
	v.pitchLFO = NewLFOState(layer.PitchLFO, v.sampleRate, blockSize)

	v.biquadL.Reset()
	v.biquadR.Reset()

	start := int64(layer.SampleOffset)
	v.pos = start << phaseShift
	v.loopStart = int64(layer.LoopStart)
	v.loopEnd = int64(layer.LoopEnd)
	v.sampleEnd = int64(layer.SampleEnd)
	if w != nil && v.sampleEnd == 0 {
		v.sampleEnd = int64(w.Frames)
	}
	if v.loopMode == LoopNoLoop || v.loopMode == LoopOneShot {
		v.loopStart = -1
	}

	v.prefetchWorker = p.prefetchWorker
	if w != nil && p.prefetchWorker != nil && w.PreloadedFrames < w.Frames {
		fileLoopStart := -1
		if v.loopStart >= 0 {
			fileLoopStart = int(v.loopStart)
		}
		if idx, ok := p.prefetchWorker.Pop(waveformSource{w}, w.PreloadedFrames, fileLoopStart, int(v.loopEnd)); ok {
			v.pipeIdx = idx
			v.pipe = p.prefetchWorker.Pipe(idx)
			v.pipeBaseFrame = int64(w.PreloadedFrames)
		}
	}

	applyNIFs(v, layer, velocity)
}

// releasePipe returns the voice's prefetch pipe (if any) to the
// worker's free pool. Called both when a slot is about to be reused
// for a new note and when a voice's playback naturally terminates.
func (v *Voice) releasePipe() {
	if v.pipe != nil && v.prefetchWorker != nil {
		v.prefetchWorker.Push(v.pipeIdx)
	}
	v.pipe = nil
	v.pipeIdx = -1
}

func waveformBaseFreq(w *wavebank.Waveform) float64 {
	if w == nil {
		return 440
	}
	// A waveform plays at its nominal pitch when stepped at its own
	// source rate; middle-A reference is folded into root-key offset
	// handling above, so the base frequency here is simply derived
	// from the source sample rate relative to a fixed 1 Hz-per-frame
	// mapping used by the phase increment math in freqToDelta.
	return float64(w.SourceRate)
}

// panGains splits a linear gain into left/right channel gains from a
// -1..1 pan position: panning right attenuates the left channel,
// panning left attenuates the right, center leaves both at gain.
func panGains(gain, pan float64) (l, r float64) {
	pan = clampFloat(pan, -1, 1)
	l = gain * (1 - math.Max(pan, 0))
	r = gain * (1 + math.Min(pan, 0))
	return l, r
}

// NoteOff applies spec §4.6 "Note-off" semantics for every active
// voice on ch matching note.
func (p *Pool) NoteOff(ch *Channel, note int) {
	for i := range p.voices {
		v := &p.voices[i]
		if !v.Active() || v.channel != ch || v.Note != note {
			continue
		}
		v.noteOff()
	}
}

func (v *Voice) noteOff() {
	if v.loopMode == LoopOneShot {
		return
	}
	if v.channel != nil && v.channel.Sustain {
		v.ReleasedWithSustain = true
		return
	}
	if v.CapturedSostenuto {
		v.ReleasedWithSostenuto = true
		return
	}
	v.release()
}

func (v *Voice) release() {
	v.Released = true
	if v.loopMode == LoopSustain {
		v.loopStart = -1
	}
	v.ampEnv.Release()
}

// ReleaseSustainedNotes is called on a CC64 sustain-off transition:
// every voice marked ReleasedWithSustain (and not also sostenuto-held)
// now actually releases.
func (p *Pool) ReleaseSustainedNotes() {
	for i := range p.voices {
		v := &p.voices[i]
		if v.Active() && v.ReleasedWithSustain && !v.ReleasedWithSostenuto {
			v.ReleasedWithSustain = false
			v.release()
		}
	}
}

// ReleaseAll implements CC120/CC123 "all voices release".
func (p *Pool) ReleaseAll() {
	for i := range p.voices {
		v := &p.voices[i]
		if v.Active() {
			v.release()
		}
	}
}
