package sampler

import (
	"github.com/charmbracelet/log"

	"github.com/calfbox-go/calfbox/internal/prefetch"
)

// MidiChannels is the number of MIDI channels a Module instance
// tracks independently (spec §3 "SamplerChannel" is per-channel).
const MidiChannels = 16

// Module is a polyphonic sample-playback instrument implementing
// engine.Module (spec §3 "SamplerModule"): a fixed voice Pool, one
// Channel per MIDI channel, and a table of loaded Programs switched
// by program-change.
type Module struct {
	log *log.Logger

	name       string
	engineName string
	sampleRate int

	pool     *Pool
	channels [MidiChannels]*Channel
	programs []*Program

	bypassed bool

	swState [MidiChannels]int // last keyswitch note per channel, for sw_last matching
}

// NewModule returns an empty sampler instance: no programs loaded and
// every channel at its default state with no program selected, so a
// channel plays nothing until a program change selects a program.
func NewModule(name string, sampleRate int, logger *log.Logger) *Module {
	m := &Module{
		log:        logger,
		name:       name,
		engineName: "sampler",
		sampleRate: sampleRate,
		pool:       NewPool(float64(sampleRate)),
	}
	for i := range m.channels {
		m.channels[i] = NewChannel()
	}
	return m
}

// AttachPrefetchWorker wires a running prefetch worker into the
// module's voice pool, enabling streamed playback for any waveform
// whose decoded Frames exceed its PreloadedFrames (spec §4.7).
func (m *Module) AttachPrefetchWorker(w *prefetch.Worker) {
	m.pool.AttachPrefetchWorker(w)
}

// AddProgram registers a program so it becomes selectable by program
// change. Programs are looked up by Number, not by slice index.
func (m *Module) AddProgram(p *Program) {
	m.programs = append(m.programs, p)
}

func (m *Module) findProgram(number int) *Program {
	for _, p := range m.programs {
		if p.Number == number {
			return p
		}
	}
	return nil
}

// InputCount implements engine.Module: a sampler has no audio input.
func (m *Module) InputCount() int { return 0 }

// OutputCount implements engine.Module: stereo output.
func (m *Module) OutputCount() int { return 2 }

func (m *Module) Bypassed() bool     { return m.bypassed }
func (m *Module) SetBypassed(b bool) { m.bypassed = b }
func (m *Module) SampleRate() int    { return m.sampleRate }
func (m *Module) InstanceName() string { return m.name }
func (m *Module) EngineName() string   { return m.engineName }

// ProcessEvent implements engine.Module, dispatching one raw MIDI
// event (spec §4.6 "Controller handling" / "Note-off" / program
// change / pitch bend).
func (m *Module) ProcessEvent(data []byte) {
	if len(data) == 0 {
		return
	}
	status := data[0]
	ch := int(status & 0x0f)
	if ch >= MidiChannels {
		return
	}
	channel := m.channels[ch]

	switch status & 0xf0 {
	case 0x90: // note on (velocity 0 normalized to note-off by the wire layer upstream)
		if len(data) < 3 {
			return
		}
		note, vel := int(data[1]), int(data[2])
		if vel == 0 {
			m.pool.NoteOff(channel, note)
			return
		}
		prevSwitch := m.swState[ch]
		m.swState[ch] = note
		m.pool.NoteOn(channel, channel.Program, note, vel, prevSwitch)
	case 0x80: // note off
		if len(data) < 2 {
			return
		}
		m.pool.NoteOff(channel, int(data[1]))
	case 0xb0: // control change
		if len(data) < 3 {
			return
		}
		m.handleCC(channel, int(data[1]), int(data[2]))
	case 0xc0: // program change
		if len(data) < 2 {
			return
		}
		m.programChange(channel, int(data[1]))
	case 0xe0: // pitch bend
		if len(data) < 3 {
			return
		}
		value14 := int(data[1]) | (int(data[2]) << 7)
		channel.SetPitchBend(value14)
	}
}

// handleCC implements spec §4.6's fixed CC table.
func (m *Module) handleCC(ch *Channel, cc, value int) {
	value14 := value << 7 // coarse CC value promoted to 14-bit scale used by Volume/Expression
	switch cc {
	case 1: // modulation wheel
		ch.Modulation = value14
	case 7: // volume
		ch.Volume = value14
	case 10: // pan
		ch.Pan = value14
	case 11: // expression
		ch.Expression = value14
	case 64: // sustain
		held := value >= 64
		wasHeld := ch.Sustain
		ch.Sustain = held
		if wasHeld && !held {
			m.pool.ReleaseSustainedNotes()
		}
	case 66: // sostenuto
		ch.Sostenuto = value >= 64
	case 71: // resonance offset
		ch.ResonanceOffset = (float64(value) - 64) / 64 * 32
	case 74: // cutoff offset
		ch.CutoffOffset = (float64(value) - 64) / 64 * 2400
	case 120, 123: // all sound off / all notes off
		m.pool.ReleaseAll()
	case 121: // reset all controllers
		program := ch.Program
		*ch = *NewChannel()
		ch.Program = program
	}
}

func (m *Module) programChange(ch *Channel, number int) {
	p := m.findProgram(number)
	if p == nil {
		if m.log != nil {
			m.log.Warn("program change to unknown program, falling back to 0", "requested", number)
		}
		p = m.findProgram(0)
	}
	ch.Program = p
}

// ProcessBlock implements engine.Module: it ignores inputs (a sampler
// has none) and renders every active voice into outputs, one
// BlockSize-frame chunk (spec §4.6 "Per-block DSP").
func (m *Module) ProcessBlock(inputs, outputs [][]float32) {
	for i := range outputs {
		for j := range outputs[i] {
			outputs[i][j] = 0
		}
	}
	voices := m.pool.Voices()
	for i := range voices {
		v := &voices[i]
		if !v.Active() {
			continue
		}
		v.RenderBlock(outputs)
	}
}
