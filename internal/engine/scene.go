package engine

import (
	"github.com/google/uuid"

	"github.com/calfbox-go/calfbox/internal/midibuf"
	"github.com/calfbox-go/calfbox/internal/sampler"
	"github.com/calfbox-go/calfbox/internal/seqtrack"
	"github.com/calfbox-go/calfbox/internal/song"
)

// TrackBinding drives one sequencer track's rendered MIDI events into
// a Scene's shared per-callback buffer (spec §3 "Track", §4.4
// "Playback").
type TrackBinding struct {
	Name     string
	Playback *seqtrack.Playback
}

// Scene is the fixed routing graph of a running song (spec §3
// "Engine/Scene/Instrument/Module"): one multitimbral sampler.Module
// driven by a set of sequencer tracks, each bound to whichever MIDI
// channel its own Track.Channel was authored on. Calfbox's SFZ-keyed
// instrument model maps naturally onto the sampler's own per-channel
// program table (spec §4.6), so a Scene needs only one Module rather
// than one Module per configured instrument.
type Scene struct {
	Module *sampler.Module
	Tracks []*TrackBinding

	// Song drives song-level looping (spec §4.5) across every bound
	// track once BuildScene has collected them all. Nil for a Scene
	// assembled by hand via AddTrack, which falls back to rendering
	// each track independently with no loop wraparound.
	Song *song.Playback

	// LoadID correlates this scene's build with its log lines, the
	// same way each sampler.Program's own LoadID does for instrument
	// loads within it.
	LoadID string

	midi    *midibuf.Buffer
	scratch *SubchunkScratch
}

// NewScene wraps mod in a Scene with no tracks yet.
func NewScene(mod *sampler.Module) *Scene {
	return &Scene{
		Module:  mod,
		LoadID:  uuid.NewString(),
		midi:    midibuf.NewBuffer(),
		scratch: NewSubchunkScratch(mod.InputCount(), mod.OutputCount()),
	}
}

// AddTrack attaches a track binding to the scene.
func (s *Scene) AddTrack(tb *TrackBinding) { s.Tracks = append(s.Tracks, tb) }

// BindProgram selects programNumber as channel's active program by
// injecting the program-change event the module already dispatches
// (spec §4.6): the same mechanism a live program change uses, run once
// up front for each configured instrument.
func (s *Scene) BindProgram(channel, programNumber int) {
	s.Module.ProcessEvent([]byte{0xc0 | byte(channel&0x0f), byte(programNumber)})
}

// Render advances every bound track by n samples starting at
// windowStartSamples, collects their emitted MIDI events into one
// shared buffer, and renders the module's resulting audio into
// outputs (spec §4.2's per-callback loop; spec §4.4's Track.Render
// feeding spec §4.6's per-block dispatch). outputs must already be
// sized to the module's channel count, each slice exactly n long.
//
// When s.Song is set, it owns the song-level transport position and
// loop wraparound (spec §4.5), so windowStartSamples is ignored in
// favor of the song's own internal position. A Scene built without a
// Song (e.g. scenes assembled by hand via AddTrack) falls back to
// rendering each track independently against windowStartSamples, with
// no loop wraparound.
func (s *Scene) Render(windowStartSamples int64, outputs [][]float32, n int) {
	if s.Song != nil {
		s.Song.Render(s.midi, n)
		ProcessInSubchunks(s.Module, s.midi, nil, outputs, n, s.scratch)
		return
	}
	s.midi.Clear()
	for _, tb := range s.Tracks {
		tb.Playback.Render(s.midi, windowStartSamples, n, 0)
	}
	ProcessInSubchunks(s.Module, s.midi, nil, outputs, n, s.scratch)
}
