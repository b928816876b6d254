// Package song implements SongPlayback (spec §3, §4.5): the top-level
// render loop that drives every track's Playback against a shared
// TempoMap, merges their output, and handles looping.
package song

import (
	"github.com/calfbox-go/calfbox/internal/clock"
	"github.com/calfbox-go/calfbox/internal/midibuf"
	"github.com/calfbox-go/calfbox/internal/seqtrack"
)

// State is the song transport state (spec §4.3 "Playback states").
type State int

const (
	StateStop State = iota
	StateRolling
)

// Playback is an owned snapshot of a song's tempo map and track
// playbacks plus live transport position (spec §3 "SongPlayback").
type Playback struct {
	tempo *clock.TempoMap
	tracks []*seqtrack.Playback

	state State

	loopStartPPQN, loopEndPPQN int

	songPosSamples int64
	songPosPPQN    int
	minTimePPQN    int

	pendingTempo *clock.TempoMap

	scratch []*midibuf.Buffer
}

// New builds a Playback over tracks against tempo, with the given
// loop bounds (loopStart >= loopEnd disables looping, per spec §4.5
// step 7).
func New(tempo *clock.TempoMap, tracks []*seqtrack.Playback, loopStartPPQN, loopEndPPQN int) *Playback {
	scratch := make([]*midibuf.Buffer, len(tracks))
	for i := range scratch {
		scratch[i] = midibuf.NewBuffer()
	}
	return &Playback{
		tempo:         tempo,
		tracks:        tracks,
		state:         StateRolling,
		loopStartPPQN: loopStartPPQN,
		loopEndPPQN:   loopEndPPQN,
		scratch:       scratch,
	}
}

// Stop transitions to the stop state; the next Render call will emit
// residual note-offs instead of advancing playback.
func (p *Playback) Stop() { p.state = StateStop }

// SetTempoMap schedules tempo as the map to switch to at the next
// Render call (spec §4.5: "if a pending tempo change exists... commits
// it and re-seeks to current PPQN").
func (p *Playback) SetTempoMap(tempo *clock.TempoMap) { p.pendingTempo = tempo }

// Render advances the song by n frames, writing merged MIDI events
// into out (spec §4.5 "Render"). out is cleared first. Returns the
// number of frames actually advanced, which is less than n only when
// a track's buffer fills (caller should retry the remainder next
// callback).
func (p *Playback) Render(out *midibuf.Buffer, n int) int {
	out.Clear()

	if p.pendingTempo != nil {
		p.tempo = p.pendingTempo
		p.pendingTempo = nil
		p.songPosSamples = p.tempo.PPQNToSamples(p.songPosPPQN)
		for _, t := range p.tracks {
			t.SeekPPQN(p.songPosPPQN)
		}
	}

	if p.state == StateStop {
		p.releaseResidual(out)
		return n
	}

	advanced := 0
	for advanced < n {
		endSamples := p.tempo.PPQNToSamples(p.loopEndPPQN)
		remaining := n - advanced
		rend := remaining
		if p.loopStartPPQN < p.loopEndPPQN {
			untilLoop := endSamples - p.songPosSamples
			if untilLoop < int64(remaining) {
				rend = int(untilLoop)
			}
		}
		if rend < 0 {
			rend = 0
		}

		for _, b := range p.scratch {
			b.Clear()
		}
		consumed := rend
		for i, t := range p.tracks {
			c := t.Render(p.scratch[i], p.songPosSamples, rend, advanced)
			if c < consumed {
				consumed = c
			}
		}
		positions := midibuf.NewPositions(len(p.scratch))
		midibuf.Merge(out, p.scratch, positions)

		p.songPosSamples += int64(consumed)
		p.songPosPPQN = p.tempo.SamplesToPPQN(p.songPosSamples)
		p.minTimePPQN = p.songPosPPQN
		advanced += consumed

		if consumed < rend {
			break // a track's buffer filled; stop here, resume next callback
		}

		if p.loopStartPPQN < p.loopEndPPQN && p.songPosSamples >= endSamples {
			p.songPosPPQN = p.loopStartPPQN
			p.songPosSamples = p.tempo.PPQNToSamples(p.loopStartPPQN)
			p.minTimePPQN = p.loopStartPPQN
			for _, t := range p.tracks {
				t.SeekPPQN(p.loopStartPPQN)
			}
			continue
		}
		if p.loopStartPPQN >= p.loopEndPPQN {
			p.state = StateStop
			break
		}
	}
	return advanced
}

// releaseResidual emits note-offs for every still-active note across
// every track (spec §4.5 "Active-notes release"), at the last event
// time currently in out.
func (p *Playback) releaseResidual(out *midibuf.Buffer) {
	deltaTime := 0
	if events := out.Events(); len(events) > 0 {
		deltaTime = events[len(events)-1].Time
	}
	for _, t := range p.tracks {
		t.ActiveNotesBitmap().ReleaseAll(out, deltaTime)
	}
}

// PositionPPQN exposes the current song position, mostly for tests.
func (p *Playback) PositionPPQN() int { return p.songPosPPQN }

// State exposes the current transport state.
func (p *Playback) State() State { return p.state }
