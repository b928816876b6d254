// Package pattern implements the MidiPattern event-list type (spec
// §3 "MidiPattern") and the config-driven drum/melodic pattern text
// format that compiles into one (spec §6 "Pattern text format").
package pattern

import "sort"

// Event is one scheduled event within a pattern: a PPQN timestamp and
// its raw MIDI payload. Patterns are small enough (SFZ/drum-pattern
// scale) that payloads are plain byte slices rather than midibuf's
// inline-optimized encoding.
type Event struct {
	PPQN int
	Data []byte
}

// MidiPattern is a sorted, immutable list of timestamped MIDI events
// plus a loop length (spec §3): LoopEndPPQN == -1 marks a one-shot
// pattern; otherwise playback wraps every LoopEndPPQN ticks.
type MidiPattern struct {
	Events      []Event
	LoopEndPPQN int
}

// New returns a MidiPattern with events sorted by PPQN (stable, so
// same-time events keep their given relative order — spec §8's
// invariant "events[i].time <= events[i+1].time").
func New(events []Event, loopEndPPQN int) *MidiPattern {
	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PPQN < sorted[j].PPQN })
	return &MidiPattern{Events: sorted, LoopEndPPQN: loopEndPPQN}
}

// OneShot reports whether the pattern has no loop point.
func (p *MidiPattern) OneShot() bool { return p.LoopEndPPQN < 0 }

// EventsFrom returns the index of the first event whose PPQN is >=
// ppqn (binary search, since Events is sorted).
func (p *MidiPattern) EventsFrom(ppqn int) int {
	return sort.Search(len(p.Events), func(i int) bool { return p.Events[i].PPQN >= ppqn })
}

// Transposed returns a copy of p with every note-on/note-off/poly-
// aftertouch event's note byte shifted by semitones, supporting the
// pattern text format's "tracks can compose patterns with
// +semitones... transposition" (spec §6).
func (p *MidiPattern) Transposed(semitones int) *MidiPattern {
	if semitones == 0 {
		return p
	}
	events := make([]Event, len(p.Events))
	for i, ev := range p.Events {
		data := append([]byte(nil), ev.Data...)
		if len(data) >= 2 {
			switch data[0] & 0xf0 {
			case 0x80, 0x90, 0xa0:
				data[1] = clampNote(int(data[1]) + semitones)
			}
		}
		events[i] = Event{PPQN: ev.PPQN, Data: data}
	}
	return &MidiPattern{Events: events, LoopEndPPQN: p.LoopEndPPQN}
}

// Retargeted returns a copy of p with every note-on/off event's note
// replaced by targetNote, supporting the pattern text format's
// "=targetnote" composition.
func (p *MidiPattern) Retargeted(targetNote int) *MidiPattern {
	events := make([]Event, len(p.Events))
	for i, ev := range p.Events {
		data := append([]byte(nil), ev.Data...)
		if len(data) >= 2 {
			switch data[0] & 0xf0 {
			case 0x80, 0x90, 0xa0:
				data[1] = clampNote(targetNote)
			}
		}
		events[i] = Event{PPQN: ev.PPQN, Data: data}
	}
	return &MidiPattern{Events: events, LoopEndPPQN: p.LoopEndPPQN}
}

func clampNote(n int) byte {
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return byte(n)
}
