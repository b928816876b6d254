// Package seqtrack implements Track/TrackItem/TrackPlayback (spec §3,
// §4.4): a time-ordered list of pattern placements, resolved into a
// non-overlapping playback schedule, and rendered into a MIDI buffer
// sample range at a time.
package seqtrack

import (
	"sort"

	"github.com/calfbox-go/calfbox/internal/clock"
	"github.com/calfbox-go/calfbox/internal/midibuf"
	"github.com/calfbox-go/calfbox/internal/pattern"
)

// Item places one pattern on a track at a PPQN start time, playing
// length PPQN ticks starting pattern-internal-offset ticks into the
// pattern (spec §3 "Track / TrackItem").
type Item struct {
	Pattern    *pattern.MidiPattern
	StartPPQN  int
	OffsetPPQN int
	LengthPPQN int
}

// Track is the authored, unresolved list of items.
type Track struct {
	Channel int
	Items   []Item
}

// resolvedItem is one item after overlap resolution: possibly
// shortened/clipped relative to its authored Item.
type resolvedItem struct {
	Item
}

// Playback is the derived, non-overlapping schedule for one Track
// plus its live rendering cursor (spec §4.4 "Playback of a single
// item").
type Playback struct {
	channel int
	items   []resolvedItem
	tempo   *clock.TempoMap

	curIdx       int
	curStartSamp int64
	relSamples   int64
	readCursor   int // index into current item's pattern events
	minTimePPQN  int

	active ActiveNotes
}

// NewPlayback resolves overlaps in t (spec §4.4 "Resolution": iterate
// items in ascending start time, maintain safe = end_of_last_kept;
// skip fully-contained later items, clip partially-overlapping ones)
// and returns a fresh Playback positioned at PPQN 0.
func NewPlayback(t *Track, tempo *clock.TempoMap) *Playback {
	sorted := append([]Item(nil), t.Items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartPPQN < sorted[j].StartPPQN })

	var resolved []resolvedItem
	safe := -1 << 62
	for _, it := range sorted {
		end := it.StartPPQN + it.LengthPPQN
		if it.StartPPQN < safe {
			if end <= safe {
				continue // fully contained in the previous kept item: skip
			}
			// clip: shift start to safe, push the pattern offset forward
			// by the amount clipped so playback continues from the right
			// point in the pattern.
			clipped := safe - it.StartPPQN
			it.OffsetPPQN += clipped
			it.LengthPPQN -= clipped
			it.StartPPQN = safe
		}
		resolved = append(resolved, resolvedItem{it})
		safe = it.StartPPQN + it.LengthPPQN
	}

	p := &Playback{channel: t.Channel, items: resolved, tempo: tempo}
	p.SeekPPQN(0)
	return p
}

// SeekPPQN repositions playback at the given PPQN (spec §4.4
// "Seeking"): finds the containing (or next) item via linear search,
// sets min_time_ppqn to ppqn so an event exactly at the seek target
// fires once rather than being suppressed or re-triggered.
func (p *Playback) SeekPPQN(ppqn int) {
	p.minTimePPQN = ppqn
	p.curIdx = 0
	for i, it := range p.items {
		if ppqn < it.StartPPQN+it.LengthPPQN {
			p.curIdx = i
			break
		}
		p.curIdx = i + 1
	}
	if p.curIdx < len(p.items) {
		it := p.items[p.curIdx]
		startSamples := p.tempo.PPQNToSamples(it.StartPPQN)
		p.curStartSamp = startSamples
		nowSamples := p.tempo.PPQNToSamples(ppqn)
		p.relSamples = nowSamples - startSamples
		if p.relSamples < 0 {
			p.relSamples = 0
		}
		p.readCursor = it.Pattern.EventsFrom(ppqn - it.OffsetPPQN)
	}
}

// SeekSamples repositions playback at the given sample position by
// converting to PPQN first.
func (p *Playback) SeekSamples(samples int64) {
	p.SeekPPQN(p.tempo.SamplesToPPQN(samples))
}

// Render emits into buf every event of the current/upcoming items
// whose sample time falls within [windowStartSamples,
// windowStartSamples+n) (spec §4.4 "Render"), tracking ActiveNotes as
// it goes. It returns the number of samples actually consumed from
// the window (== n unless the buffer fills first).
//
// deltaOffset is added to every emitted event's buffer-relative delta
// time; callers rendering several sub-windows into one larger output
// buffer (e.g. a song render split by a loop boundary) pass the
// number of samples already consumed earlier in that larger buffer so
// delta times stay relative to the whole buffer's window, not just
// this sub-window.
func (p *Playback) Render(buf *midibuf.Buffer, windowStartSamples int64, n int, deltaOffset int) int {
	windowEnd := windowStartSamples + int64(n)

	for p.curIdx < len(p.items) {
		it := p.items[p.curIdx]
		itemEndSamples := p.tempo.PPQNToSamples(it.StartPPQN + it.LengthPPQN)

		if p.curStartSamp >= windowEnd {
			break // this item hasn't started within the window yet
		}

		for p.readCursor < len(it.Pattern.Events) {
			ev := it.Pattern.Events[p.readCursor]
			ppqn := ev.PPQN + it.OffsetPPQN
			if ppqn < p.minTimePPQN {
				p.readCursor++
				continue
			}
			sampleTime := p.tempo.PPQNToSamples(it.StartPPQN + ppqn - it.OffsetPPQN)
			if sampleTime >= itemEndSamples {
				break // event falls beyond this item's length: stop here, advance item
			}
			if sampleTime >= windowEnd {
				return n // nothing more fits in this window
			}
			if sampleTime < windowStartSamples {
				p.readCursor++
				continue
			}
			delta := int(sampleTime - windowStartSamples)
			if err := buf.WriteEvent(delta+deltaOffset, ev.Data); err != nil {
				return delta // buffer full: caller should retry from here
			}
			p.active.Track(p.channel, ev.Data)
			p.readCursor++
		}

		if itemEndSamples > windowEnd {
			return n // item continues past this window; resume here next call
		}
		p.curIdx++
		p.minTimePPQN = 0
		if p.curIdx < len(p.items) {
			next := p.items[p.curIdx]
			p.curStartSamp = p.tempo.PPQNToSamples(next.StartPPQN)
			p.readCursor = 0
		}
	}
	return n
}

// ActiveNotesBitmap exposes the playback's active-notes tracker.
func (p *Playback) ActiveNotesBitmap() *ActiveNotes { return &p.active }
