// Package clock implements the master tempo map and PPQN↔sample
// conversion used to schedule song playback against real time
// (spec §4.3).
package clock

import (
	"math"
	"sort"
)

// PPQN is ticks per quarter note, the pattern/tempo-map time unit.
// Tunable at build time per spec §4.3; kept as a const here since the
// engine never varies it at runtime.
const PPQN = 48

// TempoMapEntry describes one span of the tempo map: a tempo (beats
// per minute), a time signature, and a duration in PPQN ticks.
type TempoMapEntry struct {
	DurationPPQN int
	Tempo        float64
	TimeSigNom   int
	TimeSigDenom int
}

// resolvedEntry is a precomputed cumulative entry: the PPQN/sample
// position at which this entry's span begins.
type resolvedEntry struct {
	TimePPQN    int
	TimeSamples int64
	Tempo       float64
	TimeSigNom  int
	TimeSigDenom int
}

// TempoMap is the piecewise-constant tempo schedule derived from a
// MasterTrack's items, precomputing cumulative (ppqn, samples) pairs
// per entry so conversions can binary-search instead of walking a
// linked list (spec §4.3).
type TempoMap struct {
	entries    []resolvedEntry
	sampleRate float64
}

// NewTempoMap builds a TempoMap from master-track items, matching the
// cumulative-sum construction in the original engine's song-playback
// setup (each entry's samples-length is srate*60*durationPPQN/(tempo*PPQN)).
func NewTempoMap(items []TempoMapEntry, sampleRate float64) *TempoMap {
	tm := &TempoMap{sampleRate: sampleRate}
	if len(items) == 0 {
		// A tempo map must always be able to answer conversions; default
		// to a single 120bpm 4/4 entry spanning "forever" conceptually
		// (practically bounded by DurationPPQN = 0 meaning "open ended",
		// handled by clamping lookups to the last entry).
		items = []TempoMapEntry{{DurationPPQN: 0, Tempo: 120, TimeSigNom: 4, TimeSigDenom: 4}}
	}
	posPPQN := 0
	var posSamples float64
	for _, it := range items {
		tm.entries = append(tm.entries, resolvedEntry{
			TimePPQN:     posPPQN,
			TimeSamples:  int64(posSamples),
			Tempo:        it.Tempo,
			TimeSigNom:   it.TimeSigNom,
			TimeSigDenom: it.TimeSigDenom,
		})
		posPPQN += it.DurationPPQN
		posSamples += sampleRate * 60.0 * float64(it.DurationPPQN) / (it.Tempo * PPQN)
	}
	return tm
}

// entryForPPQN returns the index of the last entry whose TimePPQN <= t.
func (tm *TempoMap) entryForPPQN(t int) int {
	i := sort.Search(len(tm.entries), func(i int) bool {
		return tm.entries[i].TimePPQN > t
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// entryForSamples returns the index of the last entry whose
// TimeSamples <= s.
func (tm *TempoMap) entryForSamples(s int64) int {
	i := sort.Search(len(tm.entries), func(i int) bool {
		return tm.entries[i].TimeSamples > s
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// PPQNToSamples converts a PPQN tick position to a sample position,
// interpolating linearly within the entry found by binary search.
func (tm *TempoMap) PPQNToSamples(ppqn int) int64 {
	idx := tm.entryForPPQN(ppqn)
	e := tm.entries[idx]
	deltaPPQN := ppqn - e.TimePPQN
	deltaSamples := tm.sampleRate * 60.0 * float64(deltaPPQN) / (e.Tempo * PPQN)
	return e.TimeSamples + int64(math.Round(deltaSamples))
}

// SamplesToPPQN converts a sample position back to PPQN ticks, the
// exact inverse of PPQNToSamples within one entry (spec §8: "For
// SongPlayback: samples_to_ppqn(ppqn_to_samples(t)) == t").
func (tm *TempoMap) SamplesToPPQN(samples int64) int {
	idx := tm.entryForSamples(samples)
	e := tm.entries[idx]
	deltaSamples := samples - e.TimeSamples
	deltaPPQN := float64(deltaSamples) * e.Tempo * PPQN / (tm.sampleRate * 60.0)
	return e.TimePPQN + int(math.Round(deltaPPQN))
}

// TempoAt returns the tempo and time signature in effect at PPQN
// position t.
func (tm *TempoMap) TempoAt(ppqn int) (tempo float64, num, denom int) {
	e := tm.entries[tm.entryForPPQN(ppqn)]
	return e.Tempo, e.TimeSigNom, e.TimeSigDenom
}

// SampleRate reports the sample rate this map was built for.
func (tm *TempoMap) SampleRate() float64 { return tm.sampleRate }

// SingleTempoPPQNToSamples converts using the simple single-tempo
// formula from spec §4.3, useful for tests and for a one-entry fast
// path: samples = ppqn * SR * 60 / (tempo * PPQN).
func SingleTempoPPQNToSamples(ppqn int, tempo, sampleRate float64) int64 {
	return int64(math.Round(float64(ppqn) * sampleRate * 60.0 / (tempo * PPQN)))
}

// SingleTempoSamplesToPPQN is the inverse of SingleTempoPPQNToSamples.
func SingleTempoSamplesToPPQN(samples int64, tempo, sampleRate float64) int {
	return int(math.Round(float64(samples) * tempo * PPQN / (sampleRate * 60.0)))
}
