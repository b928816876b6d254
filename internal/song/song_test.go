package song

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calfbox-go/calfbox/internal/clock"
	"github.com/calfbox-go/calfbox/internal/midibuf"
	"github.com/calfbox-go/calfbox/internal/pattern"
	"github.com/calfbox-go/calfbox/internal/seqtrack"
)

const testSampleRate = 48000.0

func fourBeatTempo() *clock.TempoMap {
	// 4 beats at PPQN=48 -> loop_end_ppqn = 192, 120bpm.
	return clock.NewTempoMap([]clock.TempoMapEntry{
		{DurationPPQN: 0, Tempo: 120, TimeSigNom: 4, TimeSigDenom: 4},
	}, testSampleRate)
}

// onBeatPattern fires one note-on/off pair at the start of each of its
// 4 beats, looping at 192 ticks (PPQN=48 * 4 beats).
func onBeatPattern() *pattern.MidiPattern {
	var events []pattern.Event
	for beat := 0; beat < 4; beat++ {
		ppqn := beat * 48
		events = append(events,
			pattern.Event{PPQN: ppqn, Data: []byte{0x90, 60, 100}},
			pattern.Event{PPQN: ppqn + 1, Data: []byte{0x80, 60, 0}},
		)
	}
	return pattern.New(events, 192)
}

func newSingleTrackSong(t *testing.T) (*Playback, *seqtrack.Playback) {
	t.Helper()
	tempo := fourBeatTempo()
	track := &seqtrack.Track{
		Channel: 0,
		Items: []seqtrack.Item{
			{Pattern: onBeatPattern(), StartPPQN: 0, OffsetPPQN: 0, LengthPPQN: 192},
		},
	}
	tp := seqtrack.NewPlayback(track, tempo)
	sp := New(tempo, []*seqtrack.Playback{tp}, 0, 192)
	return sp, tp
}

func countNoteOns(events []midibuf.Event, buf *midibuf.Buffer) int {
	n := 0
	for _, ev := range events {
		data := buf.Payload(ev)
		if len(data) >= 3 && data[0]&0xf0 == 0x90 && data[2] > 0 {
			n++
		}
	}
	return n
}

func TestSongLoopFiresEveryBeatEveryLoopWithoutDuplication(t *testing.T) {
	sp, _ := newSingleTrackSong(t)
	tempo := fourBeatTempo()

	samplesPerLoop := tempo.PPQNToSamples(192)
	totalSamples := samplesPerLoop * 3 // 3 loops

	out := midibuf.NewBuffer()
	total := 0
	chunk := 512
	noteOns := 0
	for total < int(totalSamples) {
		n := chunk
		if remaining := int(totalSamples) - total; n > remaining {
			n = remaining
		}
		advanced := sp.Render(out, n)
		noteOns += countNoteOns(out.Events(), out)
		require.Equal(t, n, advanced, "render should always fully advance in this scenario")
		total += advanced
	}

	// 4 beats/loop * 3 loops = 12 note-ons total, no duplicates at the
	// loop seam and none dropped.
	require.Equal(t, 12, noteOns)
}

func TestSongRenderAdvancesAtMostRequestedFrames(t *testing.T) {
	sp, _ := newSingleTrackSong(t)
	out := midibuf.NewBuffer()

	advanced := sp.Render(out, 256)
	require.Greater(t, advanced, 0)
	require.LessOrEqual(t, advanced, 256)
}

func TestSongStopEmitsResidualNoteOffsForActiveNotes(t *testing.T) {
	sp, tp := newSingleTrackSong(t)
	out := midibuf.NewBuffer()

	// Render a small window to trigger the first note-on without
	// reaching its matching note-off.
	_ = sp.Render(out, 5)
	tp.ActiveNotesBitmap().Track(0, []byte{0x90, 60, 100})

	sp.Stop()
	out2 := midibuf.NewBuffer()
	advanced := sp.Render(out2, 64)
	require.Equal(t, 64, advanced)

	found := false
	for _, ev := range out2.Events() {
		data := out2.Payload(ev)
		if len(data) >= 3 && data[0]&0xf0 == 0x80 && data[1] == 60 {
			found = true
		}
	}
	require.True(t, found, "expected a residual note-off for the still-active note")
	require.Equal(t, StateStop, sp.State())
}

func TestSongNonLoopingStopsAtLoopEndWhenStartNotLessThanEnd(t *testing.T) {
	tempo := fourBeatTempo()
	track := &seqtrack.Track{
		Channel: 0,
		Items: []seqtrack.Item{
			{Pattern: onBeatPattern(), StartPPQN: 0, OffsetPPQN: 0, LengthPPQN: 192},
		},
	}
	tp := seqtrack.NewPlayback(track, tempo)
	// loopStart >= loopEnd disables looping (spec §4.5 step 7).
	sp := New(tempo, []*seqtrack.Playback{tp}, 0, 0)

	out := midibuf.NewBuffer()
	total := 0
	for i := 0; i < 100 && sp.State() == StateRolling; i++ {
		total += sp.Render(out, 256)
	}
	require.Equal(t, StateStop, sp.State())
}

func TestSongPositionPPQNAdvancesMonotonically(t *testing.T) {
	sp, _ := newSingleTrackSong(t)
	out := midibuf.NewBuffer()

	last := sp.PositionPPQN()
	for i := 0; i < 20; i++ {
		sp.Render(out, 512)
		cur := sp.PositionPPQN()
		require.GreaterOrEqual(t, cur+192, last, "position should not regress except at a loop wrap")
		last = cur
	}
}
