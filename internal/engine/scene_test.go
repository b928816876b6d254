package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calfbox-go/calfbox/internal/clock"
	"github.com/calfbox-go/calfbox/internal/pattern"
	"github.com/calfbox-go/calfbox/internal/sampler"
	"github.com/calfbox-go/calfbox/internal/seqtrack"
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

const testSampleRate = 48000

func newTestWaveform(frames int) *wavebank.Waveform {
	data := make([]int16, frames)
	for i := range data {
		data[i] = 1000
	}
	return &wavebank.Waveform{ID: 1, Channels: 1, Frames: frames, SourceRate: testSampleRate, Data: data}
}

func newTestLayer(note int) *sampler.Layer {
	l := sampler.NewLayer()
	l.Waveform = newTestWaveform(48000)
	l.RootKey = note
	l.LoKey, l.HiKey = note, note
	l.LoopMode = sampler.LoopNoLoop
	l.SampleEnd = 48000
	l.Finalize(float64(testSampleRate) / float64(BlockSize))
	return l
}

func newTestScene(note, channel int) (*Scene, *sampler.Module) {
	layer := newTestLayer(note)
	program := &sampler.Program{Number: 0, Name: "test", Layers: []*sampler.Layer{layer}}

	mod := sampler.NewModule("test", testSampleRate, nil)
	mod.AddProgram(program)

	s := NewScene(mod)
	s.BindProgram(channel, 0)
	return s, mod
}

func TestSceneBindProgramSelectsChannelProgram(t *testing.T) {
	s, _ := newTestScene(60, 0)

	events := []pattern.Event{
		{PPQN: 0, Data: []byte{0x90, 60, 100}},
	}
	track := &seqtrack.Track{Channel: 0, Items: []seqtrack.Item{
		{Pattern: pattern.New(events, -1), StartPPQN: 0, LengthPPQN: 48},
	}}
	tempo := clock.NewTempoMap([]clock.TempoMapEntry{{DurationPPQN: 1 << 30, Tempo: 120, TimeSigNom: 4, TimeSigDenom: 4}}, testSampleRate)
	s.AddTrack(&TrackBinding{Name: "drums", Playback: seqtrack.NewPlayback(track, tempo)})

	out := [][]float32{make([]float32, 512), make([]float32, 512)}
	s.Render(0, out, 512)

	nonZero := false
	for _, v := range out[0] {
		if v != 0 {
			nonZero = true
			break
		}
	}
	require.True(t, nonZero, "note-on routed through the track should produce audible output")
}

func TestSceneRenderWithNoTracksProducesSilence(t *testing.T) {
	s, _ := newTestScene(60, 0)
	out := [][]float32{make([]float32, 256), make([]float32, 256)}
	s.Render(0, out, 256)
	for _, v := range out[0] {
		require.Zero(t, v)
	}
}
