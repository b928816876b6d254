package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calfbox-go/calfbox/internal/config"
	"github.com/calfbox-go/calfbox/internal/song"
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

type fakeBuildLoader struct{}

func (fakeBuildLoader) Load(path string) (*wavebank.Waveform, error) {
	frames := 48000
	data := make([]int16, frames)
	for i := range data {
		data[i] = 1000
	}
	return &wavebank.Waveform{CanonicalPath: path, Channels: 1, Frames: frames, SourceRate: testSampleRate, Data: data}, nil
}

func writeBuildFixture(t *testing.T, loopStart, loopEnd int) *config.SceneConfig {
	t.Helper()
	dir := t.TempDir()
	sfzPath := filepath.Join(dir, "kit.sfz")
	require.NoError(t, os.WriteFile(sfzPath, []byte("<region>\nsample=kick.wav\nkey=60\n"), 0o644))
	patternPath := filepath.Join(dir, "patterns.txt")
	require.NoError(t, os.WriteFile(patternPath, []byte("[pattern:verse]\nbeats=1\ntrack1_notes=c4\ntrack1_vel=100\n"), 0o644))

	return &config.SceneConfig{
		Song: config.SongConfig{
			Name: "demo", TempoBPM: 120, TimeSigNum: 4, TimeSigDenom: 4,
			LoopStartPPQN: loopStart, LoopEndPPQN: loopEnd,
			PatternFile: patternPath,
		},
		Instruments: []config.InstrumentConfig{
			{Name: "kit", Program: 0, SFZPath: sfzPath, Channel: 0},
		},
		Tracks: []config.TrackConfig{
			{Name: "drums", Channel: 0, Items: []config.TrackItemConfig{
				{Pattern: "verse", StartPPQN: 0, OffsetPPQN: 0, LengthPPQN: 192},
			}},
		},
	}
}

func TestBuildSceneWiresSongLoopBounds(t *testing.T) {
	scene := writeBuildFixture(t, 0, 192)

	s, err := BuildScene(scene, fakeBuildLoader{}, testSampleRate, nil)
	require.NoError(t, err)
	require.NotNil(t, s.Song)
	require.Len(t, s.Tracks, 1)
}

func TestBuildSceneDisablesLoopingWhenLoopEndNotAfterLoopStart(t *testing.T) {
	scene := writeBuildFixture(t, 0, -1)

	s, err := BuildScene(scene, fakeBuildLoader{}, testSampleRate, nil)
	require.NoError(t, err)
	require.NotNil(t, s.Song)

	out := [][]float32{make([]float32, BlockSize), make([]float32, BlockSize)}
	// With looping disabled the song must stop on its own rather than
	// wrapping forever.
	for i := 0; i < 500 && s.Song.State() != song.StateStop; i++ {
		s.Render(int64(i*BlockSize), out, BlockSize)
	}
	require.Equal(t, song.StateStop, s.Song.State())
}
