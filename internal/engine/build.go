package engine

import (
	"github.com/charmbracelet/log"

	"github.com/calfbox-go/calfbox/internal/config"
	"github.com/calfbox-go/calfbox/internal/sampler"
	"github.com/calfbox-go/calfbox/internal/seqtrack"
	"github.com/calfbox-go/calfbox/internal/sfz"
	"github.com/calfbox-go/calfbox/internal/song"
)

// BuildScene wires a parsed config.SceneConfig into a running Scene:
// it loads every configured instrument's SFZ program into one shared
// multitimbral sampler.Module, binds each to its configured channel,
// parses the scene's pattern file, and resolves every track's
// playback schedule against a tempo map built from the scene's
// tempo/time signature.
func BuildScene(scene *config.SceneConfig, loader sfz.WaveformLoader, sampleRate int, logger *log.Logger) (*Scene, error) {
	mod := sampler.NewModule("sampler", sampleRate, logger)

	programs, err := config.LoadPrograms(scene, loader, logger)
	if err != nil {
		return nil, err
	}
	for _, p := range programs {
		mod.AddProgram(p)
	}

	s := NewScene(mod)
	if logger != nil {
		logger.Debug("scene built", "load_id", s.LoadID, "song", scene.Song.Name)
	}
	for _, inst := range scene.Instruments {
		s.BindProgram(inst.Channel, inst.Program)
	}

	patterns, err := config.LoadPatterns(scene)
	if err != nil {
		return nil, err
	}
	tracks, err := config.BuildTracks(scene, patterns)
	if err != nil {
		return nil, err
	}
	tempo := config.BuildTempoMap(scene, float64(sampleRate))
	playbacks := make([]*seqtrack.Playback, len(scene.Tracks))
	for i, tc := range scene.Tracks {
		pb := seqtrack.NewPlayback(tracks[i], tempo)
		playbacks[i] = pb
		s.AddTrack(&TrackBinding{Name: tc.Name, Playback: pb})
	}
	s.Song = song.New(tempo, playbacks, scene.Song.LoopStartPPQN, scene.Song.LoopEndPPQN)
	return s, nil
}
