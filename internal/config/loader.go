package config

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/calfbox-go/calfbox/internal/cerrors"
	"github.com/calfbox-go/calfbox/internal/clock"
	"github.com/calfbox-go/calfbox/internal/pattern"
	"github.com/calfbox-go/calfbox/internal/sampler"
	"github.com/calfbox-go/calfbox/internal/seqtrack"
	"github.com/calfbox-go/calfbox/internal/sfz"
)

// LoadPrograms reads every [instrument:*] section's SFZ file into a
// *sampler.Program, resolving wave samples through loader (typically
// an *sfz.BankLoader wrapping the engine's shared *wavebank.Bank).
func LoadPrograms(scene *SceneConfig, loader sfz.WaveformLoader, logger *log.Logger) ([]*sampler.Program, error) {
	if logger == nil {
		logger = log.Default()
	}
	programs := make([]*sampler.Program, 0, len(scene.Instruments))
	for _, inst := range scene.Instruments {
		f, err := os.Open(inst.SFZPath)
		if err != nil {
			return nil, cerrors.Wrap(cerrors.KindIO, fmt.Sprintf("opening sfz file for instrument %q", inst.Name), err)
		}
		prog, err := sfz.ParseProgram(f, loader, logger, inst.Program, inst.Name)
		closeErr := f.Close()
		if err != nil {
			return nil, cerrors.Wrap(cerrors.KindConfig, fmt.Sprintf("parsing sfz file for instrument %q", inst.Name), err)
		}
		if closeErr != nil {
			return nil, cerrors.Wrap(cerrors.KindIO, fmt.Sprintf("closing sfz file for instrument %q", inst.Name), closeErr)
		}
		prog.LoadID = uuid.NewString()
		logger.Debug("loaded instrument program", "instrument", inst.Name, "load_id", prog.LoadID)
		programs = append(programs, prog)
	}
	return programs, nil
}

// LoadPatterns parses the scene's pattern text file (spec §6 "Pattern
// text format") into the named patterns its tracks reference.
func LoadPatterns(scene *SceneConfig) (map[string]*pattern.MidiPattern, error) {
	if scene.Song.PatternFile == "" {
		return map[string]*pattern.MidiPattern{}, nil
	}
	f, err := os.Open(scene.Song.PatternFile)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindIO, "opening pattern file", err)
	}
	defer f.Close()
	patterns, err := pattern.ParseText(f)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindConfig, "parsing pattern file", err)
	}
	return patterns, nil
}

// BuildTracks resolves each [track:*] section's numbered item
// placements against the already-parsed pattern set into
// seqtrack.Track values ready for seqtrack.NewPlayback.
func BuildTracks(scene *SceneConfig, patterns map[string]*pattern.MidiPattern) ([]*seqtrack.Track, error) {
	tracks := make([]*seqtrack.Track, 0, len(scene.Tracks))
	for _, tc := range scene.Tracks {
		items := make([]seqtrack.Item, 0, len(tc.Items))
		for _, ic := range tc.Items {
			p, ok := patterns[ic.Pattern]
			if !ok {
				return nil, cerrors.New(cerrors.KindConfig,
					fmt.Sprintf("track %q references unknown pattern %q", tc.Name, ic.Pattern))
			}
			items = append(items, seqtrack.Item{
				Pattern:    p,
				StartPPQN:  ic.StartPPQN,
				OffsetPPQN: ic.OffsetPPQN,
				LengthPPQN: ic.LengthPPQN,
			})
		}
		tracks = append(tracks, &seqtrack.Track{Channel: tc.Channel, Items: items})
	}
	return tracks, nil
}

// BuildTempoMap turns the scene's single [song:*] tempo/time-signature
// into a clock.TempoMap spanning the whole song. Scenes with
// mid-song tempo changes are out of this format's scope: it describes
// one tempo per scene file, matching the single TempoMapEntry here.
func BuildTempoMap(scene *SceneConfig, sampleRate float64) *clock.TempoMap {
	return clock.NewTempoMap([]clock.TempoMapEntry{{
		DurationPPQN: 1 << 30,
		Tempo:        scene.Song.TempoBPM,
		TimeSigNom:   scene.Song.TimeSigNum,
		TimeSigDenom: scene.Song.TimeSigDenom,
	}}, sampleRate)
}
