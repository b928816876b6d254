package config

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/calfbox-go/calfbox/internal/cerrors"
)

// SongConfig is the [song:*] section: the scene's tempo map and the
// path to the pattern text file (spec §6 "Pattern text format",
// internal/pattern.ParseText) its tracks draw from.
type SongConfig struct {
	Name          string
	TempoBPM      float64
	TimeSigNum    int
	TimeSigDenom  int
	LoopStartPPQN int
	LoopEndPPQN   int
	PatternFile   string
}

// InstrumentConfig is one [instrument:*] section: a program slot bound
// to an SFZ file (internal/sfz.ParseProgram).
type InstrumentConfig struct {
	Name    string
	Program int
	SFZPath string
	Channel int
}

// TrackItemConfig is one pattern placement on a track, matching
// seqtrack.Item's fields before the named pattern is resolved to a
// *pattern.MidiPattern.
type TrackItemConfig struct {
	Pattern    string
	StartPPQN  int
	OffsetPPQN int
	LengthPPQN int
}

// TrackConfig is one [track:*] section.
type TrackConfig struct {
	Name    string
	Channel int
	Items   []TrackItemConfig
}

// SceneConfig is a whole scene file: one song, its instruments and its
// tracks.
type SceneConfig struct {
	Song        SongConfig
	Instruments []InstrumentConfig
	Tracks      []TrackConfig
}

// ParseScene parses calfbox's scene text format: the same [kind:name]
// key=value shape internal/pattern.ParseText and internal/sfz.Parse
// already use, generalised here to a third schema (song/instrument/
// track sections) rather than shared across packages, since each
// format's section kinds and key tables are unrelated to the others'.
func ParseScene(r io.Reader) (*SceneConfig, error) {
	sections, err := scanSceneSections(r)
	if err != nil {
		return nil, err
	}

	cfg := &SceneConfig{}
	sawSong := false
	for _, s := range sections {
		switch s.kind {
		case "song":
			if sawSong {
				return nil, cerrors.New(cerrors.KindConfig, "scene file must have exactly one [song:*] section")
			}
			sawSong = true
			cfg.Song = buildSongConfig(s)
		case "instrument":
			cfg.Instruments = append(cfg.Instruments, buildInstrumentConfig(s))
		case "track":
			tc, err := buildTrackConfig(s)
			if err != nil {
				return nil, err
			}
			cfg.Tracks = append(cfg.Tracks, tc)
		default:
			return nil, cerrors.New(cerrors.KindConfig, fmt.Sprintf("unrecognised scene section kind %q", s.kind))
		}
	}
	if !sawSong {
		return nil, cerrors.New(cerrors.KindConfig, "scene file missing required [song:*] section")
	}
	return cfg, nil
}

type sceneSection struct {
	kind string
	name string
	kv   map[string]string
}

func scanSceneSections(r io.Reader) ([]*sceneSection, error) {
	var sections []*sceneSection
	var cur *sceneSection

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			header := line[1 : len(line)-1]
			parts := strings.SplitN(header, ":", 2)
			if len(parts) != 2 {
				return nil, cerrors.New(cerrors.KindConfig, fmt.Sprintf("line %d: malformed section header %q", lineNo, line))
			}
			cur = &sceneSection{kind: strings.TrimSpace(parts[0]), name: strings.TrimSpace(parts[1]), kv: map[string]string{}}
			sections = append(sections, cur)
			continue
		}
		if cur == nil {
			return nil, cerrors.New(cerrors.KindConfig, fmt.Sprintf("line %d: key=value outside any section", lineNo))
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, cerrors.New(cerrors.KindConfig, fmt.Sprintf("line %d: expected key=value, got %q", lineNo, line))
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		cur.kv[strings.ToLower(key)] = val
	}
	if err := scan.Err(); err != nil {
		return nil, cerrors.Wrap(cerrors.KindIO, "reading scene file", err)
	}
	return sections, nil
}

func buildSongConfig(s *sceneSection) SongConfig {
	return SongConfig{
		Name:          s.name,
		TempoBPM:      atofDefault(s.kv["tempo"], 120),
		TimeSigNum:    atoiDefault(s.kv["beats_num"], 4),
		TimeSigDenom:  atoiDefault(s.kv["beats_den"], 4),
		LoopStartPPQN: atoiDefault(s.kv["loop_start_ppqn"], 0),
		LoopEndPPQN:   atoiDefault(s.kv["loop_end_ppqn"], -1),
		PatternFile:   s.kv["patterns"],
	}
}

func buildInstrumentConfig(s *sceneSection) InstrumentConfig {
	return InstrumentConfig{
		Name:    s.name,
		Program: atoiDefault(s.kv["program"], 0),
		SFZPath: s.kv["sfz"],
		Channel: atoiDefault(s.kv["channel"], 0),
	}
}

// buildTrackConfig collects the numbered itemN=pattern:start:offset:length
// keys in ascending N order, the same numbered-key idiom
// internal/pattern's drum sections use for per-step keys.
func buildTrackConfig(s *sceneSection) (TrackConfig, error) {
	tc := TrackConfig{Name: s.name, Channel: atoiDefault(s.kv["channel"], 0)}

	var itemKeys []string
	for k := range s.kv {
		if strings.HasPrefix(k, "item") {
			itemKeys = append(itemKeys, k)
		}
	}
	sort.Slice(itemKeys, func(i, j int) bool {
		ni, _ := strconv.Atoi(strings.TrimPrefix(itemKeys[i], "item"))
		nj, _ := strconv.Atoi(strings.TrimPrefix(itemKeys[j], "item"))
		return ni < nj
	})

	for _, k := range itemKeys {
		item, err := parseTrackItem(s.kv[k])
		if err != nil {
			return TrackConfig{}, cerrors.Wrap(cerrors.KindConfig, fmt.Sprintf("track %q key %q", s.name, k), err)
		}
		tc.Items = append(tc.Items, item)
	}
	return tc, nil
}

func parseTrackItem(value string) (TrackItemConfig, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return TrackItemConfig{}, cerrors.New(cerrors.KindConfig,
			fmt.Sprintf("expected pattern:start:offset:length, got %q", value))
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(parts[1]))
	offset, err2 := strconv.Atoi(strings.TrimSpace(parts[2]))
	length, err3 := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err1 != nil || err2 != nil || err3 != nil {
		return TrackItemConfig{}, cerrors.New(cerrors.KindConfig,
			fmt.Sprintf("non-integer ppqn field in %q", value))
	}
	return TrackItemConfig{
		Pattern:    strings.TrimSpace(parts[0]),
		StartPPQN:  start,
		OffsetPPQN: offset,
		LengthPPQN: length,
	}, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func atofDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
