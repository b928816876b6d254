package pattern

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/calfbox-go/calfbox/internal/cerrors"
)

// section is one [section:name] block's raw key=value pairs, keyed by
// lower-cased key (teacher's config.go-style line-oriented parse:
// read a line, split into tokens, dispatch on the leading keyword —
// here the keyword is a key=value pair instead of a command verb).
type section struct {
	kind string
	name string
	kv   map[string]string
}

// ParseText parses the config-driven drum/melodic pattern text format
// (spec §6 "Pattern text format") into one MidiPattern per named
// section. A section without its own "channel" key uses MIDI channel 9
// (0-based) for drum sections and channel 0 for melodic sections.
func ParseText(r io.Reader) (map[string]*MidiPattern, error) {
	sections, err := scanSections(r)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*MidiPattern, len(sections))
	for _, s := range sections {
		var p *MidiPattern
		var err error
		switch s.kind {
		case "drumpattern", "drumtrack":
			p, err = buildDrumPattern(s)
		case "pattern", "track":
			p, err = buildMelodicPattern(s)
		default:
			continue
		}
		if err != nil {
			return nil, cerrors.Wrap(cerrors.KindFormat, fmt.Sprintf("section [%s:%s]", s.kind, s.name), err)
		}
		out[s.name] = p
	}
	return out, nil
}

func scanSections(r io.Reader) ([]*section, error) {
	var sections []*section
	var cur *section

	scan := bufio.NewScanner(r)
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
			cur = &section{kind: strings.TrimSpace(parts[0]), name: strings.TrimSpace(parts[1]), kv: map[string]string{}}
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
		return nil, cerrors.Wrap(cerrors.KindIO, "reading pattern text", err)
	}
	return sections, nil
}

const ticksPerBeat = 48 // matches clock.PPQN; duplicated as a literal constant so this package does not import internal/clock

func buildDrumPattern(s *section) (*MidiPattern, error) {
	beats := atoiDefault(s.kv["beats"], 4)
	channel := atoiDefault(s.kv["channel"], 9) // GM drum channel default
	swingGlobal := atoiDefault(s.kv["swing"], 0)
	resolution := atoiDefault(s.kv["resolution"], 4) // notes per beat

	var events []Event
	for i := 1; ; i++ {
		triggerKey := fmt.Sprintf("track%d_trigger", i)
		trigger, ok := s.kv[triggerKey]
		if !ok {
			break
		}
		note := atoiDefault(s.kv[fmt.Sprintf("track%d_note", i)], 36)
		swing := atoiDefault(s.kv[fmt.Sprintf("track%d_swing", i)], swingGlobal)
		res := atoiDefault(s.kv[fmt.Sprintf("track%d_res", i)], resolution)

		ticksPerStep := ticksPerBeat / res
		if ticksPerStep <= 0 {
			ticksPerStep = 1
		}
		for stepIdx, ch := range trigger {
			vel := triggerVelocity(ch)
			if vel == 0 {
				continue
			}
			t := stepIdx * ticksPerStep
			if stepIdx%2 == 1 {
				t += swing
			}
			switch ch {
			case 'F':
				events = append(events, noteEvents(channel, note, vel, t-ticksPerStep/4+humanise())...)
			case 'D':
				events = append(events, noteEvents(channel, note, vel, t-ticksPerStep/8+humanise())...)
				events = append(events, noteEvents(channel, note, vel, t-ticksPerStep/4+humanise())...)
			default:
				events = append(events, noteEvents(channel, note, vel, t)...)
			}
		}
	}
	return New(events, beats*ticksPerBeat), nil
}

func buildMelodicPattern(s *section) (*MidiPattern, error) {
	beats := atoiDefault(s.kv["beats"], 4)
	channel := atoiDefault(s.kv["channel"], 0)
	swing := atoiDefault(s.kv["swing"], 0)
	resolution := atoiDefault(s.kv["resolution"], 4)

	var events []Event
	for i := 1; ; i++ {
		notesKey := fmt.Sprintf("track%d_notes", i)
		notesCSV, ok := s.kv[notesKey]
		if !ok {
			break
		}
		velStr := s.kv[fmt.Sprintf("track%d_vel", i)]
		vel := atoiDefault(velStr, 100)
		res := atoiDefault(s.kv[fmt.Sprintf("track%d_res", i)], resolution)

		ticksPerStep := ticksPerBeat / res
		if ticksPerStep <= 0 {
			ticksPerStep = 1
		}

		for stepIdx, name := range strings.Split(notesCSV, ",") {
			name = strings.TrimSpace(name)
			if name == "" || name == "." {
				continue
			}
			note, err := parseNoteName(name)
			if err != nil {
				return nil, err
			}
			t := stepIdx * ticksPerStep
			if stepIdx%2 == 1 {
				t += swing
			}
			events = append(events, noteEvents(channel, note, vel, t)...)
		}
	}
	return New(events, beats*ticksPerBeat), nil
}

func noteEvents(channel, note, velocity, ticks int) []Event {
	if ticks < 0 {
		ticks = 0
	}
	on := Event{PPQN: ticks, Data: []byte{byte(0x90 | (channel & 0x0f)), byte(note), byte(velocity)}}
	off := Event{PPQN: ticks + 1, Data: []byte{byte(0x80 | (channel & 0x0f)), byte(note), 0}}
	return []Event{on, off}
}

// triggerVelocity maps a trigger character to a 0-127 velocity: '1'-
// '9' scale to 127/9 steps, '.' and anything else rest (0). 'F'/'D'
// (flam/drag) use the loudest step, 9.
func triggerVelocity(ch rune) int {
	switch {
	case ch == '.':
		return 0
	case ch >= '1' && ch <= '9':
		return int(ch-'0') * 127 / 9
	case ch == 'F' || ch == 'D':
		return 9 * 127 / 9
	default:
		return 0
	}
}

// humanise returns a small random PPQN offset (+/- 1 tick) applied to
// flam/drag grace notes, matching the spec's "small random humanise".
func humanise() int {
	return rand.Intn(3) - 1
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

var noteNames = map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}

// parseNoteName parses a note name like "c4", "eb4", "f#3" into a
// MIDI note number (middle C = c4 = 60, matching the GM convention
// used throughout this engine).
func parseNoteName(s string) (int, error) {
	if s == "" {
		return 0, cerrors.New(cerrors.KindFormat, "empty note name")
	}
	letter := s[0] | 0x20
	base, ok := noteNames[letter]
	if !ok {
		return 0, cerrors.New(cerrors.KindFormat, fmt.Sprintf("unrecognised note letter in %q", s))
	}
	i := 1
	for i < len(s) && (s[i] == '#' || s[i] == 'b') {
		if s[i] == '#' {
			base++
		} else {
			base--
		}
		i++
	}
	if i >= len(s) {
		return 0, cerrors.New(cerrors.KindFormat, fmt.Sprintf("missing octave in %q", s))
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return 0, cerrors.New(cerrors.KindFormat, fmt.Sprintf("invalid octave in %q", s))
	}
	return (octave+1)*12 + base, nil
}
