// Package sfz implements the subset of the SFZ instrument text format
// this engine understands (spec §6 "SFZ instrument format"): <group>/
// <region> sections of key=value pairs, with a region inheriting every
// value from its enclosing group. Parsing produces sampler.Layer
// values directly, using sampler.NewLayer/Clone exactly the way
// sampler_layer_clone + sampler_layer_load_overrides does in the
// original engine (see internal/sampler/types.go's Layer doc comment).
package sfz

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/calfbox-go/calfbox/internal/cerrors"
	"github.com/calfbox-go/calfbox/internal/sampler"
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

// WaveformLoader resolves a region's "sample" key to a decoded
// waveform. Injected rather than hard-wired to wavebank.Bank so tests
// can supply a fake without touching disk; a wavebank.Bank satisfies
// it through BankLoader, which calls GetWaveform with a fixed context
// string.
type WaveformLoader interface {
	Load(path string) (*wavebank.Waveform, error)
}

// section is one <group> or <region> block's key=value pairs, unlike
// the pattern text format's [kind:name] sections this format has no
// name and tags can repeat any number of times in a file (grounded on
// internal/pattern/text.go's scanSections, adapted for SFZ's angle-
// bracket tags and inline, rather than line-oriented, key=value runs).
type section struct {
	kind string // "group" or "region"
	kv   []kvPair
}

type kvPair struct {
	key, value string
}

// scanSections tokenizes the whole file into a flat run of
// sections. Comments start with "//" and run to end of line; header
// tags and key=value pairs may appear several to a line, as real SFZ
// files do.
func scanSections(r io.Reader) ([]*section, error) {
	var sections []*section
	var cur *section

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		line := scan.Text()
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		for _, tok := range tokenizeLine(line) {
			if strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">") {
				kind := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(tok, "<"), ">"))
				cur = &section{kind: kind}
				sections = append(sections, cur)
				continue
			}
			eq := strings.IndexByte(tok, '=')
			if eq < 0 {
				return nil, cerrors.New(cerrors.KindFormat, fmt.Sprintf("expected key=value or <tag>, got %q", tok))
			}
			if cur == nil {
				return nil, cerrors.New(cerrors.KindFormat, fmt.Sprintf("key=value %q outside any <group>/<region>", tok))
			}
			cur.kv = append(cur.kv, kvPair{
				key:   strings.ToLower(strings.TrimSpace(tok[:eq])),
				value: strings.TrimSpace(tok[eq+1:]),
			})
		}
	}
	if err := scan.Err(); err != nil {
		return nil, cerrors.Wrap(cerrors.KindIO, "reading sfz source", err)
	}
	return sections, nil
}

// tokenizeLine splits on whitespace while keeping "<tag>" atomic; SFZ
// has no quoting rules for sample paths in this subset, so a bare
// whitespace split is all the format needs.
func tokenizeLine(line string) []string {
	return strings.Fields(line)
}

// BankLoader adapts a wavebank.Bank to WaveformLoader, supplying the
// fixed context string GetWaveform uses to label its error messages.
type BankLoader struct {
	Bank    *wavebank.Bank
	Context string
}

func (b BankLoader) Load(path string) (*wavebank.Waveform, error) {
	return b.Bank.GetWaveform(b.Context, path)
}

// Parse reads an SFZ source and returns one sampler.Layer per
// <region>, each cloned from its most recent enclosing <group> (or
// from sampler.NewLayer if no group precedes it) with its own
// key=value pairs applied on top. loader resolves "sample" keys; pass
// nil if the source has no sample keys (tests building programs
// purely from synthetic waveforms). logger receives a warning per
// unrecognised key (spec §6); pass nil to use log.Default().
func Parse(r io.Reader, loader WaveformLoader, logger *log.Logger) ([]*sampler.Layer, error) {
	if logger == nil {
		logger = log.Default()
	}
	sections, err := scanSections(r)
	if err != nil {
		return nil, err
	}

	group := sampler.NewLayer()
	var layers []*sampler.Layer
	for _, s := range sections {
		switch s.kind {
		case "group":
			group = sampler.NewLayer()
			if err := applySection(group, s, loader, logger); err != nil {
				return nil, err
			}
		case "region":
			l := group.Clone()
			if err := applySection(l, s, loader, logger); err != nil {
				return nil, err
			}
			layers = append(layers, l)
		default:
			return nil, cerrors.New(cerrors.KindFormat, fmt.Sprintf("unrecognised section <%s>", s.kind))
		}
	}
	return layers, nil
}

// ParseProgram is a convenience wrapper returning a ready-to-finalise
// sampler.Program with the given number and name.
func ParseProgram(r io.Reader, loader WaveformLoader, logger *log.Logger, number int, name string) (*sampler.Program, error) {
	layers, err := Parse(r, loader, logger)
	if err != nil {
		return nil, err
	}
	return &sampler.Program{Number: number, Name: name, Layers: layers}, nil
}

func applySection(l *sampler.Layer, s *section, loader WaveformLoader, logger *log.Logger) error {
	for _, kv := range s.kv {
		if err := applyKey(l, kv.key, kv.value, loader, logger); err != nil {
			return cerrors.Wrap(cerrors.KindConfig, fmt.Sprintf("key %q", kv.key), err)
		}
	}
	return nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, cerrors.Wrap(cerrors.KindFormat, fmt.Sprintf("expected integer, got %q", s), err)
	}
	return n, nil
}

func atof(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, cerrors.Wrap(cerrors.KindFormat, fmt.Sprintf("expected number, got %q", s), err)
	}
	return f, nil
}

var noteNames = map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}

// parseKey parses either a bare MIDI note number or an SFZ note name
// (c4 == 60, the same GM convention internal/pattern uses). Kept as a
// small local duplicate rather than exporting internal/pattern's
// parser, to avoid a cross-package dependency between two otherwise
// unrelated text formats.
func parseKey(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, cerrors.New(cerrors.KindFormat, "empty key")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	letter := s[0] | 0x20
	base, ok := noteNames[letter]
	if !ok {
		return 0, cerrors.New(cerrors.KindFormat, fmt.Sprintf("unrecognised key %q", s))
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
