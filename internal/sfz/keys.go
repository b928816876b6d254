package sfz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/calfbox-go/calfbox/internal/cerrors"
	"github.com/calfbox-go/calfbox/internal/sampler"
)

// applyKey resolves one key=value pair onto l. Unrecognised keys are
// warned and ignored rather than rejected (spec §6: "Unrecognised keys
// are warned and ignored").
func applyKey(l *sampler.Layer, key, value string, loader WaveformLoader, logger *log.Logger) error {
	if fn, ok := simpleKeys[key]; ok {
		return fn(l, value, loader)
	}
	if ok, err := applyEnvKey(l, key, value); ok {
		return err
	}
	if ok, err := applyLFOKey(l, key, value); ok {
		return err
	}
	if ok, err := applyVelcurveKey(l, key, value); ok {
		return err
	}
	logger.Warn("unrecognised sfz key, ignoring", "key", key, "value", value)
	return nil
}

type keyFunc func(l *sampler.Layer, value string, loader WaveformLoader) error

var simpleKeys = map[string]keyFunc{
	"sample": func(l *sampler.Layer, value string, loader WaveformLoader) error {
		if loader == nil {
			return cerrors.New(cerrors.KindConfig, "sample key present but no WaveformLoader supplied")
		}
		loaded, err := loader.Load(value)
		if err != nil {
			return err
		}
		l.Waveform = loaded
		return nil
	},
	"lokey": intKey(func(l *sampler.Layer) *int { return &l.LoKey }, true),
	"hikey": intKey(func(l *sampler.Layer) *int { return &l.HiKey }, true),
	"key": func(l *sampler.Layer, value string, _ WaveformLoader) error {
		n, err := parseKey(value)
		if err != nil {
			return err
		}
		l.Key = n
		l.LoKey = n
		l.HiKey = n
		return nil
	},
	"lovel": intKey(func(l *sampler.Layer) *int { return &l.LoVel }, false),
	"hivel": intKey(func(l *sampler.Layer) *int { return &l.HiVel }, false),

	"pitch_keycenter": intKey(func(l *sampler.Layer) *int { return &l.RootKey }, true),
	"pitch_keytrack":  floatKey(func(l *sampler.Layer) *float64 { return &l.KeyTrackCents }),
	"transpose":       intKey(func(l *sampler.Layer) *int { return &l.TransposeSemis }, false),
	"tune":            floatKey(func(l *sampler.Layer) *float64 { return &l.TuneCents }),
	"volume":          floatKey(func(l *sampler.Layer) *float64 { return &l.GainDB }),
	"pan": func(l *sampler.Layer, value string, _ WaveformLoader) error {
		f, err := atof(value)
		if err != nil {
			return err
		}
		l.PanPos = f / 100.0 // SFZ pan is -100..100, the engine's internal range is -1..1
		return nil
	},
	"offset":     intKey(func(l *sampler.Layer) *int { return &l.SampleOffset }, false),
	"loop_start": intKey(func(l *sampler.Layer) *int { return &l.LoopStart }, false),
	"loop_end":   intKey(func(l *sampler.Layer) *int { return &l.LoopEnd }, false),
	"loop_mode": func(l *sampler.Layer, value string, _ WaveformLoader) error {
		mode, ok := loopModeNames[strings.ToLower(strings.TrimSpace(value))]
		if !ok {
			return cerrors.New(cerrors.KindFormat, fmt.Sprintf("unrecognised loop_mode %q", value))
		}
		l.LoopMode = mode
		return nil
	},
	"cutoff":    floatKey(func(l *sampler.Layer) *float64 { return &l.Cutoff }),
	"resonance": floatKey(func(l *sampler.Layer) *float64 { return &l.Resonance }),
	"fil_type": func(l *sampler.Layer, value string, _ WaveformLoader) error {
		ft, ok := filterTypeNames[strings.ToLower(strings.TrimSpace(value))]
		if !ok {
			return cerrors.New(cerrors.KindFormat, fmt.Sprintf("unrecognised fil_type %q", value))
		}
		l.FilterType = ft
		return nil
	},
	"fil_veltrack": floatKey(func(l *sampler.Layer) *float64 { return &l.FilterVelTrack }),

	"group":  intKey(func(l *sampler.Layer) *int { return &l.ExclusiveGroup }, false),
	"off_by": intKey(func(l *sampler.Layer) *int { return &l.OffBy }, false),

	"effect1": func(l *sampler.Layer, value string, _ WaveformLoader) error {
		f, err := atof(value)
		if err != nil {
			return err
		}
		l.AuxSendGains[0] = f / 100.0
		return nil
	},
	"effect2": func(l *sampler.Layer, value string, _ WaveformLoader) error {
		f, err := atof(value)
		if err != nil {
			return err
		}
		l.AuxSendGains[1] = f / 100.0
		return nil
	},
	"effect1bus": intKey(func(l *sampler.Layer) *int { return &l.AuxSendBuses[0] }, false),
	"effect2bus": intKey(func(l *sampler.Layer) *int { return &l.AuxSendBuses[1] }, false),

	"sw_down":     intKey(func(l *sampler.Layer) *int { return &l.SwDown }, true),
	"sw_up":       intKey(func(l *sampler.Layer) *int { return &l.SwUp }, true),
	"sw_last":     intKey(func(l *sampler.Layer) *int { return &l.SwLast }, true),
	"sw_previous": intKey(func(l *sampler.Layer) *int { return &l.SwPrevious }, true),
	"sw_lokey":    intKey(func(l *sampler.Layer) *int { return &l.SwLoKey }, true),
	"sw_hikey":    intKey(func(l *sampler.Layer) *int { return &l.SwHiKey }, true),

	"velcurve_quadratic": func(l *sampler.Layer, value string, _ WaveformLoader) error {
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return cerrors.Wrap(cerrors.KindFormat, fmt.Sprintf("expected bool, got %q", value), err)
		}
		l.VelcurveQuadratic = b
		return nil
	},
}

func intKey(field func(l *sampler.Layer) *int, allowNoteName bool) keyFunc {
	return func(l *sampler.Layer, value string, _ WaveformLoader) error {
		var n int
		var err error
		if allowNoteName {
			n, err = parseKey(value)
		} else {
			n, err = atoi(value)
		}
		if err != nil {
			return err
		}
		*field(l) = n
		return nil
	}
}

func floatKey(field func(l *sampler.Layer) *float64) keyFunc {
	return func(l *sampler.Layer, value string, _ WaveformLoader) error {
		f, err := atof(value)
		if err != nil {
			return err
		}
		*field(l) = f
		return nil
	}
}

var loopModeNames = map[string]sampler.LoopMode{
	"no_loop":         sampler.LoopNoLoop,
	"one_shot":        sampler.LoopOneShot,
	"loop_continuous": sampler.LoopContinuous,
	"loop_sustain":    sampler.LoopSustain,
}

var filterTypeNames = map[string]sampler.FilterType{
	"lpf_2p": sampler.FilterLowpass2Pole,
	"hpf_2p": sampler.FilterHighpass2Pole,
	"bpf_2p": sampler.FilterBandpass2Pole,
}

// envPrefixes maps an SFZ key prefix to the EnvelopeParams it targets.
var envPrefixes = map[string]func(l *sampler.Layer) *sampler.EnvelopeParams{
	"ampeg_":   func(l *sampler.Layer) *sampler.EnvelopeParams { return &l.AmpEnv },
	"fileg_":   func(l *sampler.Layer) *sampler.EnvelopeParams { return &l.FilEnv },
	"pitcheg_": func(l *sampler.Layer) *sampler.EnvelopeParams { return &l.PitchEnv },
}

// applyEnvKey handles the ampeg_/fileg_/pitcheg_ family (spec §6:
// "followed by delay|attack|hold|decay|sustain|release|start|depth|
// vel2*"). Returns ok=false if key doesn't match this family at all.
func applyEnvKey(l *sampler.Layer, key, value string) (ok bool, err error) {
	for prefix, field := range envPrefixes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		env := field(l)
		suffix := key[len(prefix):]
		f, parseErr := atof(value)
		if parseErr != nil {
			return true, parseErr
		}
		switch suffix {
		case "delay":
			env.Delay = f
		case "attack":
			env.Attack = f
		case "hold":
			env.Hold = f
		case "decay":
			env.Decay = f
		case "sustain":
			env.Sustain = f
		case "release":
			env.Release = f
		case "start":
			env.Start = f
		case "depth":
			env.Depth = f
		case "vel2depth":
			env.Vel2Depth = f
		default:
			return true, nil // e.g. other vel2* variants this engine doesn't model: ignore
		}
		return true, nil
	}
	return false, nil
}

// lfoPrefixes maps an SFZ key prefix to the LFOParams it targets, plus
// the ModDest a depthcc/depthchanaft/depthpolyaft entry on that LFO
// should feed (the LFO's own depth is itself modulated by a
// controller, collapsed here into a direct controller-to-destination
// matrix entry, the closest fit the engine's fixed (source, dest,
// amount) modulation matrix offers).
var lfoPrefixes = map[string]struct {
	field func(l *sampler.Layer) *sampler.LFOParams
	dest  sampler.ModDest
}{
	"amplfo_":   {func(l *sampler.Layer) *sampler.LFOParams { return &l.AmpLFO }, sampler.ModDestGain},
	"fillfo_":   {func(l *sampler.Layer) *sampler.LFOParams { return &l.FilLFO }, sampler.ModDestCutoff},
	"pitchlfo_": {func(l *sampler.Layer) *sampler.LFOParams { return &l.PitchLFO }, sampler.ModDestPitch},
}

func applyLFOKey(l *sampler.Layer, key, value string) (ok bool, err error) {
	for prefix, target := range lfoPrefixes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		lfo := target.field(l)
		suffix := key[len(prefix):]
		switch {
		case suffix == "freq":
			f, err := atof(value)
			return true, setFloat(&lfo.Freq, f, err)
		case suffix == "delay":
			f, err := atof(value)
			return true, setFloat(&lfo.Delay, f, err)
		case suffix == "fade":
			f, err := atof(value)
			return true, setFloat(&lfo.Fade, f, err)
		case suffix == "depth":
			f, err := atof(value)
			return true, setFloat(&lfo.Depth, f, err)
		case suffix == "depthchanaft":
			f, err := atof(value)
			if err != nil {
				return true, err
			}
			l.Modulations = append(l.Modulations, sampler.Modulation{Src: sampler.ModSrcChannelAftertouch, Dest: target.dest, Amount: f})
			return true, nil
		case suffix == "depthpolyaft":
			f, err := atof(value)
			if err != nil {
				return true, err
			}
			l.Modulations = append(l.Modulations, sampler.Modulation{Src: sampler.ModSrcPolyAftertouch, Dest: target.dest, Amount: f})
			return true, nil
		case strings.HasPrefix(suffix, "depthcc"):
			cc, ccErr := atoi(suffix[len("depthcc"):])
			if ccErr != nil {
				return true, ccErr
			}
			f, err := atof(value)
			if err != nil {
				return true, err
			}
			l.Modulations = append(l.Modulations, sampler.Modulation{Src: sampler.ModSrcCC, CC: cc, Dest: target.dest, Amount: f})
			return true, nil
		default:
			return true, nil
		}
	}
	return false, nil
}

func setFloat(dst *float64, f float64, err error) error {
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// applyVelcurveKey handles amp_velcurve_NN, a single explicit point on
// the 128-entry curve (spec §6's FinalizeVelcurve interpolates the
// rest at load time, see internal/sampler/velcurve.go).
func applyVelcurveKey(l *sampler.Layer, key, value string) (ok bool, err error) {
	const prefix = "amp_velcurve_"
	if !strings.HasPrefix(key, prefix) {
		return false, nil
	}
	n, err := atoi(key[len(prefix):])
	if err != nil {
		return true, err
	}
	if n < 0 || n > 127 {
		return true, cerrors.New(cerrors.KindFormat, fmt.Sprintf("amp_velcurve index %d out of range", n))
	}
	f, err := atof(value)
	if err != nil {
		return true, err
	}
	l.Velcurve[n] = f
	return true, nil
}
