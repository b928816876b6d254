package sfz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/calfbox-go/calfbox/internal/sampler"
)

// Format renders layers as one flat <region> per layer (no <group>
// factoring — every value is written explicitly on its region), the
// simplest shape that satisfies the parse(format(region)) == region
// round-trip (spec §8 "Round-trips and laws"). FilterPeaking2Pole has
// no fil_type name, so no fil_type key is written for it and such a
// layer reads back as lowpass. sampleName, when
// non-nil, supplies the "sample" key's text for a layer's waveform
// (format has no path on its own: the Waveform only carries a
// CanonicalPath, which a loader may not round-trip through, e.g. for
// synthetic waveforms tests build in memory).
func Format(layers []*sampler.Layer, sampleName func(*sampler.Layer) string) string {
	var b strings.Builder
	for _, l := range layers {
		b.WriteString("<region>\n")
		writeLayer(&b, l, sampleName)
	}
	return b.String()
}

func writeLayer(b *strings.Builder, l *sampler.Layer, sampleName func(*sampler.Layer) string) {
	if sampleName != nil {
		if name := sampleName(l); name != "" {
			kv(b, "sample", name)
		}
	}

	if l.Key >= 0 {
		kv(b, "key", strconv.Itoa(l.Key))
	} else {
		kv(b, "lokey", strconv.Itoa(l.LoKey))
		kv(b, "hikey", strconv.Itoa(l.HiKey))
	}
	kv(b, "lovel", strconv.Itoa(l.LoVel))
	kv(b, "hivel", strconv.Itoa(l.HiVel))

	kv(b, "pitch_keycenter", strconv.Itoa(l.RootKey))
	kv(b, "pitch_keytrack", formatFloat(l.KeyTrackCents))
	kv(b, "transpose", strconv.Itoa(l.TransposeSemis))
	kv(b, "tune", formatFloat(l.TuneCents))
	kv(b, "volume", formatFloat(l.GainDB))
	kv(b, "pan", formatFloat(l.PanPos*100.0))
	kv(b, "offset", strconv.Itoa(l.SampleOffset))

	if l.LoopStart >= 0 {
		kv(b, "loop_start", strconv.Itoa(l.LoopStart))
		kv(b, "loop_end", strconv.Itoa(l.LoopEnd))
	}
	if name, ok := loopModeName(l.LoopMode); ok {
		kv(b, "loop_mode", name)
	}

	kv(b, "cutoff", formatFloat(l.Cutoff))
	kv(b, "resonance", formatFloat(l.Resonance))
	if name, ok := filterTypeName(l.FilterType); ok {
		kv(b, "fil_type", name)
	}
	kv(b, "fil_veltrack", formatFloat(l.FilterVelTrack))

	writeEnv(b, "ampeg_", l.AmpEnv)
	writeEnv(b, "fileg_", l.FilEnv)
	writeEnv(b, "pitcheg_", l.PitchEnv)
	writeLFO(b, "amplfo_", l.AmpLFO)
	writeLFO(b, "fillfo_", l.FilLFO)
	writeLFO(b, "pitchlfo_", l.PitchLFO)
	writeModulations(b, l.Modulations)

	for i, v := range l.Velcurve {
		if v < 0 {
			continue
		}
		kv(b, fmt.Sprintf("amp_velcurve_%03d", i), formatFloat(v))
	}
	kv(b, "velcurve_quadratic", strconv.FormatBool(l.VelcurveQuadratic))

	kv(b, "group", strconv.Itoa(l.ExclusiveGroup))
	kv(b, "off_by", strconv.Itoa(l.OffBy))
	kv(b, "effect1", formatFloat(l.AuxSendGains[0]*100.0))
	kv(b, "effect2", formatFloat(l.AuxSendGains[1]*100.0))
	kv(b, "effect1bus", strconv.Itoa(l.AuxSendBuses[0]))
	kv(b, "effect2bus", strconv.Itoa(l.AuxSendBuses[1]))

	kv(b, "sw_down", strconv.Itoa(l.SwDown))
	kv(b, "sw_up", strconv.Itoa(l.SwUp))
	kv(b, "sw_last", strconv.Itoa(l.SwLast))
	kv(b, "sw_previous", strconv.Itoa(l.SwPrevious))
	kv(b, "sw_lokey", strconv.Itoa(l.SwLoKey))
	kv(b, "sw_hikey", strconv.Itoa(l.SwHiKey))
}

func writeEnv(b *strings.Builder, prefix string, env sampler.EnvelopeParams) {
	kv(b, prefix+"delay", formatFloat(env.Delay))
	kv(b, prefix+"attack", formatFloat(env.Attack))
	kv(b, prefix+"hold", formatFloat(env.Hold))
	kv(b, prefix+"decay", formatFloat(env.Decay))
	kv(b, prefix+"sustain", formatFloat(env.Sustain))
	kv(b, prefix+"release", formatFloat(env.Release))
	kv(b, prefix+"start", formatFloat(env.Start))
	kv(b, prefix+"depth", formatFloat(env.Depth))
	kv(b, prefix+"vel2depth", formatFloat(env.Vel2Depth))
}

func writeLFO(b *strings.Builder, prefix string, lfo sampler.LFOParams) {
	kv(b, prefix+"freq", formatFloat(lfo.Freq))
	kv(b, prefix+"delay", formatFloat(lfo.Delay))
	kv(b, prefix+"fade", formatFloat(lfo.Fade))
	kv(b, prefix+"depth", formatFloat(lfo.Depth))
}

// writeModulations reconstructs depthcc/depthchanaft/depthpolyaft
// keys from the Modulation entries applyLFOKey produced; any other
// Modulation shape (e.g. a future Src2-bearing entry) isn't
// SFZ-expressible in this subset and is skipped.
func writeModulations(b *strings.Builder, mods []sampler.Modulation) {
	for _, m := range mods {
		prefix, ok := lfoDestPrefix(m.Dest)
		if !ok {
			continue
		}
		switch m.Src {
		case sampler.ModSrcChannelAftertouch:
			kv(b, prefix+"depthchanaft", formatFloat(m.Amount))
		case sampler.ModSrcPolyAftertouch:
			kv(b, prefix+"depthpolyaft", formatFloat(m.Amount))
		case sampler.ModSrcCC:
			kv(b, fmt.Sprintf("%sdepthcc%d", prefix, m.CC), formatFloat(m.Amount))
		}
	}
}

func lfoDestPrefix(dest sampler.ModDest) (string, bool) {
	for prefix, target := range lfoPrefixes {
		if target.dest == dest {
			return prefix, true
		}
	}
	return "", false
}

func loopModeName(m sampler.LoopMode) (string, bool) {
	for name, mode := range loopModeNames {
		if mode == m {
			return name, true
		}
	}
	return "", false
}

func filterTypeName(ft sampler.FilterType) (string, bool) {
	for name, t := range filterTypeNames {
		if t == ft {
			return name, true
		}
	}
	return "", false
}

func kv(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
