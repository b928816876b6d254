package sfz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calfbox-go/calfbox/internal/sampler"
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

type fakeLoader struct {
	waveforms map[string]*wavebank.Waveform
}

func (f *fakeLoader) Load(path string) (*wavebank.Waveform, error) {
	if w, ok := f.waveforms[path]; ok {
		return w, nil
	}
	w := &wavebank.Waveform{CanonicalPath: path, Channels: 1, Frames: 100}
	f.waveforms[path] = w
	return w, nil
}

func newFakeLoader() *fakeLoader { return &fakeLoader{waveforms: map[string]*wavebank.Waveform{}} }

func TestRegionInheritsUnsetFieldsFromEnclosingGroup(t *testing.T) {
	src := `
<group>
pitch_keycenter=48
volume=-6

<region>
sample=kick.wav
lokey=36
hikey=36

<region>
sample=snare.wav
lokey=38
hikey=38
volume=-3
`
	layers, err := Parse(strings.NewReader(src), newFakeLoader(), nil)
	require.NoError(t, err)
	require.Len(t, layers, 2)

	require.Equal(t, 48, layers[0].RootKey)
	require.Equal(t, -6.0, layers[0].GainDB)
	require.Equal(t, 36, layers[0].LoKey)

	require.Equal(t, 48, layers[1].RootKey, "unset pitch_keycenter should inherit the group's")
	require.Equal(t, -3.0, layers[1].GainDB, "region's own volume overrides the group's")
}

func TestKeyShorthandPinsSingleNoteAndSetsRange(t *testing.T) {
	src := "<region>\nkey=c4\n"
	layers, err := Parse(strings.NewReader(src), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 60, layers[0].Key)
	require.Equal(t, 60, layers[0].LoKey)
	require.Equal(t, 60, layers[0].HiKey)
}

func TestLoopModeParsesToEnum(t *testing.T) {
	src := "<region>\nloop_mode=loop_continuous\nloop_start=200\nloop_end=800\n"
	layers, err := Parse(strings.NewReader(src), nil, nil)
	require.NoError(t, err)
	require.Equal(t, sampler.LoopContinuous, layers[0].LoopMode)
	require.Equal(t, 200, layers[0].LoopStart)
	require.Equal(t, 800, layers[0].LoopEnd)
}

func TestUnrecognisedKeyIsIgnoredNotAnError(t *testing.T) {
	src := "<region>\nlokey=10\nsome_future_opcode=xyz\n"
	layers, err := Parse(strings.NewReader(src), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 10, layers[0].LoKey)
}

func TestEnvelopeKeysPopulateAmpFilPitch(t *testing.T) {
	src := `<region>
ampeg_attack=0.01
ampeg_release=0.5
ampeg_sustain=0.8
fileg_depth=1200
pitcheg_decay=0.2
`
	layers, err := Parse(strings.NewReader(src), nil, nil)
	require.NoError(t, err)
	l := layers[0]
	require.Equal(t, 0.01, l.AmpEnv.Attack)
	require.Equal(t, 0.5, l.AmpEnv.Release)
	require.Equal(t, 0.8, l.AmpEnv.Sustain)
	require.Equal(t, 1200.0, l.FilEnv.Depth)
	require.Equal(t, 0.2, l.PitchEnv.Decay)
}

func TestLFODepthCCProducesModulationEntry(t *testing.T) {
	src := "<region>\namplfo_freq=5\namplfo_depthcc1=3\n"
	layers, err := Parse(strings.NewReader(src), nil, nil)
	require.NoError(t, err)
	l := layers[0]
	require.Equal(t, 5.0, l.AmpLFO.Freq)
	require.Len(t, l.Modulations, 1)
	require.Equal(t, sampler.ModSrcCC, l.Modulations[0].Src)
	require.Equal(t, 1, l.Modulations[0].CC)
	require.Equal(t, sampler.ModDestGain, l.Modulations[0].Dest)
	require.Equal(t, 3.0, l.Modulations[0].Amount)
}

func TestAmpVelcurveSetsExplicitPoint(t *testing.T) {
	src := "<region>\namp_velcurve_064=0.5\n"
	layers, err := Parse(strings.NewReader(src), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0.5, layers[0].Velcurve[64])
}

func TestSampleKeyResolvesThroughLoader(t *testing.T) {
	loader := newFakeLoader()
	src := "<region>\nsample=kick.wav\n"
	layers, err := Parse(strings.NewReader(src), loader, nil)
	require.NoError(t, err)
	require.NotNil(t, layers[0].Waveform)
	require.Equal(t, "kick.wav", layers[0].Waveform.CanonicalPath)
}

func TestSampleKeyWithoutLoaderErrors(t *testing.T) {
	src := "<region>\nsample=kick.wav\n"
	_, err := Parse(strings.NewReader(src), nil, nil)
	require.Error(t, err)
}

func TestFormatThenParseRoundTripsRecognisedKeys(t *testing.T) {
	l := sampler.NewLayer()
	l.LoKey, l.HiKey = 20, 30
	l.LoVel, l.HiVel = 10, 110
	l.RootKey = 64
	l.KeyTrackCents = 50
	l.TransposeSemis = -2
	l.TuneCents = 7
	l.GainDB = -4.5
	l.PanPos = 0.5 // chosen so *100/100 round-trips exactly
	l.SampleOffset = 12
	l.LoopStart, l.LoopEnd = 200, 800
	l.LoopMode = sampler.LoopSustain
	l.Cutoff = 1200
	l.Resonance = 3
	l.FilterType = sampler.FilterHighpass2Pole
	l.FilterVelTrack = 25
	l.AmpEnv = sampler.EnvelopeParams{Delay: 0.01, Attack: 0.02, Hold: 0.03, Decay: 0.1, Sustain: 0.7, Release: 0.4, Start: 0.1, Depth: 5, Vel2Depth: 2}
	l.AmpLFO = sampler.LFOParams{Freq: 4, Delay: 0.1, Fade: 0.2, Depth: 3}
	l.Modulations = []sampler.Modulation{{Src: sampler.ModSrcCC, CC: 2, Dest: sampler.ModDestGain, Amount: 6}}
	l.ExclusiveGroup = 1
	l.OffBy = 1
	l.AuxSendGains = [2]float64{0.25, 0.5} // *100/100 round-trips exactly
	l.AuxSendBuses = [2]int{1, 2}
	l.SwDown, l.SwUp, l.SwLast, l.SwPrevious = 40, 41, 42, 43
	l.SwLoKey, l.SwHiKey = 0, 127
	l.Velcurve[64] = 0.5

	text := Format([]*sampler.Layer{l}, nil)
	reparsed, err := Parse(strings.NewReader(text), nil, nil)
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
	require.Equal(t, l, reparsed[0])
}
