package sampler

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	m := NewModule("test", 48000, log.New(io.Discard))
	w := newTestWaveform(48000)
	l := newTestLayer(w, -1, 0, 48000)
	m.AddProgram(&Program{Number: 0, Layers: []*Layer{l}})
	return m
}

func TestProgramChangeFallsBackToZero(t *testing.T) {
	m := newTestModule(t)
	m.ProcessEvent([]byte{0xc0, 5}) // program 5 doesn't exist
	require.Equal(t, 0, m.channels[0].Program.Number)
}

func TestNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	m := newTestModule(t)
	m.ProcessEvent([]byte{0xc0, 0})
	m.ProcessEvent([]byte{0x90, 60, 100})
	require.True(t, m.pool.voices[0].Active())

	m.ProcessEvent([]byte{0x90, 60, 0})
	require.Equal(t, StageRelease, m.pool.voices[0].ampEnv.Stage())
}

func TestCC74AdjustsCutoffOffset(t *testing.T) {
	m := newTestModule(t)
	m.ProcessEvent([]byte{0xb0, 74, 96})
	require.Greater(t, m.channels[0].CutoffOffset, 0.0)
}

func TestCC121ResetsControllersButKeepsProgram(t *testing.T) {
	m := newTestModule(t)
	m.ProcessEvent([]byte{0xc0, 0})
	program := m.channels[0].Program
	m.ProcessEvent([]byte{0xb0, 74, 100})
	m.ProcessEvent([]byte{0xb0, 121, 0})
	require.Equal(t, 0.0, m.channels[0].CutoffOffset)
	require.Same(t, program, m.channels[0].Program)
}

func TestPitchBendWiresThrough14BitValue(t *testing.T) {
	m := newTestModule(t)
	m.ProcessEvent([]byte{0xe0, 0, 127}) // MSB 127 => value14 = 127<<7 = 16256, above center
	require.Greater(t, m.channels[0].PitchBendFactor(), 1.0)
}

func TestProcessBlockRendersActiveVoices(t *testing.T) {
	m := newTestModule(t)
	m.ProcessEvent([]byte{0xc0, 0})
	m.ProcessEvent([]byte{0x90, 60, 100})

	out := [][]float32{make([]float32, blockSize), make([]float32, blockSize)}
	m.ProcessBlock(nil, out)

	nonZero := false
	for _, s := range out[0] {
		if s != 0 {
			nonZero = true
		}
	}
	require.True(t, nonZero)
}
