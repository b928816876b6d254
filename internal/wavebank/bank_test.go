package wavebank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeDecoder returns canned PCM data for any path, counting calls so
// tests can assert dedup behavior without touching the filesystem.
type fakeDecoder struct {
	calls int
}

func (f *fakeDecoder) Decode(path string) ([]int16, int, int, int, error) {
	f.calls++
	return make([]int16, 200), 2, 100, 44100, nil
}

func TestGetWaveformDedupesByCanonicalPath(t *testing.T) {
	dec := &fakeDecoder{}
	b := New(dec, nil)

	w1, err := b.GetWaveform("test", "a.wav")
	require.NoError(t, err)
	w2, err := b.GetWaveform("test", "a.wav")
	require.NoError(t, err)

	assert.Same(t, w1, w2)
	assert.Equal(t, 2, w1.Refcount())
	assert.Equal(t, 1, dec.calls, "second GetWaveform call must not re-decode")
}

func TestGetWaveformAssignsStableIncreasingIDs(t *testing.T) {
	dec := &fakeDecoder{}
	b := New(dec, nil)

	w1, _ := b.GetWaveform("t", "a.wav")
	w2, _ := b.GetWaveform("t", "b.wav")
	assert.Less(t, w1.ID, w2.ID)

	got, ok := b.GetByID(w1.ID)
	assert.True(t, ok)
	assert.Same(t, w1, got)
}

func TestUnrefRemovesAtZero(t *testing.T) {
	dec := &fakeDecoder{}
	b := New(dec, nil)

	w, _ := b.GetWaveform("t", "a.wav")
	b.Unref(w)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, int64(0), b.Bytes())
}

func TestUnrefOnlyRemovesWhenRefcountReachesZero(t *testing.T) {
	dec := &fakeDecoder{}
	b := New(dec, nil)

	w, _ := b.GetWaveform("t", "a.wav")
	_, _ = b.GetWaveform("t", "a.wav") // refcount 2
	b.Unref(w)
	assert.Equal(t, 1, b.Len(), "still referenced once, must remain registered")
	b.Unref(w)
	assert.Equal(t, 0, b.Len())
}

func TestGetWaveformRejectsEmptyPath(t *testing.T) {
	b := New(&fakeDecoder{}, nil)
	_, err := b.GetWaveform("ctx", "")
	assert.Error(t, err)
}

// TestBytesInvariant pins spec §8: for every waveform w in the bank,
// w.refcount > 0; sum(w.bytes) == bank.bytes.
func TestBytesInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dec := &fakeDecoder{}
		b := New(dec, nil)

		n := rapid.IntRange(1, 20).Draw(rt, "n")
		var loaded []*Waveform
		for i := 0; i < n; i++ {
			path := rapid.StringMatching(`[a-z]{1,8}\.wav`).Draw(rt, "path")
			w, err := b.GetWaveform("t", path)
			if err != nil {
				continue
			}
			loaded = append(loaded, w)
		}

		var sum int64
		seen := map[int64]bool{}
		for _, w := range loaded {
			if seen[w.ID] {
				continue
			}
			seen[w.ID] = true
			sum += w.Bytes()
			assert.Greater(rt, w.Refcount(), 0)
		}
		assert.Equal(rt, sum, b.Bytes())
	})
}
