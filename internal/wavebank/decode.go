package wavebank

import (
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/calfbox-go/calfbox/internal/cerrors"
)

// Decoder turns a file on disk into a decoded PCM payload. Waveform
// file decoding beyond "returns interleaved 16-bit PCM plus metadata"
// is explicitly out of scope per spec §1; this is the minimal
// concrete implementation behind that external-collaborator contract,
// built on github.com/go-audio/wav + github.com/go-audio/audio (the
// PCM pairing used by the auditory-modeling example in the retrieval
// pack for exactly this job).
type Decoder interface {
	Decode(path string) (data []int16, channels, frames, sourceRate int, err error)
}

// WavDecoder decodes standard PCM WAV files.
type WavDecoder struct{}

// Decode reads path fully into memory and returns interleaved 16-bit
// PCM. Files with a channel count other than 1 or 2 are rejected with
// a FormatError (spec §4.8: "unsupported channel counts (≠1, ≠2)
// yield an error").
func (WavDecoder) Decode(path string) ([]int16, int, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, 0, cerrors.Wrap(cerrors.KindIO, "open wave file", err)
	}
	defer f.Close()
	return decodeReader(f, path)
}

func decodeReader(r io.Reader, context string) ([]int16, int, int, int, error) {
	dec := wav.NewDecoder(toReadSeeker(r))
	if !dec.IsValidFile() {
		return nil, 0, 0, 0, cerrors.New(cerrors.KindFormat, context+": not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, 0, cerrors.Wrap(cerrors.KindIO, context+": decode PCM", err)
	}
	channels := buf.Format.NumChannels
	if channels != 1 && channels != 2 {
		return nil, 0, 0, 0, cerrors.New(cerrors.KindFormat, context+": unsupported channel count")
	}
	frames := len(buf.Data) / channels
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = clampInt16(v, buf.SourceBitDepth)
	}
	return out, channels, frames, buf.Format.SampleRate, nil
}

func clampInt16(v int, bitDepth int) int16 {
	if bitDepth == 16 {
		return int16(v)
	}
	// Rescale any other bit depth to 16-bit range.
	shift := bitDepth - 16
	if shift > 0 {
		v >>= uint(shift)
	} else if shift < 0 {
		v <<= uint(-shift)
	}
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// toReadSeeker adapts an io.Reader that is already a ReadSeeker (the
// common case, *os.File) and panics otherwise — Decoder callers always
// pass a file. Kept as a named step so a future in-memory decode path
// (tests feeding bytes.Reader wrapped in bytes.NewReader, which is
// already a ReadSeeker) has an obvious seam.
func toReadSeeker(r io.Reader) io.ReadSeeker {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		panic("wavebank: decoder requires an io.ReadSeeker")
	}
	return rs
}
