// Command cbox-render renders a calfbox scene offline to a WAV file,
// without attaching a live audio backend (spec §4.2's "render N
// frames" primitive).
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/pflag"

	"github.com/calfbox-go/calfbox/internal/audioio"
	"github.com/calfbox-go/calfbox/internal/config"
	"github.com/calfbox-go/calfbox/internal/engine"
	"github.com/calfbox-go/calfbox/internal/sfz"
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "c", "calfbox.yaml", "Engine config file (YAML), used for sample rate and buffer size.")
	scenePath := pflag.StringP("scene", "s", "", "Scene file to render. Defaults to the config's first scene_files entry.")
	frames := pflag.IntP("frames", "n", 48000, "Number of frames to render.")
	outPath := pflag.StringP("out", "o", "render.wav", "Output WAV file path.")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "cbox-render - render a calfbox scene offline to a WAV file.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: cbox-render [options]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return 0
	}

	logger := log.New(os.Stderr)

	f, err := os.Open(*configPath)
	if err != nil {
		logger.Error("opening engine config", "path", *configPath, "err", err)
		return 1
	}
	engCfg, err := config.LoadEngineConfig(f)
	f.Close()
	if err != nil {
		logger.Error("loading engine config", "err", err)
		return 1
	}

	scenePathToUse := *scenePath
	if scenePathToUse == "" {
		if len(engCfg.SceneFiles) == 0 {
			logger.Error("no scene specified and engine config lists no scene_files")
			return 1
		}
		scenePathToUse = engCfg.SceneFiles[0]
	}

	sf, err := os.Open(scenePathToUse)
	if err != nil {
		logger.Error("opening scene file", "path", scenePathToUse, "err", err)
		return 1
	}
	sceneCfg, err := config.ParseScene(sf)
	sf.Close()
	if err != nil {
		logger.Error("parsing scene file", "err", err)
		return 1
	}

	bank := wavebank.New(wavebank.WavDecoder{}, logger)
	defer bank.Close()
	loader := &sfz.BankLoader{Bank: bank, Context: "render"}

	scene, err := engine.BuildScene(sceneCfg, loader, engCfg.SampleRate, logger)
	if err != nil {
		logger.Error("building scene", "err", err)
		return 1
	}

	eng := engine.New(engCfg.SampleRate, engCfg.BufferSize, &audioio.NullBackend{}, scene, logger)
	out, err := eng.RenderOffline(*frames)
	if err != nil {
		logger.Error("rendering offline", "err", err)
		return 1
	}

	if err := writeWAV(*outPath, out, engCfg.SampleRate); err != nil {
		logger.Error("writing wav file", "err", err)
		return 1
	}

	logger.Info("rendered", "frames", *frames, "out", *outPath)
	return 0
}

// writeWAV interleaves out's per-channel float32 frames into 16-bit
// PCM and writes them as a standard WAV file via go-audio/wav, the
// same encode-side counterpart to internal/wavebank's decode-side use
// of the same library.
func writeWAV(path string, out [][]float32, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	channels := len(out)
	frames := 0
	if channels > 0 {
		frames = len(out[0])
	}

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)

	data := make([]int, frames*channels)
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < frames; i++ {
			s := out[ch][i]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			data[i*channels+ch] = int(s * 32767)
		}
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
