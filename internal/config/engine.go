// Package config implements the engine's bootstrap configuration: a
// small top-level YAML EngineConfig (sample rate, buffer size, audio
// backend selection, scene file paths) plus a section-based loader for
// the per-scene text format that ties instrument SFZ programs and
// pattern-track placements together (spec's ambient-stack
// "Configuration" addition: spec.md itself scopes "configuration file
// parsing" out as an external collaborator, but the engine still needs
// a small bootstrap shape to get from a file on disk to a running
// Engine).
package config

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/calfbox-go/calfbox/internal/cerrors"
)

// EngineConfig is the top-level bootstrap file, grounded in shape on
// deviceid.go's yaml.Unmarshal usage but decoded straight into a
// tagged struct rather than a map[string]interface{}: this schema is
// fixed and known ahead of time, unlike a third-party device table.
type EngineConfig struct {
	SampleRate int      `yaml:"sample_rate"`
	BufferSize int      `yaml:"buffer_size"`
	Backend    string   `yaml:"backend"` // "portaudio" or "null" (offline/test)
	SceneFiles []string `yaml:"scene_files"`
	LogLevel   string   `yaml:"log_level"`
}

// DefaultEngineConfig returns the engine's documented defaults, so a
// config file only needs to name what it overrides.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate: 48000,
		BufferSize: 256,
		Backend:    "portaudio",
		LogLevel:   "info",
	}
}

// LoadEngineConfig decodes r on top of DefaultEngineConfig.
func LoadEngineConfig(r io.Reader) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, cerrors.Wrap(cerrors.KindConfig, "parsing engine config", err)
	}
	if cfg.SampleRate <= 0 {
		return nil, cerrors.New(cerrors.KindConfig, "sample_rate must be positive")
	}
	if cfg.BufferSize <= 0 {
		return nil, cerrors.New(cerrors.KindConfig, "buffer_size must be positive")
	}
	return &cfg, nil
}
