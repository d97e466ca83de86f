package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset is a named set of animation parameters stored as YAML
type Preset struct {
	Version string              `yaml:"version"`
	Name    string              `yaml:"name"`
	Params  AnimationParameters `yaml:"params"`
}

var builtinPresets = map[string]AnimationParameters{
	"default": DefaultParameters(),
	"gentle": {
		FrameCount:         24,
		FrameIntervalMs:    60,
		WiggleIntensity:    0.5,
		ImageScale:         0.9,
		TargetMaxDimension: 128,
		SizeBudgetBytes:    256 * 1024,
	},
	"chaos": {
		FrameCount:         16,
		FrameIntervalMs:    40,
		WiggleIntensity:    3.0,
		ImageScale:         0.6,
		TargetMaxDimension: 160,
		SizeBudgetBytes:    512 * 1024,
	},
	// Slack rejects custom emoji above 128KB.
	"slack": {
		FrameCount:         12,
		FrameIntervalMs:    80,
		WiggleIntensity:    1.0,
		ImageScale:         0.8,
		TargetMaxDimension: 128,
		SizeBudgetBytes:    128 * 1024,
	},
}

// PresetNames lists the built-in presets in alphabetical order
func PresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadPreset resolves a built-in preset name or a path to a YAML preset file
func LoadPreset(nameOrPath string) (*Preset, error) {
	if params, ok := builtinPresets[strings.ToLower(nameOrPath)]; ok {
		return &Preset{Version: "1.0", Name: strings.ToLower(nameOrPath), Params: params}, nil
	}
	return ReadPreset(nameOrPath)
}

// WritePreset writes a preset to a YAML file
func WritePreset(preset *Preset, path string) error {
	data, err := yaml.Marshal(preset)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadPreset reads a preset from a YAML file. Missing fields keep their defaults.
func ReadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	preset := Preset{Params: DefaultParameters()}
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	if err := preset.Params.Validate(); err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}

	return &preset, nil
}

// ApplySetting updates a single parameter from a "key=value" style pair.
// Keys accept both the YAML names and the short CLI flag names.
func ApplySetting(p *AnimationParameters, key, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "frames", "frame_count":
		return setInt(&p.FrameCount, value)
	case "interval", "frame_interval_ms":
		return setInt(&p.FrameIntervalMs, value)
	case "intensity", "wiggle_intensity":
		return setFloat(&p.WiggleIntensity, value)
	case "scale", "image_scale":
		return setFloat(&p.ImageScale, value)
	case "size", "target_max_dimension":
		return setInt(&p.TargetMaxDimension, value)
	case "budget", "size_budget_bytes":
		return setInt(&p.SizeBudgetBytes, value)
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
}

func setInt(dst *int, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", value, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", value, err)
	}
	*dst = v
	return nil
}
