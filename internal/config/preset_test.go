package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestPresetWriteRead(t *testing.T) {
	preset := &Preset{
		Version: "1.0",
		Name:    "custom",
		Params: AnimationParameters{
			FrameCount:         8,
			FrameIntervalMs:    100,
			WiggleIntensity:    2.5,
			ImageScale:         0.5,
			TargetMaxDimension: 64,
			SizeBudgetBytes:    4096,
		},
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := WritePreset(preset, path); err != nil {
		t.Fatalf("WritePreset failed: %v", err)
	}

	read, err := ReadPreset(path)
	if err != nil {
		t.Fatalf("ReadPreset failed: %v", err)
	}

	if read.Name != preset.Name {
		t.Errorf("Name mismatch: expected %s, got %s", preset.Name, read.Name)
	}
	if read.Params != preset.Params {
		t.Errorf("Params mismatch: expected %+v, got %+v", preset.Params, read.Params)
	}
}

func TestReadPresetKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	os.WriteFile(path, []byte("name: partial\nparams:\n  wiggle_intensity: 4\n"), 0644)

	read, err := ReadPreset(path)
	if err != nil {
		t.Fatalf("ReadPreset failed: %v", err)
	}

	want := DefaultParameters()
	want.WiggleIntensity = 4
	if read.Params != want {
		t.Errorf("expected %+v, got %+v", want, read.Params)
	}
}

func TestReadPresetRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("params:\n  image_scale: 1.5\n"), 0644)

	if _, err := ReadPreset(path); err == nil {
		t.Error("Expected validation error for image_scale > 1")
	}
}

func TestLoadPresetBuiltin(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			p, err := LoadPreset(name)
			if err != nil {
				t.Fatalf("LoadPreset(%s) failed: %v", name, err)
			}
			if err := p.Params.Validate(); err != nil {
				t.Errorf("builtin preset %s invalid: %v", name, err)
			}
		})
	}
}

func TestApplySetting(t *testing.T) {
	tests := []struct {
		key, value string
		check      func(AnimationParameters) bool
		wantErr    bool
	}{
		{"frames", "12", func(p AnimationParameters) bool { return p.FrameCount == 12 }, false},
		{"interval", "150", func(p AnimationParameters) bool { return p.FrameIntervalMs == 150 }, false},
		{"intensity", "1.75", func(p AnimationParameters) bool { return p.WiggleIntensity == 1.75 }, false},
		{"image_scale", "0.5", func(p AnimationParameters) bool { return p.ImageScale == 0.5 }, false},
		{"size", "120", func(p AnimationParameters) bool { return p.TargetMaxDimension == 120 }, false},
		{"budget", "131072", func(p AnimationParameters) bool { return p.SizeBudgetBytes == 131072 }, false},
		{"frames", "many", nil, true},
		{"rotation", "15", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			p := DefaultParameters()
			err := ApplySetting(&p, tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !tt.check(p) {
				t.Errorf("setting not applied: %+v", p)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultParameters().Validate(); err != nil {
		t.Fatalf("default parameters invalid: %v", err)
	}

	mutations := map[string]func(*AnimationParameters){
		"zero frames":    func(p *AnimationParameters) { p.FrameCount = 0 },
		"zero interval":  func(p *AnimationParameters) { p.FrameIntervalMs = 0 },
		"zero intensity": func(p *AnimationParameters) { p.WiggleIntensity = 0 },
		"zero scale":     func(p *AnimationParameters) { p.ImageScale = 0 },
		"scale above 1":  func(p *AnimationParameters) { p.ImageScale = 1.01 },
		"NaN intensity":  func(p *AnimationParameters) { p.WiggleIntensity = math.NaN() },
		"+Inf intensity": func(p *AnimationParameters) { p.WiggleIntensity = math.Inf(1) },
		"NaN scale":      func(p *AnimationParameters) { p.ImageScale = math.NaN() },
		"zero dimension": func(p *AnimationParameters) { p.TargetMaxDimension = 0 },
		"zero budget":    func(p *AnimationParameters) { p.SizeBudgetBytes = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := DefaultParameters()
			mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
