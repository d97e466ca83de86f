package config

import (
	"fmt"
	"math"
	"time"
)

type Config struct {
	InputPath    string
	OutputPath   string
	QRText       string
	Codec        string
	Kernel       string
	Trim         string // "" disables, else a detector variant
	PresetName   string
	SavePreset   string
	Workers      int
	Debounce     time.Duration
	Interactive  bool
	ShowStats    bool
	Verbose      bool
	BuildVersion string
	Params       AnimationParameters
}

// AnimationParameters is a snapshot of the knobs that shape one animation.
// A run captures it by value, so later edits never reach an in-flight run.
type AnimationParameters struct {
	FrameCount         int     `yaml:"frame_count"`
	FrameIntervalMs    int     `yaml:"frame_interval_ms"`
	WiggleIntensity    float64 `yaml:"wiggle_intensity"`
	ImageScale         float64 `yaml:"image_scale"`
	TargetMaxDimension int     `yaml:"target_max_dimension"`
	SizeBudgetBytes    int     `yaml:"size_budget_bytes"`
}

// DefaultParameters mirrors the classic emoji wiggle: 20 frames at 50ms.
func DefaultParameters() AnimationParameters {
	return AnimationParameters{
		FrameCount:         20,
		FrameIntervalMs:    50,
		WiggleIntensity:    1.0,
		ImageScale:         0.8,
		TargetMaxDimension: 128,
		SizeBudgetBytes:    256 * 1024,
	}
}

func (p AnimationParameters) Validate() error {
	switch {
	case p.FrameCount <= 0:
		return fmt.Errorf("frame count must be positive, got %d", p.FrameCount)
	case p.FrameIntervalMs <= 0:
		return fmt.Errorf("frame interval must be positive, got %dms", p.FrameIntervalMs)
	case !(p.WiggleIntensity > 0) || math.IsInf(p.WiggleIntensity, 0):
		return fmt.Errorf("wiggle intensity must be positive, got %f", p.WiggleIntensity)
	case !(p.ImageScale > 0 && p.ImageScale <= 1):
		return fmt.Errorf("image scale must be in (0,1], got %f", p.ImageScale)
	case p.TargetMaxDimension <= 0:
		return fmt.Errorf("target dimension must be positive, got %d", p.TargetMaxDimension)
	case p.SizeBudgetBytes <= 0:
		return fmt.Errorf("size budget must be positive, got %d", p.SizeBudgetBytes)
	}
	return nil
}

// FrameRate converts the frame interval to frames per second.
func (p AnimationParameters) FrameRate() float64 {
	return 1000.0 / float64(p.FrameIntervalMs)
}
