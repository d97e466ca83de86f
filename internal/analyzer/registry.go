package analyzer

import (
	"fmt"
	"image"
)

// NewDetector returns the detector for a variant name. "auto" picks
// alpha detection for images with transparency and contrast otherwise.
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "auto", "":
		return autoDetector{}, nil
	case "alpha":
		return NewAlphaDetector(), nil
	case "contrast":
		return NewContrastDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}

type autoDetector struct{}

func (autoDetector) Detect(img *image.NRGBA) ([]Block, error) {
	if hasTransparency(img) {
		return NewAlphaDetector().Detect(img)
	}
	return NewContrastDetector().Detect(img)
}

func hasTransparency(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] < 255 {
			return true
		}
	}
	return false
}
