package analyzer

import (
	"image"
)

// AlphaDetector reports the box around every sufficiently opaque pixel
type AlphaDetector struct {
	Threshold uint8
}

func NewAlphaDetector() *AlphaDetector {
	return &AlphaDetector{Threshold: 16}
}

func (d *AlphaDetector) Detect(img *image.NRGBA) ([]Block, error) {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	area := 0

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4+3] < d.Threshold {
				continue
			}
			area++
			minX = min(minX, b.Min.X+x)
			maxX = max(maxX, b.Min.X+x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if area == 0 {
		return nil, nil
	}
	return []Block{{Rect: image.Rect(minX, minY, maxX+1, maxY+1), Area: area}}, nil
}
