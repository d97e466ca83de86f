package analyzer

import (
	"image"
	"image/draw"

	"github.com/ivlev/gifwiggle/internal/source"
)

// ContentBounds returns the union of the detected blocks grown by margin
// and clipped to the image. ok is false when nothing was detected.
func ContentBounds(img *image.NRGBA, d Detector, margin int) (image.Rectangle, bool, error) {
	blocks, err := d.Detect(img)
	if err != nil {
		return image.Rectangle{}, false, err
	}
	if len(blocks) == 0 {
		return img.Rect, false, nil
	}

	r := blocks[0].Rect
	for _, b := range blocks[1:] {
		r = r.Union(b.Rect)
	}
	r = r.Inset(-margin).Intersect(img.Rect)
	return r, !r.Empty(), nil
}

// Trim crops a source image to its content so the wiggle uses the whole
// canvas. The source is returned unchanged when no content is found.
func Trim(src *source.Image, d Detector, margin int) (*source.Image, error) {
	r, ok, err := ContentBounds(src.Pixels, d, margin)
	if err != nil || !ok || r == src.Pixels.Rect {
		return src, err
	}

	cropped := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(cropped, cropped.Rect, src.Pixels, r.Min, draw.Src)
	return &source.Image{Name: src.Name, Pixels: cropped}, nil
}
