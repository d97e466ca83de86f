package analyzer

import "image"

// Block is one region of visible content
type Block struct {
	Rect image.Rectangle
	Area int // Number of content pixels inside Rect
}

// Detector finds the regions of an image that carry content
type Detector interface {
	Detect(img *image.NRGBA) ([]Block, error)
}
