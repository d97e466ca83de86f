package analyzer

import (
	"image"
	"math"
)

// ContrastDetector finds content on opaque images by edge density:
// Sobel gradient, dilation to merge nearby edges, then connected regions.
type ContrastDetector struct {
	MinBlockArea  int     // Minimum box area in pixels²
	EdgeThreshold float64 // Gradient magnitude threshold
	DilateRadius  int
}

func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  64,
		EdgeThreshold: 30.0,
		DilateRadius:  2,
	}
}

func (d *ContrastDetector) Detect(img *image.NRGBA) ([]Block, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 3 || h < 3 {
		return nil, nil
	}

	luma := luminance(img)
	edges := sobel(luma, w, h, d.EdgeThreshold)
	for i := 0; i < 2; i++ {
		edges = dilate(edges, w, h, d.DilateRadius)
	}

	var blocks []Block
	for _, b := range components(edges, w, h) {
		if b.Rect.Dx()*b.Rect.Dy() < d.MinBlockArea {
			continue
		}
		b.Rect = b.Rect.Add(img.Rect.Min)
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// luminance returns Rec. 601 luma, one byte per pixel
func luminance(img *image.NRGBA) []uint8 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			r, g, b := int(row[x*4]), int(row[x*4+1]), int(row[x*4+2])
			out[y*w+x] = uint8((299*r + 587*g + 114*b) / 1000)
		}
	}
	return out
}

func sobel(luma []uint8, w, h int, threshold float64) []bool {
	edges := make([]bool, w*h)
	at := func(x, y int) float64 { return float64(luma[y*w+x]) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) -
				2*at(x-1, y) + 2*at(x+1, y) -
				at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			edges[y*w+x] = math.Hypot(gx, gy) > threshold
		}
	}
	return edges
}

// dilate grows every set cell by r in both axes, one axis at a time
func dilate(in []bool, w, h, r int) []bool {
	if r <= 0 {
		return in
	}
	horiz := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !in[y*w+x] {
				continue
			}
			for dx := max(0, x-r); dx <= min(w-1, x+r); dx++ {
				horiz[y*w+dx] = true
			}
		}
	}

	out := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !horiz[y*w+x] {
				continue
			}
			for dy := max(0, y-r); dy <= min(h-1, y+r); dy++ {
				out[dy*w+x] = true
			}
		}
	}
	return out
}

// components labels 4-connected regions and returns their boxes
func components(mask []bool, w, h int) []Block {
	seen := make([]bool, w*h)
	var blocks []Block
	var queue []int

	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}

		seen[start] = true
		queue = append(queue[:0], start)
		minX, minY := w, h
		maxX, maxY := -1, -1
		area := 0

		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w
			area++
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if mask[j] && !seen[j] {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}

		blocks = append(blocks, Block{Rect: image.Rect(minX, minY, maxX+1, maxY+1), Area: area})
	}
	return blocks
}
