package renderer

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/gifwiggle/internal/motion"
	"github.com/ivlev/gifwiggle/internal/source"
	"github.com/ivlev/gifwiggle/internal/system"
)

// ErrRender marks a frame that could not be produced
var ErrRender = errors.New("render failed")

// Upper bound on canvas area (64 megapixels) to refuse absurd allocations.
const maxCanvasPixels = 8192 * 8192

// KernelByName maps a CLI name to an x/image interpolator
func KernelByName(name string) (draw.Interpolator, error) {
	switch strings.ToLower(name) {
	case "", "catmullrom":
		return draw.CatmullRom, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "approx-bilinear":
		return draw.ApproxBiLinear, nil
	case "nearest":
		return draw.NearestNeighbor, nil
	default:
		return nil, fmt.Errorf("unknown kernel: %s", name)
	}
}

// Renderer draws transformed copies of a source image onto a canvas-sized
// back-buffer. It is not safe for concurrent use; each run owns one.
type Renderer struct {
	canvas motion.Canvas
	kernel draw.Interpolator
	back   *image.RGBA
}

// New acquires a back-buffer for the canvas. Call Close to release it.
func New(c motion.Canvas, kernel draw.Interpolator) (*Renderer, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, fmt.Errorf("%w: empty canvas %dx%d", ErrRender, c.Width, c.Height)
	}
	if c.Width*c.Height > maxCanvasPixels {
		return nil, fmt.Errorf("%w: canvas %dx%d too large", ErrRender, c.Width, c.Height)
	}
	if kernel == nil {
		kernel = draw.CatmullRom
	}

	return &Renderer{
		canvas: c,
		kernel: kernel,
		back:   system.GetImage(image.Rect(0, 0, c.Width, c.Height)),
	}, nil
}

// Render clears the back-buffer, draws src centered on the transform's
// origin at its scale, and returns a copy the caller owns.
func (r *Renderer) Render(src *source.Image, t motion.Transform) (*image.RGBA, error) {
	if r.back == nil {
		return nil, fmt.Errorf("%w: renderer closed", ErrRender)
	}
	if src == nil || src.Width() == 0 || src.Height() == 0 {
		return nil, fmt.Errorf("%w: degenerate source image", ErrRender)
	}
	if t.Scale <= 0 {
		return nil, fmt.Errorf("%w: non-positive scale %f", ErrRender, t.Scale)
	}

	clear(r.back.Pix)

	r.kernel.Transform(r.back, sourceToCanvas(src, t), src.Pixels, src.Pixels.Bounds(), draw.Over, nil)

	frame := image.NewRGBA(r.back.Rect)
	copy(frame.Pix, r.back.Pix)
	return frame, nil
}

// Close returns the back-buffer to the pool
func (r *Renderer) Close() {
	system.PutImage(r.back)
	r.back = nil
}

// sourceToCanvas is translate(t) * scale(s) * translate(-w/2, -h/2)
func sourceToCanvas(src *source.Image, t motion.Transform) f64.Aff3 {
	s := t.Scale
	w := float64(src.Width())
	h := float64(src.Height())
	return f64.Aff3{
		s, 0, t.TranslateX - s*w/2,
		0, s, t.TranslateY - s*h/2,
	}
}
