package motion

import (
	"math"

	"github.com/ivlev/gifwiggle/internal/config"
)

// Base frequencies per wobble term. They are multiplied by the seed and
// rounded to distinct integers so the last frame flows back into the first.
var baseFrequencies = [3]float64{2, 3, 5}

// Relative weight of each term; they sum to 1.
var termWeights = [3]float64{0.5, 0.3, 0.2}

// Fraction of the shorter canvas side that intensity 1.0 moves the image.
const amplitudeRatio = 0.05

// Canvas is the output frame size and the factor that fits the source into it
type Canvas struct {
	Width    int
	Height   int
	FitScale float64
}

// Transform places the source image on the canvas for one frame
type Transform struct {
	TranslateX float64 // Canvas X of the source center
	TranslateY float64 // Canvas Y of the source center
	Scale      float64 // Uniform source-to-canvas scale (imageScale * fitScale)

	OffsetX    float64 // Clamped offset from canvas center
	OffsetY    float64
	MaxOffsetX float64 // Clamp limits used for this frame
	MaxOffsetY float64
}

// FitCanvas shrinks the source so its largest side fits targetMax.
// Sources already smaller than targetMax are left at their own size.
func FitCanvas(srcW, srcH, targetMax int) Canvas {
	longest := srcW
	if srcH > longest {
		longest = srcH
	}

	fit := 1.0
	if longest > targetMax && longest > 0 {
		fit = float64(targetMax) / float64(longest)
	}

	return Canvas{
		Width:    fitDimension(srcW, fit),
		Height:   fitDimension(srcH, fit),
		FitScale: fit,
	}
}

// fitDimension rounds up so the fitted source never exceeds the canvas.
func fitDimension(src int, fit float64) int {
	return max(1, int(math.Ceil(float64(src)*fit-1e-9)))
}

// Generate returns one Transform per frame. The result depends only on its
// arguments, so the same seed always yields the same sequence.
func Generate(p config.AnimationParameters, c Canvas, srcW, srcH int, s Seed) []Transform {
	if p.FrameCount <= 0 {
		return nil
	}

	freqs := s.Frequencies()
	scale := p.ImageScale * c.FitScale
	amplitude := p.WiggleIntensity * amplitudeRatio * math.Min(float64(c.Width), float64(c.Height))

	maxX := maxOffset(c.Width, srcW, scale)
	maxY := maxOffset(c.Height, srcH, scale)

	transforms := make([]Transform, p.FrameCount)
	for i := range transforms {
		progress := float64(i) / float64(p.FrameCount)
		t := progress * 2 * math.Pi

		var rawX, rawY float64
		for k := range freqs {
			rawX += termWeights[k] * math.Sin(freqs[k]*t+s.Phases[k])
			rawY += termWeights[k] * math.Cos(freqs[k]*t+s.Phases[k]+math.Pi/3)
		}

		offX := clamp(rawX*amplitude, maxX)
		offY := clamp(rawY*amplitude, maxY)

		transforms[i] = Transform{
			TranslateX: float64(c.Width)/2 + offX,
			TranslateY: float64(c.Height)/2 + offY,
			Scale:      scale,
			OffsetX:    offX,
			OffsetY:    offY,
			MaxOffsetX: maxX,
			MaxOffsetY: maxY,
		}
	}

	return transforms
}

// Bounds returns the canvas-space box covered by a srcW x srcH image
func (t Transform) Bounds(srcW, srcH int) (minX, minY, maxX, maxY float64) {
	halfW := float64(srcW) * t.Scale / 2
	halfH := float64(srcH) * t.Scale / 2
	return t.TranslateX - halfW, t.TranslateY - halfH, t.TranslateX + halfW, t.TranslateY + halfH
}

// maxOffset is how far the scaled image may drift from center before an edge
// would leave the canvas.
func maxOffset(canvasDim, srcDim int, scale float64) float64 {
	return math.Max(0, (float64(canvasDim)-float64(srcDim)*scale)/2)
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
