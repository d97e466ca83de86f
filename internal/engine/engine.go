package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/draw"

	"github.com/ivlev/gifwiggle/internal/analyzer"
	"github.com/ivlev/gifwiggle/internal/config"
	"github.com/ivlev/gifwiggle/internal/motion"
	"github.com/ivlev/gifwiggle/internal/renderer"
	"github.com/ivlev/gifwiggle/internal/source"
	"github.com/ivlev/gifwiggle/internal/video"
)

// ErrCancelled is returned when a run observes its context being cancelled.
// The context error is wrapped too, so errors.Is(err, context.Canceled) holds.
var ErrCancelled = errors.New("generation cancelled")

// Frame is one rendered canvas, addressed by its index in the sequence
type Frame struct {
	Index int
	Image *image.RGBA
}

// FrameSequence is the ordered output of one build. Loop is always true.
type FrameSequence struct {
	Frames     []Frame
	IntervalMs int
	Loop       bool
	Canvas     motion.Canvas
}

// Images returns the frame buffers in index order
func (s *FrameSequence) Images() []*image.RGBA {
	out := make([]*image.RGBA, len(s.Frames))
	for i, f := range s.Frames {
		out[i] = f.Image
	}
	return out
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// Builder turns a source image and parameters into a frame sequence
type Builder struct {
	Rand   motion.Rand
	Kernel draw.Interpolator
	Logger *slog.Logger
	// Trim, if set, crops the source to its detected content first.
	Trim       analyzer.Detector
	TrimMargin int
}

func NewBuilder(rnd motion.Rand, kernel draw.Interpolator, logger *slog.Logger) *Builder {
	if rnd == nil {
		rnd = motion.NewRand()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{Rand: rnd, Kernel: kernel, Logger: logger}
}

// Build draws one seed, generates every transform and renders the frames in
// order. The context is checked before each frame.
func (b *Builder) Build(ctx context.Context, src *source.Image, params config.AnimationParameters) (*FrameSequence, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if src == nil || src.Pixels == nil || src.Width() == 0 || src.Height() == 0 {
		return nil, fmt.Errorf("%w: degenerate source image", renderer.ErrRender)
	}

	if b.Trim != nil {
		trimmed, err := analyzer.Trim(src, b.Trim, b.TrimMargin)
		if err != nil {
			return nil, fmt.Errorf("trim: %w", err)
		}
		if trimmed != src && b.Logger != nil {
			b.Logger.Debug("source trimmed", "source", src.Name,
				"from", fmt.Sprintf("%dx%d", src.Width(), src.Height()),
				"to", fmt.Sprintf("%dx%d", trimmed.Width(), trimmed.Height()))
		}
		src = trimmed
	}

	rnd := b.Rand
	if rnd == nil {
		rnd = motion.NewRand()
	}
	seed := motion.NewSeed(rnd)
	canvas := motion.FitCanvas(src.Width(), src.Height(), params.TargetMaxDimension)
	transforms := motion.Generate(params, canvas, src.Width(), src.Height(), seed)

	if b.Logger != nil {
		b.Logger.Debug("building frames",
			"source", src.Name,
			"canvas", fmt.Sprintf("%dx%d", canvas.Width, canvas.Height),
			"frames", len(transforms),
			"frequencies", seed.Frequencies(),
		)
	}

	r, err := renderer.New(canvas, b.Kernel)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	seq := &FrameSequence{
		Frames:     make([]Frame, 0, len(transforms)),
		IntervalMs: params.FrameIntervalMs,
		Loop:       true,
		Canvas:     canvas,
	}
	for i, t := range transforms {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		img, err := r.Render(src, t)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		seq.Frames = append(seq.Frames, Frame{Index: i, Image: img})
	}

	return seq, nil
}

// Encoder is the size-budgeted encode step of a pipeline
type Encoder interface {
	Encode(ctx context.Context, frames []*image.RGBA, intervalMs, budget int) (*video.Artifact, error)
}

// Pipeline runs build then encode for one source image
type Pipeline struct {
	Builder *Builder
	Encoder Encoder
	Logger  *slog.Logger
	// OnStats, if set, receives the timing record of every successful run.
	OnStats func(Stats)
}

func NewPipeline(b *Builder, enc Encoder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Builder: b, Encoder: enc, Logger: logger}
}

func (p *Pipeline) Run(ctx context.Context, src *source.Image, params config.AnimationParameters) (*video.Artifact, error) {
	start := time.Now()

	seq, err := p.Builder.Build(ctx, src, params)
	if err != nil {
		return nil, err
	}
	renderTime := time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	encodeStart := time.Now()
	art, err := p.Encoder.Encode(ctx, seq.Images(), seq.IntervalMs, params.SizeBudgetBytes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, cancelled(ctxErr)
		}
		return nil, err
	}

	stats := Stats{
		Source:      src.Name,
		Frames:      len(seq.Frames),
		Canvas:      seq.Canvas,
		Render:      renderTime,
		Encode:      time.Since(encodeStart),
		Total:       time.Since(start),
		Bytes:       art.SizeBytes,
		Budget:      params.SizeBudgetBytes,
		PaletteSize: art.PaletteSize,
		Attempts:    art.Attempts,
	}
	if p.Logger != nil {
		p.Logger.Info("animation encoded", stats.Attrs()...)
	}
	if p.OnStats != nil {
		p.OnStats(stats)
	}

	return art, nil
}
