package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"log/slog"
)

const (
	DefaultInitialPalette = 256
	DefaultMinPalette     = 4
	DefaultMaxAttempts    = 6
)

// Artifact is an encoded animation that fits its size budget
type Artifact struct {
	Data        []byte
	SizeBytes   int
	Format      Format
	PaletteSize int
	Attempts    int
}

// Encoder wraps a Codec and walks a shrinking palette ladder until the
// output fits the byte budget.
type Encoder struct {
	Codec          Codec
	InitialPalette int
	MinPalette     int
	MaxAttempts    int
	Logger         *slog.Logger
}

func NewEncoder(codec Codec, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		Codec:          codec,
		InitialPalette: DefaultInitialPalette,
		MinPalette:     DefaultMinPalette,
		MaxAttempts:    DefaultMaxAttempts,
		Logger:         logger,
	}
}

// Encode returns an artifact no larger than budget bytes. Context errors
// are returned wrapped so callers can match them with errors.Is.
func (e *Encoder) Encode(ctx context.Context, frames []*image.RGBA, intervalMs, budget int) (*Artifact, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrEncode)
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: non-positive budget %d", ErrEncode, budget)
	}
	if intervalMs <= 0 {
		return nil, fmt.Errorf("%w: non-positive interval %d", ErrEncode, intervalMs)
	}

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ladder := e.ladder()
	for k, size := range ladder {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("encode attempt %d: %w", k+1, err)
		}

		opts := EncodeOptions{
			FrameRate:  1000.0 / float64(intervalMs),
			IntervalMs: intervalMs,
			Loop:       true,
			Palette: PaletteConfig{
				Size:        size,
				Dither:      ditherFor(k, len(ladder)),
				Transparent: true,
			},
			MaxBytes: budget,
		}

		data, err := e.Codec.Encode(ctx, frames, opts)
		switch {
		case err == nil:
		case errors.Is(err, ErrSizeLimit):
			logger.Debug("attempt over budget", "attempt", k+1, "palette", size, "dither", opts.Palette.Dither)
			continue
		case ctx.Err() != nil:
			return nil, fmt.Errorf("encode attempt %d: %w", k+1, ctx.Err())
		case errors.Is(err, ErrEncode):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}

		if len(data) > budget {
			logger.Debug("attempt over budget", "attempt", k+1, "palette", size, "bytes", len(data), "budget", budget)
			continue
		}
		if err := validate(e.Codec.Format(), data, len(frames)); err != nil {
			logger.Warn("attempt produced invalid output", "attempt", k+1, "palette", size, "error", err)
			continue
		}

		logger.Debug("artifact accepted", "attempt", k+1, "palette", size, "bytes", len(data), "budget", budget)
		return &Artifact{
			Data:        data,
			SizeBytes:   len(data),
			Format:      e.Codec.Format(),
			PaletteSize: size,
			Attempts:    k + 1,
		}, nil
	}

	return nil, fmt.Errorf("%w: %d bytes not reached after %d attempts; reduce frame count or canvas size",
		ErrBudgetUnreachable, budget, len(ladder))
}

// ladder halves the palette each attempt, strictly decreasing, never below MinPalette
func (e *Encoder) ladder() []int {
	size := e.InitialPalette
	if size <= 0 || size > 256 {
		size = DefaultInitialPalette
	}
	minSize := e.MinPalette
	if minSize < 2 {
		minSize = 2
	}
	attempts := e.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var sizes []int
	for len(sizes) < attempts && size >= minSize {
		sizes = append(sizes, size)
		size /= 2
	}
	if len(sizes) == 0 {
		sizes = append(sizes, minSize)
	}
	return sizes
}

// ditherFor coarsens dithering as attempts progress; the last one has none
func ditherFor(k, n int) Dither {
	switch {
	case k == n-1:
		return DitherNone
	case k < (n+1)/2:
		return DitherFine
	default:
		return DitherCoarse
	}
}

func validate(f Format, data []byte, frames int) error {
	switch f {
	case FormatAPNG:
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			return err
		}
		if !bytes.HasSuffix(data, pngTrailer) {
			return errors.New("missing IEND chunk")
		}
		return nil
	default:
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return err
		}
		if len(g.Image) != frames {
			return fmt.Errorf("decoded %d frames, want %d", len(g.Image), frames)
		}
		return nil
	}
}

// IEND chunk: zero length, type, CRC
var pngTrailer = []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}
