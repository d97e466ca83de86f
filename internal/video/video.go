package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"

	"github.com/ivlev/gifwiggle/internal/system"
)

var (
	// ErrEncode marks a codec failure unrelated to the size ceiling.
	ErrEncode = errors.New("encode failed")
	// ErrSizeLimit is returned by a codec whose output hit MaxBytes.
	ErrSizeLimit = errors.New("output size limit reached")
	// ErrBudgetUnreachable means no palette on the ladder fit the budget.
	ErrBudgetUnreachable = errors.New("size budget unreachable")
)

type Format string

const (
	FormatGIF  Format = "gif"
	FormatAPNG Format = "apng"
)

// Extension returns the file suffix for the format
func (f Format) Extension() string {
	if f == FormatAPNG {
		return ".png"
	}
	return ".gif"
}

type Dither int

const (
	DitherNone   Dither = iota
	DitherCoarse        // 4x4 ordered (Bayer) matrix
	DitherFine          // 8x8 ordered (Bayer) matrix
)

func (d Dither) String() string {
	switch d {
	case DitherFine:
		return "bayer8"
	case DitherCoarse:
		return "bayer4"
	default:
		return "none"
	}
}

type PaletteConfig struct {
	Size        int // Total palette entries including the transparent one
	Dither      Dither
	Transparent bool // Reserve index 0 for fully transparent pixels
}

type EncodeOptions struct {
	FrameRate  float64
	IntervalMs int
	Loop       bool
	Palette    PaletteConfig
	MaxBytes   int // Hard output ceiling; 0 disables it
}

// Codec turns an ordered frame list into a looping palette animation
type Codec interface {
	Format() Format
	Encode(ctx context.Context, frames []*image.RGBA, opts EncodeOptions) ([]byte, error)
}

// NewCodec resolves a codec by name. "auto" prefers ffmpeg when it is
// installed with palettegen support and falls back to the in-process GIF codec.
func NewCodec(name string, logger *slog.Logger) (Codec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(name) {
	case "", "auto":
		if system.HasFFmpeg() && system.CheckFilterSupport("palettegen") {
			logger.Debug("codec selected", "codec", "ffmpeg")
			return NewFFmpegCodec(), nil
		}
		logger.Debug("codec selected", "codec", "gif", "reason", "ffmpeg unavailable")
		return &GIFCodec{}, nil
	case "gif":
		return &GIFCodec{}, nil
	case "apng":
		return &APNGCodec{}, nil
	case "ffmpeg":
		if !system.HasFFmpeg() {
			return nil, fmt.Errorf("ffmpeg not found in PATH")
		}
		return NewFFmpegCodec(), nil
	default:
		return nil, fmt.Errorf("unknown codec: %s", name)
	}
}

// delayCentiseconds converts a frame interval to GIF/APNG delay units
func delayCentiseconds(intervalMs int) int {
	cs := (intervalMs + 5) / 10
	if cs < 1 {
		cs = 1
	}
	return cs
}

// limitWriter fails with ErrSizeLimit instead of writing past max bytes
type limitWriter struct {
	w   io.Writer
	n   int
	max int
}

func newLimitWriter(w io.Writer, max int) io.Writer {
	if max <= 0 {
		return w
	}
	return &limitWriter{w: w, max: max}
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.n+len(p) > l.max {
		return 0, ErrSizeLimit
	}
	n, err := l.w.Write(p)
	l.n += n
	return n, err
}
