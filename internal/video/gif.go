package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
)

// GIFCodec encodes in-process with image/gif
type GIFCodec struct{}

func (c *GIFCodec) Format() Format { return FormatGIF }

func (c *GIFCodec) Encode(ctx context.Context, frames []*image.RGBA, opts EncodeOptions) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrEncode)
	}

	pal, paletted := palettize(frames, opts.Palette)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	delay := delayCentiseconds(opts.IntervalMs)
	anim := &gif.GIF{
		Image:    paletted,
		Delay:    make([]int, len(paletted)),
		Disposal: make([]byte, len(paletted)),
		Config: image.Config{
			ColorModel: pal,
			Width:      paletted[0].Rect.Dx(),
			Height:     paletted[0].Rect.Dy(),
		},
	}
	for i := range paletted {
		anim.Delay[i] = delay
		// Transparent frames must not accumulate on top of each other.
		anim.Disposal[i] = gif.DisposalBackground
	}
	if opts.Loop {
		anim.LoopCount = 0
	} else {
		anim.LoopCount = -1
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(newLimitWriter(&buf, opts.MaxBytes), anim); err != nil {
		if errors.Is(err, ErrSizeLimit) {
			return nil, ErrSizeLimit
		}
		return nil, fmt.Errorf("%w: gif: %v", ErrEncode, err)
	}

	return buf.Bytes(), nil
}
