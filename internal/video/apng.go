package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/setanarut/apng"
)

// APNG_DISPOSE_OP_BACKGROUND: clear the frame region before the next frame
const apngDisposeBackground = 1

// APNGCodec writes an animated PNG with a shared reduced palette
type APNGCodec struct{}

func (c *APNGCodec) Format() Format { return FormatAPNG }

func (c *APNGCodec) Encode(ctx context.Context, frames []*image.RGBA, opts EncodeOptions) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrEncode)
	}

	_, paletted := palettize(frames, opts.Palette)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	delay := uint16(delayCentiseconds(opts.IntervalMs))
	anim := apng.APNG{
		Images:    make([]image.Image, len(paletted)),
		Delays:    make([]uint16, len(paletted)),
		Disposals: make([]byte, len(paletted)),
	}
	for i, p := range paletted {
		anim.Images[i] = p
		anim.Delays[i] = delay
		anim.Disposals[i] = apngDisposeBackground
	}
	if !opts.Loop {
		anim.LoopCount = 1
	}

	var buf bytes.Buffer
	if err := apng.EncodeAll(newLimitWriter(&buf, opts.MaxBytes), &anim); err != nil {
		if errors.Is(err, ErrSizeLimit) {
			return nil, ErrSizeLimit
		}
		return nil, fmt.Errorf("%w: apng: %v", ErrEncode, err)
	}

	return buf.Bytes(), nil
}
