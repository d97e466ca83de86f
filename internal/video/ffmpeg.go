package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strconv"
)

// FFmpegCodec pipes raw frames through ffmpeg's palettegen/paletteuse
type FFmpegCodec struct {
	Binary string
}

func NewFFmpegCodec() *FFmpegCodec {
	return &FFmpegCodec{Binary: "ffmpeg"}
}

func (e *FFmpegCodec) Format() Format { return FormatGIF }

func (e *FFmpegCodec) Encode(ctx context.Context, frames []*image.RGBA, opts EncodeOptions) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrEncode)
	}
	b := frames[0].Bounds()

	cmd := exec.CommandContext(ctx, e.Binary, e.buildFFmpegArgs(b.Dx(), b.Dy(), opts)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe error: %v", ErrEncode, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg start error: %v", ErrEncode, err)
	}

	var writeErr error
	for _, f := range frames {
		if writeErr = writeRawNRGBA(stdin, f); writeErr != nil {
			break
		}
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg wait error: %v: %s", ErrEncode, err, stderr.String())
	}
	// -fs stops the muxer once the limit is crossed, leaving a truncated file.
	// ffmpeg may stop reading stdin at that point, so this wins over writeErr.
	if opts.MaxBytes > 0 && stdout.Len() > opts.MaxBytes {
		return nil, ErrSizeLimit
	}
	if writeErr != nil {
		return nil, fmt.Errorf("%w: write raw error: %v", ErrEncode, writeErr)
	}

	return stdout.Bytes(), nil
}

func (e *FFmpegCodec) buildFFmpegArgs(w, h int, opts EncodeOptions) []string {
	colors := opts.Palette.Size
	if colors < 4 {
		colors = 4 // palettegen minimum
	}
	if colors > 256 {
		colors = 256
	}

	reserve := 0
	if opts.Palette.Transparent {
		reserve = 1
	}

	filter := fmt.Sprintf(
		"split[s0][s1];[s0]palettegen=max_colors=%d:reserve_transparent=%d:stats_mode=full[p];[s1][p]paletteuse=%s:alpha_threshold=%d",
		colors, reserve, ffmpegDither(opts.Palette.Dither), alphaThreshold,
	)

	loop := "0"
	if !opts.Loop {
		loop = "-1"
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-framerate", strconv.FormatFloat(opts.FrameRate, 'f', -1, 64),
		"-i", "-",
		"-vf", filter,
		"-loop", loop,
	}
	if opts.MaxBytes > 0 {
		// One byte over the budget so an exact fit is not mistaken for truncation.
		args = append(args, "-fs", strconv.Itoa(opts.MaxBytes+1))
	}
	args = append(args, "-f", "gif", "-")
	return args
}

func ffmpegDither(d Dither) string {
	switch d {
	case DitherFine:
		return "dither=bayer:bayer_scale=2"
	case DitherCoarse:
		return "dither=bayer:bayer_scale=4"
	default:
		return "dither=none"
	}
}

// writeRawNRGBA writes straight-alpha pixels, which is what ffmpeg's rgba expects
func writeRawNRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	_, err := w.Write(nrgba.Pix)
	return err
}
