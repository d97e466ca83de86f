package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/gifwiggle/internal/config"
	"github.com/ivlev/gifwiggle/internal/source"
	"github.com/ivlev/gifwiggle/internal/video"
)

// Loader reads a source image from disk
type Loader interface {
	Load(path string) (*source.Image, error)
}

// Batch runs one pipeline per input file with bounded parallelism
type Batch struct {
	Pipeline *Pipeline
	Loader   Loader
	Workers  int
	Out      io.Writer // progress lines; os.Stdout when nil
}

type BatchResult struct {
	Input    string
	Output   string
	Artifact *video.Artifact
	Err      error
}

// OutputName returns the download name for an animation of the named source
func OutputName(input string, f video.Format) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return "wiggling-" + base + f.Extension()
}

// RunDir animates every input and writes the artifacts to outDir. A failed
// image does not stop the others; the failures are joined into the
// returned error. Cancellation stops the batch.
func (b *Batch) RunDir(ctx context.Context, inputs []string, outDir string, params config.AnimationParameters) ([]BatchResult, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	out := b.Out
	if out == nil {
		out = os.Stdout
	}

	workers := b.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]BatchResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, input := range inputs {
		results[i].Input = input
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = cancelled(err)
				return results[i].Err
			}

			src, err := b.Loader.Load(input)
			if err != nil {
				results[i].Err = err
				return nil
			}

			art, err := b.Pipeline.Run(gctx, src, params)
			if err != nil {
				results[i].Err = err
				if errors.Is(err, ErrCancelled) {
					return err
				}
				return nil
			}

			path := filepath.Join(outDir, OutputName(input, art.Format))
			if err := os.WriteFile(path, art.Data, 0644); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Output = path
			results[i].Artifact = art
			fmt.Fprintf(out, "[>] Ready: %s (%d bytes)\n", filepath.Base(path), art.SizeBytes)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Input, r.Err))
		}
	}
	return results, errors.Join(errs...)
}
