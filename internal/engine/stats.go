package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ivlev/gifwiggle/internal/motion"
)

// Stats is the timing and size record of one pipeline run
type Stats struct {
	Source      string
	Frames      int
	Canvas      motion.Canvas
	Render      time.Duration
	Encode      time.Duration
	Total       time.Duration
	Bytes       int
	Budget      int
	PaletteSize int
	Attempts    int
}

func (s Stats) Attrs() []any {
	return []any{
		"source", s.Source,
		"frames", s.Frames,
		"canvas", fmt.Sprintf("%dx%d", s.Canvas.Width, s.Canvas.Height),
		"bytes", s.Bytes,
		"budget", s.Budget,
		"palette", s.PaletteSize,
		"attempts", s.Attempts,
		"render", s.Render.Round(time.Millisecond),
		"encode", s.Encode.Round(time.Millisecond),
	}
}

// Report formats the human-readable performance block printed with -stats
func (s Stats) Report(build string) string {
	fps := 0.0
	if s.Total > 0 {
		fps = float64(s.Frames) / s.Total.Seconds()
	}
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Rendering (CPU): %.2fs\n"+
			"Encoding: %.2fs (%d attempts, %d colors)\n"+
			"Size: %d / %d bytes\n"+
			"Effective FPS: %.2f\n"+
			"----------------------------\n",
		build, s.Total.Seconds(), s.Render.Seconds(), s.Encode.Seconds(), s.Attempts, s.PaletteSize,
		s.Bytes, s.Budget, fps,
	)
}

// AppendBenchmark appends a one-line summary of the run to path
func (s Stats) AppendBenchmark(path, build string) error {
	logEntry := fmt.Sprintf("[%s] Build: %s | Input: %s | Frames: %d | Canvas: %dx%d | Total: %.2fs | Render: %.2fs | Encode: %.2fs | Size: %d/%d\n",
		time.Now().Format("2006-01-02 15:04:05"),
		build,
		filepath.Base(s.Source),
		s.Frames,
		s.Canvas.Width, s.Canvas.Height,
		s.Total.Seconds(),
		s.Render.Seconds(),
		s.Encode.Seconds(),
		s.Bytes, s.Budget,
	)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(logEntry)
	return err
}
