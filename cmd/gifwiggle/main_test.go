package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/draw"

	"github.com/ivlev/gifwiggle/internal/config"
	"github.com/ivlev/gifwiggle/internal/controller"
	"github.com/ivlev/gifwiggle/internal/engine"
	"github.com/ivlev/gifwiggle/internal/motion"
	"github.com/ivlev/gifwiggle/internal/source"
	"github.com/ivlev/gifwiggle/internal/video"
)

func smallParams() config.AnimationParameters {
	p := config.DefaultParameters()
	p.FrameCount = 4
	p.TargetMaxDimension = 32
	return p
}

func newTestController() *controller.Controller {
	pipeline := engine.NewPipeline(
		engine.NewBuilder(motion.NewSeededRand(1), draw.NearestNeighbor, nil),
		video.NewEncoder(&video.GIFCodec{}, nil),
		nil,
	)
	return controller.New(pipeline, controller.Options{})
}

func testImage() *source.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 40, B: 90, A: 255})
		}
	}
	return source.NewImage("blob.png", img)
}

func TestHandleCommand(t *testing.T) {
	ctrl := newTestController()
	defer ctrl.Close()
	ctrl.SetSource(testImage())

	if quit := handleCommand(ctrl, "frames=9"); quit {
		t.Fatal("frames=9 should not quit")
	}
	if got := ctrl.Params().FrameCount; got != 9 {
		t.Errorf("Expected 9 frames, got %d", got)
	}

	handleCommand(ctrl, "scale=7")
	if got := ctrl.Params().ImageScale; got == 7 {
		t.Error("Invalid scale was accepted")
	}

	handleCommand(ctrl, "bogus=1")
	handleCommand(ctrl, "preset slack")
	if got := ctrl.Params().SizeBudgetBytes; got != 128*1024 {
		t.Errorf("Expected slack budget, got %d", got)
	}

	if !handleCommand(ctrl, "quit") {
		t.Error("quit should end the session")
	}
}

func TestRunInteractiveWritesArtifact(t *testing.T) {
	ctrl := newTestController()
	defer ctrl.Close()

	output := filepath.Join(t.TempDir(), "wiggling-blob.gif")
	in := strings.NewReader("status\ngenerate\n")

	if err := runInteractive(context.Background(), ctrl, testImage(), smallParams(), output, in); err != nil {
		t.Fatalf("runInteractive failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Expected artifact at %s: %v", output, err)
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Artifact does not decode: %v", err)
	}
	if len(g.Image) != 4 {
		t.Errorf("Expected 4 frames, got %d", len(g.Image))
	}
}

func TestRunOnce(t *testing.T) {
	ctrl := newTestController()
	defer ctrl.Close()

	output := filepath.Join(t.TempDir(), "out.gif")
	if err := runOnce(context.Background(), ctrl, testImage(), smallParams(), output); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("Expected output file: %v", err)
	}

	bad := smallParams()
	bad.SizeBudgetBytes = 50
	if err := runOnce(context.Background(), ctrl, testImage(), bad, output); err == nil {
		t.Error("Expected failure for an unreachable budget")
	}
}
