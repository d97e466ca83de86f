package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/gifwiggle/internal/analyzer"
	"github.com/ivlev/gifwiggle/internal/config"
	"github.com/ivlev/gifwiggle/internal/controller"
	"github.com/ivlev/gifwiggle/internal/engine"
	"github.com/ivlev/gifwiggle/internal/motion"
	"github.com/ivlev/gifwiggle/internal/renderer"
	"github.com/ivlev/gifwiggle/internal/source"
	"github.com/ivlev/gifwiggle/internal/system"
	"github.com/ivlev/gifwiggle/internal/video"
)

var buildVersion = "dev"

func main() {
	os.MkdirAll("input", 0755)
	os.MkdirAll("output", 0755)

	defaults := config.DefaultParameters()

	inputPtr := flag.String("input", "", "Image, PDF or directory of images (default: newest image in input/)")
	qrPtr := flag.String("qr", "", "Animate a QR code of this text instead of an input file")
	outputPtr := flag.String("output", "", "Output file, or directory in batch mode (default: output/wiggling-<name>.gif)")
	framesPtr := flag.Int("frames", defaults.FrameCount, "Number of frames")
	intervalPtr := flag.Int("interval", defaults.FrameIntervalMs, "Frame interval in ms")
	intensityPtr := flag.Float64("intensity", defaults.WiggleIntensity, "Wiggle intensity")
	scalePtr := flag.Float64("scale", defaults.ImageScale, "Image scale inside the canvas, (0,1]")
	sizePtr := flag.Int("size", defaults.TargetMaxDimension, "Maximum canvas dimension in px")
	budgetPtr := flag.Int("budget", defaults.SizeBudgetBytes, "Output size ceiling in bytes")
	codecPtr := flag.String("codec", "auto", "Codec: auto, gif, apng, ffmpeg")
	kernelPtr := flag.String("kernel", "catmullrom", "Resampling kernel: catmullrom, bilinear, approx-bilinear, nearest")
	trimPtr := flag.String("trim", "", "Crop the source to its content first: auto, alpha, contrast")
	presetPtr := flag.String("preset", "", "Built-in preset ("+strings.Join(config.PresetNames(), ", ")+") or YAML file")
	savePresetPtr := flag.String("save-preset", "", "Write the effective parameters to this YAML file")
	workersPtr := flag.Int("workers", system.DefaultWorkers(), "Parallel images in batch mode")
	statsPtr := flag.Bool("stats", false, "Print performance report and append to benchmark.log")
	verbosePtr := flag.Bool("v", false, "Debug logging")
	interactivePtr := flag.Bool("interactive", false, "Read key=value, generate, cancel, quit from stdin")

	flag.Parse()

	cfg := &config.Config{
		InputPath:    *inputPtr,
		OutputPath:   *outputPtr,
		QRText:       *qrPtr,
		Codec:        *codecPtr,
		Kernel:       *kernelPtr,
		Trim:         *trimPtr,
		PresetName:   *presetPtr,
		SavePreset:   *savePresetPtr,
		Workers:      *workersPtr,
		Debounce:     controller.DefaultDebounce,
		Interactive:  *interactivePtr,
		ShowStats:    *statsPtr,
		Verbose:      *verbosePtr,
		BuildVersion: buildVersion,
		Params:       defaults,
	}

	// A preset supplies the base; explicitly passed flags override it.
	if cfg.PresetName != "" {
		preset, err := config.LoadPreset(cfg.PresetName)
		if err != nil {
			log.Fatalf("[-] Error loading preset: %v", err)
		}
		cfg.Params = preset.Params
		fmt.Printf("[*] Preset: %s\n", cfg.PresetName)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "frames":
			cfg.Params.FrameCount = *framesPtr
		case "interval":
			cfg.Params.FrameIntervalMs = *intervalPtr
		case "intensity":
			cfg.Params.WiggleIntensity = *intensityPtr
		case "scale":
			cfg.Params.ImageScale = *scalePtr
		case "size":
			cfg.Params.TargetMaxDimension = *sizePtr
		case "budget":
			cfg.Params.SizeBudgetBytes = *budgetPtr
		}
	})

	if err := cfg.Params.Validate(); err != nil {
		log.Fatalf("[-] Invalid parameters: %v", err)
	}

	if cfg.SavePreset != "" {
		preset := &config.Preset{Version: "1.0", Name: strings.TrimSuffix(filepath.Base(cfg.SavePreset), filepath.Ext(cfg.SavePreset)), Params: cfg.Params}
		if err := config.WritePreset(preset, cfg.SavePreset); err != nil {
			log.Fatalf("[-] Error saving preset: %v", err)
		}
		fmt.Printf("[*] Preset saved: %s\n", cfg.SavePreset)
	}

	logger := system.NewLogger(os.Stderr, cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("[-] %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	kernel, err := renderer.KernelByName(cfg.Kernel)
	if err != nil {
		return err
	}
	codec, err := video.NewCodec(cfg.Codec, logger)
	if err != nil {
		return err
	}

	builder := engine.NewBuilder(motion.NewRand(), kernel, logger)
	if cfg.Trim != "" {
		if builder.Trim, err = analyzer.NewDetector(cfg.Trim); err != nil {
			return err
		}
		builder.TrimMargin = 2
	}

	pipeline := engine.NewPipeline(builder, video.NewEncoder(codec, logger), logger)
	if cfg.ShowStats {
		pipeline.OnStats = func(s engine.Stats) {
			fmt.Print(s.Report(cfg.BuildVersion))
			fmt.Print(system.ResourceReport())
			if err := s.AppendBenchmark("benchmark.log", cfg.BuildVersion); err != nil {
				fmt.Printf("[!] Could not write benchmark.log: %v\n", err)
			}
		}
	}

	registry := source.NewRegistry()

	if cfg.QRText == "" {
		if cfg.InputPath == "" {
			latest, err := system.FindLatestImage("input", source.IsSupported)
			if err != nil {
				return fmt.Errorf("%w. Put an image into input/", err)
			}
			cfg.InputPath = latest
			fmt.Printf("[*] Selected file: %s\n", cfg.InputPath)
		}

		if fi, err := os.Stat(cfg.InputPath); err == nil && fi.IsDir() {
			return runBatch(ctx, cfg, pipeline, registry)
		}
	}

	var src *source.Image
	if cfg.QRText != "" {
		src, err = source.QRImage(cfg.QRText, 512)
	} else {
		src, err = registry.Load(cfg.InputPath)
	}
	if err != nil {
		return err
	}

	fmt.Println("--- [GIFWIGGLE] ---")
	fmt.Printf("[*] Source: %s | %dx%d\n", src.Name, src.Width(), src.Height())
	fmt.Printf("[*] Frames: %d @ %dms | Canvas: %dpx | Budget: %d bytes | Codec: %s\n",
		cfg.Params.FrameCount, cfg.Params.FrameIntervalMs, cfg.Params.TargetMaxDimension, cfg.Params.SizeBudgetBytes, codec.Format())
	fmt.Println("-------------------")

	ctrl := controller.New(pipeline, controller.Options{Debounce: cfg.Debounce, Logger: logger})
	defer ctrl.Close()

	output := cfg.OutputPath
	if output == "" {
		output = filepath.Join("output", engine.OutputName(src.Name, codec.Format()))
	}

	if cfg.Interactive {
		return runInteractive(ctx, ctrl, src, cfg.Params, output, os.Stdin)
	}
	return runOnce(ctx, ctrl, src, cfg.Params, output)
}

// runOnce requests one generation and writes the artifact when it is done
func runOnce(ctx context.Context, ctrl *controller.Controller, src *source.Image, params config.AnimationParameters, output string) error {
	start := time.Now()
	states, unsubscribe := ctrl.RequestGeneration(src, params)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			ctrl.CancelCurrent()
			return ctx.Err()
		case s, ok := <-states:
			if !ok {
				return fmt.Errorf("controller closed")
			}
			switch s.Kind {
			case controller.Running:
				fmt.Printf("[*] Rendering run %s...\n", s.RunID)
			case controller.Done:
				if err := os.WriteFile(output, s.Artifact.Data, 0644); err != nil {
					return err
				}
				fmt.Printf("[+++] Success! %s (%d bytes, %d colors, %.2fs)\n",
					output, s.Artifact.SizeBytes, s.Artifact.PaletteSize, time.Since(start).Seconds())
				return nil
			case controller.Failed:
				return s.Err
			}
		}
	}
}

func runBatch(ctx context.Context, cfg *config.Config, pipeline *engine.Pipeline, registry *source.Registry) error {
	inputs, err := source.ListImages(cfg.InputPath)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no images found in %s", cfg.InputPath)
	}

	outDir := cfg.OutputPath
	if outDir == "" {
		outDir = "output"
	}

	fmt.Printf("[*] Batch: %d images | Workers: %d\n", len(inputs), cfg.Workers)
	batch := &engine.Batch{Pipeline: pipeline, Loader: registry, Workers: cfg.Workers}
	results, err := batch.RunDir(ctx, inputs, outDir, cfg.Params)

	ready := 0
	for _, r := range results {
		if r.Err == nil && r.Output != "" {
			ready++
		} else if r.Err != nil {
			fmt.Printf("[!] %s: %v\n", filepath.Base(r.Input), r.Err)
		}
	}
	fmt.Printf("[+++] Done: %d/%d written to %s\n", ready, len(inputs), outDir)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%d of %d images failed", len(inputs)-ready, len(inputs))
	}
	return nil
}
