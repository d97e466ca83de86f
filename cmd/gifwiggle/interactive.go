package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ivlev/gifwiggle/internal/config"
	"github.com/ivlev/gifwiggle/internal/controller"
	"github.com/ivlev/gifwiggle/internal/source"
)

const interactiveHelp = `Commands:
  key=value   change a parameter (frames, interval, intensity, scale, size, budget)
  preset NAME load a built-in preset or YAML file
  generate    render now with the current parameters
  cancel      stop the current run
  status      show the controller state
  quit        exit`

// runInteractive drives the controller from text commands. Parameter
// changes are debounced; every finished animation overwrites output.
func runInteractive(ctx context.Context, ctrl *controller.Controller, src *source.Image, params config.AnimationParameters, output string, in io.Reader) error {
	fmt.Println(interactiveHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	states, unsubscribe := ctrl.RequestGeneration(src, params)
	defer unsubscribe()

	eof := false
	var lastSeen uint64
	for {
		select {
		case <-ctx.Done():
			ctrl.CancelCurrent()
			return nil

		case s, ok := <-states:
			if !ok {
				return nil
			}
			reportState(s, output)
			lastSeen = s.Seq
			if eof && settled(s) && s.Seq >= ctrl.Current().Seq {
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				// Input ended: let an in-flight run finish and be written first.
				eof = true
				lines = nil
				if cur := ctrl.Current(); settled(cur) && lastSeen >= cur.Seq {
					return nil
				}
				continue
			}
			if quit := handleCommand(ctrl, strings.TrimSpace(line)); quit {
				ctrl.CancelCurrent()
				return nil
			}
		}
	}
}

func settled(s controller.State) bool {
	return s.Kind != controller.Pending && s.Kind != controller.Running
}

func handleCommand(ctrl *controller.Controller, line string) bool {
	switch {
	case line == "":
	case line == "quit" || line == "exit":
		return true
	case line == "help":
		fmt.Println(interactiveHelp)
	case line == "generate":
		ctrl.Generate(ctrl.Params())
	case line == "cancel":
		ctrl.CancelCurrent()
	case line == "status":
		s := ctrl.Current()
		p := ctrl.Params()
		fmt.Printf("[*] State: %s | frames=%d interval=%d intensity=%.2f scale=%.2f size=%d budget=%d\n",
			s.Kind, p.FrameCount, p.FrameIntervalMs, p.WiggleIntensity, p.ImageScale, p.TargetMaxDimension, p.SizeBudgetBytes)
	case strings.HasPrefix(line, "preset "):
		preset, err := config.LoadPreset(strings.TrimSpace(strings.TrimPrefix(line, "preset ")))
		if err != nil {
			fmt.Printf("[!] %v\n", err)
			return false
		}
		ctrl.UpdateParameters(preset.Params)
	case strings.Contains(line, "="):
		key, value, _ := strings.Cut(line, "=")
		p := ctrl.Params()
		if err := config.ApplySetting(&p, key, value); err != nil {
			fmt.Printf("[!] %v\n", err)
			return false
		}
		if err := p.Validate(); err != nil {
			fmt.Printf("[!] %v\n", err)
			return false
		}
		ctrl.UpdateParameters(p)
	default:
		fmt.Printf("[!] Unknown command %q (try help)\n", line)
	}
	return false
}

func reportState(s controller.State, output string) {
	switch s.Kind {
	case controller.Pending:
		fmt.Println("[*] Pending...")
	case controller.Running:
		fmt.Printf("[*] Rendering %d frames...\n", s.Params.FrameCount)
	case controller.Done:
		if err := os.WriteFile(output, s.Artifact.Data, 0644); err != nil {
			fmt.Printf("[!] Could not write %s: %v\n", output, err)
			return
		}
		fmt.Printf("[+++] %s (%d bytes, %d colors)\n", output, s.Artifact.SizeBytes, s.Artifact.PaletteSize)
	case controller.Failed:
		fmt.Printf("[!] Failed: %v\n", s.Err)
	}
}
