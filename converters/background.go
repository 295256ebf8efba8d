package converters

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/akila/media-converter/config"
)

// BackgroundRemover cuts the subject out of an image and writes a PNG with
// a transparent background.
type BackgroundRemover interface {
	// Method names the backend for the response envelope.
	Method() string
	Model() string
	Remove(ctx context.Context, inputPath, outputPath string) error
}

// NewBackgroundRemover builds the remover selected by cfg.RembgBackend.
func NewBackgroundRemover(cfg *config.Config, tb *Toolbox) (BackgroundRemover, error) {
	switch cfg.RembgBackend {
	case config.BackendLocal:
		return &localRembg{tb: tb, model: cfg.RembgModel}, nil
	case config.BackendContainer:
		return &containerRembg{tb: tb, model: cfg.RembgModel, image: cfg.RembgImage}, nil
	default:
		return nil, fmt.Errorf("unknown rembg backend %q", cfg.RembgBackend)
	}
}

type localRembg struct {
	tb    *Toolbox
	model string
}

func (r *localRembg) Method() string { return config.BackendLocal }
func (r *localRembg) Model() string  { return r.model }

func (r *localRembg) Remove(ctx context.Context, inputPath, outputPath string) error {
	if err := r.tb.run(ctx, "rembg", r.tb.RembgPath, "i", "-m", r.model, inputPath, outputPath); err != nil {
		return err
	}
	return nonEmpty(outputPath)
}

const (
	binDocker = "docker"
	binPodman = "podman"
)

// containerRembg runs the rembg image under docker, falling back to podman.
// The runtime is detected on first use.
type containerRembg struct {
	tb    *Toolbox
	model string
	image string

	once    sync.Once
	runtime string
	err     error
}

func (r *containerRembg) Method() string { return config.BackendContainer }
func (r *containerRembg) Model() string  { return r.model }

func (r *containerRembg) detect(ctx context.Context) (string, error) {
	r.once.Do(func() {
		for _, bin := range []string{binDocker, binPodman} {
			if _, err := r.tb.exec.LookPath(bin); err != nil {
				continue
			}
			if _, err := r.tb.exec.Run(ctx, bin, "info"); err == nil {
				r.runtime = bin
				return
			}
		}
		r.err = fmt.Errorf("no container runtime available: neither %s nor %s found or operational", binDocker, binPodman)
	})
	return r.runtime, r.err
}

func (r *containerRembg) Remove(ctx context.Context, inputPath, outputPath string) error {
	bin, err := r.detect(ctx)
	if err != nil {
		return &ToolError{Tool: "rembg", Err: err}
	}
	inDir, err := filepath.Abs(filepath.Dir(inputPath))
	if err != nil {
		return err
	}
	outDir, err := filepath.Abs(filepath.Dir(outputPath))
	if err != nil {
		return err
	}
	args := []string{
		"run", "--rm",
		"-v", inDir + ":/in:ro",
		"-v", outDir + ":/out",
		r.image,
		"i", "-m", r.model,
		"/in/" + filepath.Base(inputPath),
		"/out/" + filepath.Base(outputPath),
	}
	if err := r.tb.run(ctx, "rembg", bin, args...); err != nil {
		return err
	}
	return nonEmpty(outputPath)
}
