// Package converters wraps the external engines the service delegates to:
// LibreOffice, Poppler, ffmpeg, rembg and pdfcpu. Each entry point does one
// conversion and reports failures as *ToolError or ErrEmptyOutput.
package converters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/akila/media-converter/config"
)

// ErrEmptyOutput means the tool exited cleanly but left nothing usable.
var ErrEmptyOutput = errors.New("conversion produced no output")

// ToolError is returned when an external program fails.
type ToolError struct {
	Tool   string
	Err    error
	Output string
}

func (e *ToolError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 500 {
		out = out[len(out)-500:]
	}
	if out == "" {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed: %v, output: %s", e.Tool, e.Err, out)
}

func (e *ToolError) Unwrap() error { return e.Err }

// executor abstracts process execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) { return exec.LookPath(file) }

func (osExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Toolbox holds the resolved binaries for every external engine.
type Toolbox struct {
	SofficePath  string
	PdftoppmPath string
	FFmpegPath   string
	RembgPath    string

	exec executor
}

// NewToolbox resolves binary locations, preferring explicit configuration.
// Missing binaries are not an error here; the call that needs one fails.
func NewToolbox(cfg *config.Config) *Toolbox {
	return newToolbox(cfg, osExecutor{})
}

func newToolbox(cfg *config.Config, ex executor) *Toolbox {
	return &Toolbox{
		SofficePath:  firstAvailable(ex, cfg.SofficePath, "/opt/homebrew/bin/soffice", "/Applications/LibreOffice.app/Contents/MacOS/soffice", "/usr/bin/libreoffice", "/usr/bin/soffice", "soffice"),
		PdftoppmPath: firstAvailable(ex, cfg.PdftoppmPath, "pdftoppm"),
		FFmpegPath:   firstAvailable(ex, cfg.FFmpegPath, "ffmpeg"),
		RembgPath:    firstAvailable(ex, cfg.RembgPath, "rembg"),
		exec:         ex,
	}
}

// firstAvailable returns the first candidate that exists, either as an
// absolute path or on PATH. The last candidate is the fallback.
func firstAvailable(ex executor, candidates ...string) string {
	var last string
	for _, c := range candidates {
		if c == "" {
			continue
		}
		last = c
		if filepath.IsAbs(c) {
			if _, err := os.Stat(c); err == nil {
				return c
			}
			continue
		}
		if p, err := ex.LookPath(c); err == nil {
			return p
		}
	}
	return last
}

func (t *Toolbox) run(ctx context.Context, tool, bin string, args ...string) error {
	slog.Debug("executing", "tool", tool, "bin", bin, "args", args)
	out, err := t.exec.Run(ctx, bin, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &ToolError{Tool: tool, Err: err, Output: string(out)}
	}
	return nil
}

// officeFilters maps target formats to LibreOffice export filters.
var officeFilters = map[string]string{
	"docx": "docx:MS Word 2007 XML",
	"odt":  "odt:writer8",
	"rtf":  "rtf:Rich Text Format",
}

// OfficeFormats lists the targets PDFToOffice accepts.
func OfficeFormats() []string { return []string{"docx", "odt", "rtf"} }

// PDFToOffice converts a PDF into an editable document with LibreOffice.
// soffice names its output after the input, so it writes into a private
// directory and the result is moved to outputPath.
func (t *Toolbox) PDFToOffice(ctx context.Context, inputPath, outputPath, format string) error {
	filter, ok := officeFilters[format]
	if !ok {
		return fmt.Errorf("unsupported office format %q", format)
	}

	workDir, err := os.MkdirTemp("", "soffice-*")
	if err != nil {
		return fmt.Errorf("create soffice work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	absInput, err := filepath.Abs(inputPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for input: %w", err)
	}

	// A private profile avoids lock contention between concurrent instances.
	userInstallDir := filepath.Join(workDir, "soffice_user")
	args := []string{
		"-env:UserInstallation=file://" + userInstallDir,
		"--headless",
		"--infilter=writer_pdf_import",
		"--convert-to", filter,
		"--outdir", workDir,
		absInput,
	}
	if err := t.run(ctx, "LibreOffice", t.SofficePath, args...); err != nil {
		return err
	}

	matches, _ := filepath.Glob(filepath.Join(workDir, "*."+format))
	if len(matches) == 0 {
		return fmt.Errorf("LibreOffice: %w (no .%s file in %s)", ErrEmptyOutput, format, workDir)
	}
	return moveFile(matches[0], outputPath)
}

// imageFormats maps rasterisation formats to pdftoppm flags and extensions.
var imageFormats = map[string]struct{ flag, ext string }{
	"png": {"-png", ".png"},
	"jpg": {"-jpeg", ".jpg"},
}

// RenderPage rasterises one 1-based page of a PDF with pdftoppm and returns
// the written image path (outPrefix plus the format's extension).
func (t *Toolbox) RenderPage(ctx context.Context, pdfPath string, page, dpi int, format, outPrefix string) (string, error) {
	f, ok := imageFormats[format]
	if !ok {
		return "", fmt.Errorf("unsupported image format: %s", format)
	}
	p := fmt.Sprint(page)
	args := []string{
		f.flag,
		"-r", fmt.Sprint(dpi),
		"-f", p, "-l", p,
		"-singlefile",
		pdfPath,
		outPrefix,
	}
	if err := t.run(ctx, "pdftoppm", t.PdftoppmPath, args...); err != nil {
		return "", err
	}
	out := outPrefix + f.ext
	if err := nonEmpty(out); err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %w", page, err)
	}
	return out, nil
}

// nonEmpty fails with ErrEmptyOutput when path is missing or zero bytes.
func nonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return ErrEmptyOutput
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
