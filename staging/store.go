// Package staging owns the two local directories that hold uploaded inputs
// and generated artifacts, and the age-based sweep that empties them.
package staging

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akila/media-converter/config"
	"github.com/akila/media-converter/models"
)

// sweepable lists the extensions the sweep is allowed to delete. Anything
// else found in the staging directories is left for an operator.
var sweepable = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".aac": true, ".m4a": true, ".flac": true,
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".tif": true, ".tiff": true,
	".zip": true, ".docx": true, ".odt": true, ".rtf": true, ".txt": true,
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".webm": true, ".flv": true, ".m4v": true,
}

// Store is safe for concurrent use: callers only create fresh names and
// touch files by exact name.
type Store struct {
	UploadDir string
	OutputDir string
	MaxAge    time.Duration

	now func() time.Time
}

// New creates both directories if needed and returns a Store rooted at their
// absolute paths.
func New(cfg *config.Config) (*Store, error) {
	up, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	out, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	for _, dir := range []string{up, out} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
		}
	}
	return &Store{
		UploadDir: up,
		OutputDir: out,
		MaxAge:    cfg.CleanupMaxAge,
		now:       time.Now,
	}, nil
}

// Sweep deletes recognised files older than MaxAge from both directories
// and returns how many it removed. It never fails: per-entry errors are
// skipped and a panic inside the scan is recovered.
func (s *Store) Sweep() (removed int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("staging sweep recovered", "panic", r)
		}
	}()
	now := s.now()
	for _, dir := range []string{s.UploadDir, s.OutputDir} {
		removed += s.sweepDir(dir, now)
	}
	if removed > 0 {
		slog.Debug("staging sweep", "removed", removed)
	}
	return removed
}

func (s *Store) sweepDir(dir string, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Debug("staging sweep: cannot list dir", "dir", dir, "error", err)
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !sweepable[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.MaxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			continue
		}
		n++
	}
	return n
}

// OutputPath returns a fresh path in the output directory.
func (s *Store) OutputPath(prefix, ext string) models.StagedFile {
	name := NewName(prefix, ext)
	return models.StagedFile{
		Name: name,
		Path: filepath.Join(s.OutputDir, name),
		Ext:  ext,
	}
}

// UploadPath returns a fresh path in the upload directory.
func (s *Store) UploadPath(prefix, ext string) models.StagedFile {
	name := NewName(prefix, ext)
	return models.StagedFile{
		Name: name,
		Path: filepath.Join(s.UploadDir, name),
		Ext:  ext,
	}
}

// SaveUpload copies an uploaded part into the upload directory under a
// generated name, keeping only the lower-cased extension of the client's
// filename.
func (s *Store) SaveUpload(fh *multipart.FileHeader, prefix string) (models.StagedFile, error) {
	ext := strings.ToLower(filepath.Ext(SanitizeName(fh.Filename)))
	dst := s.UploadPath(prefix, ext)

	src, err := fh.Open()
	if err != nil {
		return models.StagedFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	f, err := os.OpenFile(dst.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return models.StagedFile{}, fmt.Errorf("create %s: %w", dst.Name, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dst.Path)
		return models.StagedFile{}, fmt.Errorf("write %s: %w", dst.Name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst.Path)
		return models.StagedFile{}, fmt.Errorf("close %s: %w", dst.Name, err)
	}
	dst.ModTime = s.now()
	return dst, nil
}

// Remove deletes the given paths, ignoring any error.
func (s *Store) Remove(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Debug("staging remove failed", "path", p, "error", err)
		}
	}
}
