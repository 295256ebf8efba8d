// Package archive mirrors finished artifacts to Google Cloud Storage. Local
// staging stays the only source for delivery; the mirror is a copy for
// later inspection and never fails a request.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/akila/media-converter/config"
)

// Mirror copies a local artifact to long-term storage under name.
type Mirror interface {
	Mirror(ctx context.Context, localPath, name string) error
	Close() error
}

// New returns a GCS mirror when cfg.ArchiveBucket is set and a no-op
// mirror otherwise.
func New(ctx context.Context, cfg *config.Config) (Mirror, error) {
	if cfg.ArchiveBucket == "" {
		return Noop{}, nil
	}
	return NewGCS(ctx, cfg.ArchiveBucket)
}

// Noop discards every artifact.
type Noop struct{}

func (Noop) Mirror(context.Context, string, string) error { return nil }
func (Noop) Close() error                                 { return nil }

// GCS writes artifacts to gs://<bucket>/<yyyy>/<mm>/<dd>/<name>.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	now    func() time.Time
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), name: bucket, now: time.Now}, nil
}

// ObjectName is the date-partitioned object key for an artifact.
func ObjectName(t time.Time, name string) string {
	return path.Join(t.UTC().Format("2006/01/02"), name)
}

func (g *GCS) Mirror(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	object := ObjectName(g.now(), name)
	w := g.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			slog.Debug("archive object already exists", "object", object)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	slog.Info("artifact archived", "bucket", g.name, "object", object)
	return nil
}

func (g *GCS) Close() error { return g.client.Close() }

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

const mirrorTimeout = 2 * time.Minute

// inflight tracks Background uploads so shutdown can finish them before the
// client is closed.
var inflight sync.WaitGroup

// Background mirrors an artifact without blocking the caller. Failures are
// logged.
func Background(m Mirror, localPath, name string) {
	if _, ok := m.(Noop); ok || m == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := m.Mirror(ctx, localPath, name); err != nil {
			slog.Warn("artifact mirroring failed", "file", name, "error", err)
		}
	}()
}

// Wait blocks until every Background upload has finished. Call it before
// closing the Mirror.
func Wait() {
	inflight.Wait()
}
