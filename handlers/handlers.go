// Package handlers exposes the conversion tools over HTTP. Every tool follows
// the same contract: sweep stale files, validate input, run exactly one
// external capability on its engine pool, validate the artifact and answer
// with a JSON envelope pointing at the delivery routes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/akila/media-converter/archive"
	"github.com/akila/media-converter/config"
	"github.com/akila/media-converter/converters"
	"github.com/akila/media-converter/models"
	"github.com/akila/media-converter/staging"
	"github.com/akila/media-converter/tts"
	"github.com/akila/media-converter/workers"
)

// Toolset is the process-backed capability surface; *converters.Toolbox
// implements it.
type Toolset interface {
	PDFToOffice(ctx context.Context, inputPath, outputPath, format string) error
	RenderPage(ctx context.Context, pdfPath string, page, dpi int, format, outPrefix string) (string, error)
	ExtractAudio(ctx context.Context, inputPath, outputPath string, opts converters.AudioOptions) error
}

type ConversionHandler struct {
	Config        *config.Config
	Store         *staging.Store
	EngineManager *workers.EngineManager
	Tools         Toolset
	Speech        tts.Synthesizer
	Rembg         converters.BackgroundRemover
	Archive       archive.Mirror

	checkAudio func(path string, min float64) (float64, error)
}

func NewConversionHandler(
	cfg *config.Config,
	store *staging.Store,
	mgr *workers.EngineManager,
	tools Toolset,
	speech tts.Synthesizer,
	rembg converters.BackgroundRemover,
	mirror archive.Mirror,
) *ConversionHandler {
	if mirror == nil {
		mirror = archive.Noop{}
	}
	return &ConversionHandler{
		Config:        cfg,
		Store:         store,
		EngineManager: mgr,
		Tools:         tools,
		Speech:        speech,
		Rembg:         rembg,
		Archive:       mirror,
		checkAudio:    tts.CheckDuration,
	}
}

// toolFunc does the tool-specific part of a request. It returns the
// envelope to send and the artifact it produced.
type toolFunc func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error)

// tool wraps fn with the steps every tool shares.
func (h *ConversionHandler) tool(name string, fn toolFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := slog.With("reqId", requestID(r), "tool", name)
		h.Store.Sweep()

		env, out, err := fn(r, log)
		if err != nil {
			writeError(w, log, err)
			return
		}
		env.Success = true
		env.Filename = out.Name
		log.Info("conversion finished", "file", out.Name)
		archive.Background(h.Archive, out.Path, out.Name)
		writeJSON(w, http.StatusOK, env)
	}
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.New().String()
}

// run submits work to pool and waits for it, returning the artifact path.
func (h *ConversionHandler) run(r *http.Request, pool *workers.WorkerPool, from, to string, fn func(ctx context.Context) (string, error)) (string, error) {
	res, err := pool.Submit(r.Context(), models.Job{
		ID:         requestID(r),
		FromFormat: from,
		ToFormat:   to,
		Run:        fn,
	})
	if err != nil {
		return "", err
	}
	return res.Path, res.Error
}

// failed classifies a capability error. Output that exists but cannot be
// served is an upstream validation failure; anything else is a failed
// conversion whose cause is reported to the client.
func failed(action string, err error) error {
	var me *models.Error
	switch {
	case errors.As(err, &me):
		return me
	case errors.Is(err, converters.ErrEmptyOutput):
		return models.Unusable(action+": the converter produced no output", err)
	case errors.Is(err, tts.ErrTooShort), errors.Is(err, tts.ErrUndecodable):
		return models.Unusable(action+": the generated audio is unusable", err)
	default:
		return models.ConversionFailed(action, err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var me *models.Error
	if !errors.As(err, &me) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			me = models.TooLarge("Upload exceeds maximum size of %d MB", maxErr.Limit>>20)
		} else {
			me = &models.Error{Kind: models.KindConversion, Message: "Internal server error", Err: err}
		}
	}

	status := me.Status()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "kind", me.Kind.String(), "error", err)
	} else {
		log.Info("request rejected", "status", status, "kind", me.Kind.String(), "error", me.Message)
	}
	writeJSON(w, status, models.Envelope{Error: me.Message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

// baseURL is the scheme and host the client used to reach us.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "https" || p == "http" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func downloadURL(r *http.Request, name string) string { return baseURL(r) + "/download/" + name }
func streamURL(r *http.Request, name string) string   { return baseURL(r) + "/stream/" + name }

// parseMultipart reads a multipart body, translating an oversized body into
// a 413.
func (h *ConversionHandler) parseMultipart(r *http.Request) error {
	if r.MultipartForm != nil {
		return nil
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return models.TooLarge("Upload exceeds maximum size of %d MB", h.Config.MaxUploadBytes>>20)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return models.ClientInput("Expected a multipart/form-data upload")
		}
		return models.ClientInput("Invalid upload: %v", err)
	}
	return nil
}

func formFiles(r *http.Request, fields ...string) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, f := range fields {
		out = append(out, r.MultipartForm.File[f]...)
	}
	return out
}

// saveUpload stores the first file of field and checks it against allowed
// extensions and its sniffed content.
func (h *ConversionHandler) saveUpload(r *http.Request, field string, allowed ...string) (models.StagedFile, error) {
	if err := h.parseMultipart(r); err != nil {
		return models.StagedFile{}, err
	}
	files := formFiles(r, field)
	if len(files) == 0 {
		return models.StagedFile{}, models.ClientInput("No file uploaded")
	}
	return h.stage(files[0], allowed...)
}

func (h *ConversionHandler) stage(fh *multipart.FileHeader, allowed ...string) (models.StagedFile, error) {
	sf, err := h.Store.SaveUpload(fh, "upload")
	if err != nil {
		return models.StagedFile{}, err
	}
	if err := staging.CheckUpload(sf, allowed...); err != nil {
		h.Store.Remove(sf.Path)
		return models.StagedFile{}, err
	}
	return sf, nil
}
