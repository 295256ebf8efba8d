package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/akila/media-converter/converters"
	"github.com/akila/media-converter/models"
)

var videoUploads = []string{".mp4", ".mov", ".mkv", ".avi", ".webm", ".flv", ".m4v"}

const defaultBitrate = "192k"

// HandleVideoToAudio extracts the audio track of a video, optionally
// trimmed to a start/end window.
func (h *ConversionHandler) HandleVideoToAudio() http.HandlerFunc {
	return h.tool("video-to-audio", func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error) {
		in, err := h.saveUpload(r, "file", videoUploads...)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		defer h.Store.Remove(in.Path)

		opts := converters.AudioOptions{
			Format:  strings.ToLower(strings.TrimSpace(r.FormValue("format"))),
			Bitrate: strings.ToLower(strings.TrimSpace(r.FormValue("bitrate"))),
		}
		if opts.Format == "" {
			opts.Format = "mp3"
		}
		if opts.Bitrate == "" {
			opts.Bitrate = defaultBitrate
		}
		if opts.Start, err = converters.ParseTimestamp(r.FormValue("start")); err != nil {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Invalid start: %v", err)
		}
		if opts.End, err = converters.ParseTimestamp(r.FormValue("end")); err != nil {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Invalid end: %v", err)
		}
		if err := opts.Validate(); err != nil {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("%v", err)
		}

		out := h.Store.OutputPath("audio", converters.AudioFormats[opts.Format].Ext)
		_, err = h.run(r, h.EngineManager.MediaPool, strings.TrimPrefix(in.Ext, "."), opts.Format, func(ctx context.Context) (string, error) {
			return out.Path, h.Tools.ExtractAudio(ctx, in.Path, out.Path, opts)
		})
		if err != nil {
			h.Store.Remove(out.Path)
			return models.Envelope{}, models.StagedFile{}, failed("Failed to extract audio", err)
		}
		log.Info("audio extracted", "format", opts.Format, "bitrate", opts.Bitrate)
		return models.Envelope{
			URL:       downloadURL(r, out.Name),
			StreamURL: streamURL(r, out.Name),
		}, out, nil
	})
}

// HandleRemoveBackground cuts the subject out of an image into a
// transparent PNG.
func (h *ConversionHandler) HandleRemoveBackground() http.HandlerFunc {
	return h.tool("remove-background", func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error) {
		in, err := h.saveUpload(r, "file", ".png", ".jpg", ".jpeg", ".webp")
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		defer h.Store.Remove(in.Path)

		out := h.Store.OutputPath("nobg", ".png")
		_, err = h.run(r, h.EngineManager.InferencePool, strings.TrimPrefix(in.Ext, "."), "png", func(ctx context.Context) (string, error) {
			return out.Path, h.Rembg.Remove(ctx, in.Path, out.Path)
		})
		if err != nil {
			h.Store.Remove(out.Path)
			return models.Envelope{}, models.StagedFile{}, failed("Failed to remove background", err)
		}
		log.Info("background removed", "method", h.Rembg.Method(), "model", h.Rembg.Model())
		return models.Envelope{
			URL:    downloadURL(r, out.Name),
			Method: h.Rembg.Method(),
			Model:  h.Rembg.Model(),
		}, out, nil
	})
}
