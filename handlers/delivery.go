package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/akila/media-converter/models"
)

// contentTypes is the static MIME table for delivered artifacts.
var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".png":  "image/png",
}

func contentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// HandleDownload serves an artifact as an attachment.
func (h *ConversionHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	h.deliver(w, r, "attachment")
}

// HandleStream serves an artifact inline so browsers can play it.
func (h *ConversionHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	h.deliver(w, r, "inline")
}

func (h *ConversionHandler) deliver(w http.ResponseWriter, r *http.Request, disposition string) {
	log := slog.With("reqId", requestID(r), "tool", "delivery")

	name, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, log, models.ClientInput("Invalid filename"))
		return
	}
	path, err := h.Store.Resolve(name)
	if err != nil {
		writeError(w, log, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		// Swept between Resolve and Open.
		writeError(w, log, models.NotFound("Not found"))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, log, err)
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", disposition+`; filename="`+name+`"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
