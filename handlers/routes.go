package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akila/media-converter/models"
	"github.com/akila/media-converter/shield"
)

// Tools lists the conversion routes advertised by the index.
var Tools = []string{
	"/api/convert",
	"/api/images-to-pdf",
	"/api/pdf-to-images",
	"/api/pdf-to-office",
	"/api/document-to-audio",
	"/api/video-to-audio",
	"/api/remove-background",
}

// NewRouter wires every route and the shared middleware. limiter may be nil.
func NewRouter(h *ConversionHandler, limiter *shield.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(shield.RequestLogger)
	r.Use(shield.Recoverer)
	r.Use(shield.SecurityHeaders)
	r.Use(shield.CORS(h.Config.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.Envelope{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, models.Envelope{Error: "Method not allowed"})
	})

	r.Get("/", h.HandleIndex)
	r.Get("/health", HandleHealth)
	// Wildcards so slashed names reach the filename policy and get a 400.
	r.Get("/download/*", h.HandleDownload)
	r.Head("/download/*", h.HandleDownload)
	r.Get("/stream/*", h.HandleStream)
	r.Head("/stream/*", h.HandleStream)

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Use(shield.MaxBody(h.Config.MaxUploadBytes))

		r.Post("/convert", h.HandleTextToAudio())
		r.Post("/images-to-pdf", h.HandleImagesToPDF())
		r.Post("/pdf-to-images", h.HandlePDFToImages())
		r.Post("/pdf-to-office", h.HandlePDFToOffice())
		r.Post("/document-to-audio", h.HandleDocumentToAudio())
		r.Post("/video-to-audio", h.HandleVideoToAudio())
		r.Post("/remove-background", h.HandleRemoveBackground())
	})
	return r
}

// HandleIndex describes the service. Like every tool it sweeps stale files.
func (h *ConversionHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.Store.Sweep()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"service": "media-converter",
		"tools":   Tools,
	})
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ts":     time.Now().UTC().Format(time.RFC3339),
	})
}
