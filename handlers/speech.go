package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/akila/media-converter/converters"
	"github.com/akila/media-converter/models"
	"github.com/akila/media-converter/tts"
)

// HandleTextToAudio synthesises speech from JSON or form text.
func (h *ConversionHandler) HandleTextToAudio() http.HandlerFunc {
	return h.tool("text-to-audio", func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error) {
		req, err := h.readSpeechRequest(r)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}

		text := strings.TrimSpace(req.Text)
		if text == "" {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Text is required.")
		}
		if utf8.RuneCountInString(text) > h.Config.MaxTextLength {
			return models.Envelope{}, models.StagedFile{}, models.TooLarge("Text exceeds maximum length of %d characters.", h.Config.MaxTextLength)
		}
		opts, err := h.speechOptions(req.Lang, req.TLD, req.Slow)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}

		out, err := h.synthesize(r, log, text, opts)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		return models.Envelope{
			URL:       downloadURL(r, out.Name),
			StreamURL: streamURL(r, out.Name),
		}, out, nil
	})
}

// HandleDocumentToAudio reads a .docx or .pdf aloud.
func (h *ConversionHandler) HandleDocumentToAudio() http.HandlerFunc {
	return h.tool("document-to-audio", func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error) {
		in, err := h.saveUpload(r, "file", ".docx", ".pdf")
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		defer h.Store.Remove(in.Path)

		slow := false
		switch speed := strings.ToLower(strings.TrimSpace(r.FormValue("speed"))); speed {
		case "", "normal":
		case "slow":
			slow = true
		default:
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Unsupported speed %q (use normal or slow)", speed)
		}
		opts, err := h.speechOptions(r.FormValue("lang"), r.FormValue("tld"), slow)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}

		var text string
		_, err = h.run(r, h.EngineManager.PDFPool, strings.TrimPrefix(in.Ext, "."), "txt", func(context.Context) (string, error) {
			t, err := converters.ExtractText(in.Path)
			text = t
			return "", err
		})
		switch {
		case errors.Is(err, converters.ErrNoText):
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("The document contains no readable text.")
		case err != nil:
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Could not read the document: %v", err)
		}
		if n := utf8.RuneCountInString(text); n > h.Config.MaxDocumentTextLength {
			return models.Envelope{}, models.StagedFile{}, models.TooLarge("Document text exceeds maximum length of %d characters.", h.Config.MaxDocumentTextLength)
		}
		log.Info("document text extracted", "chars", utf8.RuneCountInString(text))

		out, err := h.synthesize(r, log, text, opts)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		return models.Envelope{
			URL:       downloadURL(r, out.Name),
			StreamURL: streamURL(r, out.Name),
		}, out, nil
	})
}

// readSpeechRequest accepts a JSON body or form fields.
func (h *ConversionHandler) readSpeechRequest(r *http.Request) (models.TextToSpeechRequest, error) {
	var req models.TextToSpeechRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return req, models.TooLarge("Request body too large")
			}
			return req, models.ClientInput("Invalid JSON body")
		}
		return req, nil
	}

	if ct == "multipart/form-data" {
		if err := h.parseMultipart(r); err != nil {
			return req, err
		}
	} else if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, models.TooLarge("Request body too large")
		}
		return req, models.ClientInput("Invalid form body")
	}
	req.Text = r.FormValue("text")
	req.Lang = r.FormValue("lang")
	req.TLD = r.FormValue("tld")
	req.Slow, _ = strconv.ParseBool(r.FormValue("slow"))
	return req, nil
}

func (h *ConversionHandler) speechOptions(lang, tld string, slow bool) (tts.Options, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "en"
	}
	code, err := tts.ResolveLanguage(lang)
	if err != nil {
		return tts.Options{}, models.ClientInput("Unsupported language: %s", lang)
	}

	tld = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tld)), ".")
	if tld == "" {
		tld = h.Config.TTSTLD
	}
	if !tts.ValidTLD(tld) {
		return tts.Options{}, models.ClientInput("Invalid tld: %s", tld)
	}
	return tts.Options{Lang: code, TLD: tld, Slow: slow}, nil
}

// synthesize writes speech for text to a new MP3 in the output directory
// and checks that it decodes to a usable length. On any failure the partial
// file is removed.
func (h *ConversionHandler) synthesize(r *http.Request, log *slog.Logger, text string, opts tts.Options) (models.StagedFile, error) {
	out := h.Store.OutputPath("tts", ".mp3")

	_, err := h.run(r, h.EngineManager.SpeechPool, "text", "mp3", func(ctx context.Context) (string, error) {
		f, err := os.Create(out.Path)
		if err != nil {
			return "", err
		}
		if err := h.Speech.Synthesize(ctx, text, opts, f); err != nil {
			f.Close()
			return "", err
		}
		return out.Path, f.Close()
	})
	if err != nil {
		h.Store.Remove(out.Path)
		return models.StagedFile{}, models.ConversionFailed("Failed to generate audio", err)
	}

	secs, err := h.checkAudio(out.Path, h.Config.MinAudioDuration.Seconds())
	if err != nil {
		h.Store.Remove(out.Path)
		return models.StagedFile{}, failed("Failed to generate audio", err)
	}
	log.Info("speech generated", "lang", opts.Lang, "seconds", secs)
	return out, nil
}
