package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akila/media-converter/config"
	"github.com/akila/media-converter/converters"
	"github.com/akila/media-converter/staging"
	"github.com/akila/media-converter/tts"
	"github.com/akila/media-converter/workers"
)

type fakeSynthesizer struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
	text  string
	opts  tts.Options
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string, opts tts.Options, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.text = text
	f.opts = opts
	if f.err != nil {
		w.Write([]byte("partial"))
		return f.err
	}
	_, err := w.Write(f.data)
	return err
}

type fakeTools struct {
	mu          sync.Mutex
	officeErr   error
	renderErr   error
	audioErr    error
	officeInput string
	audioOpts   converters.AudioOptions
	rendered    []int
}

func (f *fakeTools) PDFToOffice(_ context.Context, in, out, format string) error {
	f.mu.Lock()
	f.officeInput = in
	f.mu.Unlock()
	if f.officeErr != nil {
		return f.officeErr
	}
	return os.WriteFile(out, []byte("office:"+format), 0o644)
}

func (f *fakeTools) RenderPage(_ context.Context, _ string, page, _ int, format, prefix string) (string, error) {
	f.mu.Lock()
	f.rendered = append(f.rendered, page)
	f.mu.Unlock()
	if f.renderErr != nil {
		return "", f.renderErr
	}
	out := prefix + "." + format
	return out, os.WriteFile(out, []byte(fmt.Sprintf("page %d", page)), 0o644)
}

func (f *fakeTools) ExtractAudio(_ context.Context, _, out string, opts converters.AudioOptions) error {
	f.mu.Lock()
	f.audioOpts = opts
	f.mu.Unlock()
	if f.audioErr != nil {
		return f.audioErr
	}
	return os.WriteFile(out, []byte("audio"), 0o644)
}

type fakeRembg struct{ err error }

func (f *fakeRembg) Method() string { return "local" }
func (f *fakeRembg) Model() string  { return "u2net" }
func (f *fakeRembg) Remove(_ context.Context, _, out string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte("png"), 0o644)
}

type testEnv struct {
	cfg    *config.Config
	store  *staging.Store
	h      *ConversionHandler
	router http.Handler
	synth  *fakeSynthesizer
	tools  *fakeTools
	rembg  *fakeRembg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		UploadDir:             filepath.Join(dir, "uploads"),
		OutputDir:             filepath.Join(dir, "generated"),
		CleanupMaxAge:         time.Hour,
		MaxTextLength:         50,
		MaxDocumentTextLength: 200,
		MaxUploadBytes:        1 << 20,
		TTSTLD:                "com",
		MinAudioDuration:      300 * time.Millisecond,
		Workers:               2,
		CORSOrigins:           []string{"*"},
		RembgModel:            "u2net",
	}
	store, err := staging.New(cfg)
	require.NoError(t, err)

	mgr := workers.NewEngineManager(2)
	mgr.Start(context.Background())
	t.Cleanup(mgr.Wait)

	env := &testEnv{
		cfg:   cfg,
		store: store,
		synth: &fakeSynthesizer{data: []byte("mp3 audio")},
		tools: &fakeTools{},
		rembg: &fakeRembg{},
	}
	env.h = NewConversionHandler(cfg, store, mgr, env.tools, env.synth, env.rembg, nil)
	env.h.checkAudio = func(path string, min float64) (float64, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		if string(data) == "short" {
			return 0.1, fmt.Errorf("%w: 0.10s < %.2fs", tts.ErrTooShort, min)
		}
		return 1.5, nil
	}
	env.router = NewRouter(env.h, nil)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type envelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	ZipURL    string `json:"zip_url"`
	StreamURL string `json:"stream_url"`
	Method    string `json:"method"`
	Model     string `json:"model"`
	Pages     int    `json:"pages"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func jsonRequest(path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type filePart struct {
	field    string
	filename string
	data     []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 10), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pdfBytes builds a real PDF with the given number of pages.
func pdfBytes(t *testing.T, pages int) []byte {
	t.Helper()
	dir := t.TempDir()
	var images []string
	for i := 0; i < pages; i++ {
		p := filepath.Join(dir, fmt.Sprintf("img%d.png", i))
		require.NoError(t, os.WriteFile(p, pngBytes(t), 0o644))
		images = append(images, p)
	}
	out := filepath.Join(dir, "doc.pdf")
	require.NoError(t, converters.ImagesToPDF(images, out, "A4"))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return data
}

func nameFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return filepath.Base(u.Path)
}

func TestTextToAudio_JSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest("/api/convert", map[string]string{"text": "  Hello there  "}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.True(t, got.Success)
	assert.True(t, strings.HasPrefix(got.Filename, "tts_"))
	assert.True(t, strings.HasSuffix(got.Filename, ".mp3"))
	assert.Equal(t, "http://example.com/download/"+got.Filename, got.URL)
	assert.Equal(t, "http://example.com/stream/"+got.Filename, got.StreamURL)

	assert.Equal(t, []string{got.Filename}, listDir(t, env.cfg.OutputDir))
	assert.Equal(t, "Hello there", env.synth.text)
	assert.Equal(t, tts.Options{Lang: "en", TLD: "com"}, env.synth.opts)
}

func TestTextToAudio_ArtifactIsDeliverable(t *testing.T) {
	env := newTestEnv(t)
	got := decode(t, env.do(jsonRequest("/api/convert", map[string]string{"text": "Hello there"})))
	require.True(t, got.Success)

	fetch := func(raw string) *httptest.ResponseRecorder {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		rec := env.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return rec
	}
	download := fetch(got.URL)
	stream := fetch(got.StreamURL)

	assert.Equal(t, "audio/mpeg", download.Header().Get("Content-Type"))
	assert.Equal(t, download.Header().Get("Content-Type"), stream.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="`+got.Filename+`"`, download.Header().Get("Content-Disposition"))
	assert.Equal(t, `inline; filename="`+got.Filename+`"`, stream.Header().Get("Content-Disposition"))
	assert.Equal(t, "mp3 audio", download.Body.String())
	assert.Equal(t, download.Body.String(), stream.Body.String())
}

func TestTextToAudio_FormArabic(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"text": {"مرحبا بالعالم"}, "lang": {" ar "}, "tld": {"com.eg"}, "slow": {"true"}}
	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "مرحبا بالعالم", env.synth.text)
	assert.Equal(t, tts.Options{Lang: "ar", TLD: "com.eg", Slow: true}, env.synth.opts)
}

func TestTextToAudio_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]string
		status  int
		message string
	}{
		{"empty text", map[string]string{"text": "   "}, http.StatusBadRequest, "Text is required."},
		{"missing text", map[string]string{"lang": "en"}, http.StatusBadRequest, "Text is required."},
		{"too long", map[string]string{"text": strings.Repeat("ب", 51)}, http.StatusRequestEntityTooLarge, "Text exceeds maximum length of 50 characters."},
		{"unknown language", map[string]string{"text": "hi", "lang": "zz"}, http.StatusBadRequest, "Unsupported language: zz"},
		{"bad tld", map[string]string{"text": "hi", "tld": "evil.com/x"}, http.StatusBadRequest, "Invalid tld: evil.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(jsonRequest("/api/convert", tt.body))

			assert.Equal(t, tt.status, rec.Code)
			got := decode(t, rec)
			assert.False(t, got.Success)
			assert.Equal(t, tt.message, got.Error)
			assert.Zero(t, env.synth.calls)
			assert.Empty(t, listDir(t, env.cfg.OutputDir))
		})
	}
}

func TestTextToAudio_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTextToAudio_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxUploadBytes = 64
	env.router = NewRouter(env.h, nil)

	rec := env.do(jsonRequest("/api/convert", map[string]string{"text": strings.Repeat("a", 200)}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTextToAudio_SynthesisFailureLeavesNoArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.synth.err = &tts.SynthesisError{Status: http.StatusServiceUnavailable, Err: errors.New("unavailable")}

	rec := env.do(jsonRequest("/api/convert", map[string]string{"text": "hello"}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	got := decode(t, rec)
	assert.True(t, strings.HasPrefix(got.Error, "Failed to generate audio: "), got.Error)
	assert.Empty(t, listDir(t, env.cfg.OutputDir))
}

func TestTextToAudio_UnusableAudio(t *testing.T) {
	env := newTestEnv(t)
	env.synth.data = []byte("short")

	rec := env.do(jsonRequest("/api/convert", map[string]string{"text": "hello"}))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, decode(t, rec).Success)
	assert.Empty(t, listDir(t, env.cfg.OutputDir))
}

func TestTool_SweepsStaleFiles(t *testing.T) {
	env := newTestEnv(t)
	stale := filepath.Join(env.cfg.OutputDir, "tts_old.mp3")
	keep := filepath.Join(env.cfg.OutputDir, "notes.bin")
	for _, p := range []string{stale, keep} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		old := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(p, old, old))
	}

	rec := env.do(jsonRequest("/api/convert", map[string]string{"text": ""}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, keep)
}

func docxBytes(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body.String() + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocumentToAudio(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/document-to-audio",
		map[string]string{"lang": "fr", "speed": "slow"},
		filePart{"file", "lettre.docx", docxBytes(t, "Bonjour", "le monde")})

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.NotEmpty(t, got.StreamURL)
	assert.Equal(t, "Bonjour\nle monde", env.synth.text)
	assert.Equal(t, tts.Options{Lang: "fr", TLD: "com", Slow: true}, env.synth.opts)
	assert.Empty(t, listDir(t, env.cfg.UploadDir))
}

func TestDocumentToAudio_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		file   filePart
		status int
	}{
		{"no text", nil, filePart{"file", "empty.docx", docxBytes(t)}, http.StatusBadRequest},
		{"too much text", nil, filePart{"file", "long.docx", docxBytes(t, strings.Repeat("word ", 60))}, http.StatusRequestEntityTooLarge},
		{"wrong extension", nil, filePart{"file", "notes.txt", []byte("plain text")}, http.StatusBadRequest},
		{"bad speed", map[string]string{"speed": "fast"}, filePart{"file", "a.docx", docxBytes(t, "hi")}, http.StatusBadRequest},
		{"missing file", nil, filePart{"other", "a.docx", docxBytes(t, "hi")}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(multipartRequest(t, "/api/document-to-audio", tt.fields, tt.file))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Zero(t, env.synth.calls)
			assert.Empty(t, listDir(t, env.cfg.UploadDir))
			assert.Empty(t, listDir(t, env.cfg.OutputDir))
		})
	}
}
