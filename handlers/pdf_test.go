package handlers

import (
	"archive/zip"
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akila/media-converter/converters"
)

func TestImagesToPDF(t *testing.T) {
	env := newTestEnv(t)
	img := pngBytes(t)
	req := multipartRequest(t, "/api/images-to-pdf",
		map[string]string{"page_size": "letter", "order": "name"},
		filePart{"files", "b.png", img},
		filePart{"files", "a.png", img},
	)

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.Equal(t, 2, got.Pages)
	assert.True(t, strings.HasPrefix(got.Filename, "images_"))
	assert.Equal(t, got.Filename, nameFromURL(t, got.URL))

	n, err := converters.PageCount(filepath.Join(env.cfg.OutputDir, got.Filename))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, listDir(t, env.cfg.UploadDir))
}

func TestImagesToPDF_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  []filePart
	}{
		{"no files", nil, nil},
		{"bad page size", map[string]string{"page_size": "B7"}, []filePart{{"files", "a.png", nil}}},
		{"bad order", map[string]string{"order": "random"}, []filePart{{"files", "a.png", nil}}},
		{"content mismatch", nil, []filePart{{"files", "a.png", nil}, {"files", "b.png", []byte("this is not an image")}}},
		{"wrong extension", nil, []filePart{{"files", "a.gif", []byte("GIF89a")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			for i := range tt.files {
				if tt.files[i].data == nil {
					tt.files[i].data = pngBytes(t)
				}
			}
			rec := env.do(multipartRequest(t, "/api/images-to-pdf", tt.fields, tt.files...))

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Empty(t, listDir(t, env.cfg.UploadDir))
			assert.Empty(t, listDir(t, env.cfg.OutputDir))
		})
	}
}

func TestPDFToImages(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/pdf-to-images",
		map[string]string{"pages": "1,3", "format": "jpg", "quality": "high"},
		filePart{"file", "deck.pdf", pdfBytes(t, 3)})

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.Equal(t, 2, got.Pages)
	assert.Empty(t, got.URL)
	assert.Equal(t, got.Filename, nameFromURL(t, got.ZipURL))

	zr, err := zip.OpenReader(filepath.Join(env.cfg.OutputDir, got.Filename))
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"page_001.jpg", "page_003.jpg"}, names)

	sort.Ints(env.tools.rendered)
	assert.Equal(t, []int{1, 3}, env.tools.rendered)
	assert.Empty(t, listDir(t, env.cfg.UploadDir))
}

func TestPDFToImages_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		fields map[string]string
	}{
		{"pages out of range", false, map[string]string{"pages": "9-12"}},
		{"bad quality", false, map[string]string{"quality": "ultra"}},
		{"bad format", false, map[string]string{"format": "bmp"}},
		{"strict malformed", true, map[string]string{"pages": "1-x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.cfg.PageRangeStrict = tt.strict
			rec := env.do(multipartRequest(t, "/api/pdf-to-images", tt.fields, filePart{"file", "a.pdf", pdfBytes(t, 2)}))

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Empty(t, env.tools.rendered)
			assert.Empty(t, listDir(t, env.cfg.UploadDir))
		})
	}
}

func TestPDFToImages_NotAPDF(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(multipartRequest(t, "/api/pdf-to-images", nil, filePart{"file", "a.pdf", []byte("%PDF-1.4\ngarbage")}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPDFToImages_RenderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.tools.renderErr = &converters.ToolError{Tool: "pdftoppm", Err: errors.New("exit status 99")}

	rec := env.do(multipartRequest(t, "/api/pdf-to-images", nil, filePart{"file", "a.pdf", pdfBytes(t, 2)}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec).Error, "pdftoppm failed")
	assert.Empty(t, listDir(t, env.cfg.OutputDir))
	assert.Empty(t, listDir(t, env.cfg.UploadDir))
}

func TestPDFToOffice(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(multipartRequest(t, "/api/pdf-to-office",
		map[string]string{"format": "odt"},
		filePart{"file", "report.pdf", pdfBytes(t, 1)}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode(t, rec)
	assert.True(t, strings.HasSuffix(got.Filename, ".odt"))
	assert.Equal(t, []string{got.Filename}, listDir(t, env.cfg.OutputDir))
	assert.True(t, strings.HasPrefix(filepath.Base(env.tools.officeInput), "upload_"))
	assert.Empty(t, listDir(t, env.cfg.UploadDir))
}

func TestPDFToOffice_PageSelection(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(multipartRequest(t, "/api/pdf-to-office",
		map[string]string{"pages": "2"},
		filePart{"file", "report.pdf", pdfBytes(t, 3)}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasSuffix(decode(t, rec).Filename, ".docx"))
	assert.True(t, strings.HasPrefix(filepath.Base(env.tools.officeInput), "trimmed_"))
	assert.Empty(t, listDir(t, env.cfg.UploadDir))
}

func TestPDFToOffice_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		fields map[string]string
		status int
	}{
		{"bad format", nil, map[string]string{"format": "pages"}, http.StatusBadRequest},
		{"tool failure", &converters.ToolError{Tool: "LibreOffice", Err: errors.New("exit status 1")}, nil, http.StatusInternalServerError},
		{"empty output", converters.ErrEmptyOutput, nil, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.tools.officeErr = tt.err
			rec := env.do(multipartRequest(t, "/api/pdf-to-office", tt.fields, filePart{"file", "a.pdf", pdfBytes(t, 1)}))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Empty(t, listDir(t, env.cfg.OutputDir))
			assert.Empty(t, listDir(t, env.cfg.UploadDir))
		})
	}
}
