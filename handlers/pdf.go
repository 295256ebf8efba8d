package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/akila/media-converter/converters"
	"github.com/akila/media-converter/models"
	"github.com/akila/media-converter/pagerange"
	"github.com/akila/media-converter/utils"
)

var imageUploads = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".webp"}

// qualityDPI maps the quality option of pdf-to-images to a render density.
var qualityDPI = map[string]int{
	"low":    72,
	"medium": 150,
	"high":   300,
}

// HandleImagesToPDF merges uploaded images into one PDF, a page per image.
func (h *ConversionHandler) HandleImagesToPDF() http.HandlerFunc {
	return h.tool("images-to-pdf", func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error) {
		if err := h.parseMultipart(r); err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		files := formFiles(r, "files", "files[]")
		if len(files) == 0 {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("No images uploaded")
		}

		pageSize := strings.TrimSpace(r.FormValue("page_size"))
		if pageSize == "" {
			pageSize = "A4"
		}
		if _, ok := converters.PageSizes[strings.ToLower(pageSize)]; !ok {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Unsupported page size %q", pageSize)
		}
		switch order := strings.ToLower(r.FormValue("order")); order {
		case "", "upload":
		case "name":
			sort.SliceStable(files, func(i, j int) bool {
				return strings.ToLower(files[i].Filename) < strings.ToLower(files[j].Filename)
			})
		default:
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Unsupported order %q (use upload or name)", order)
		}

		inputs, err := h.stageAll(files, imageUploads...)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		defer h.Store.Remove(inputs...)

		out := h.Store.OutputPath("images", ".pdf")
		_, err = h.run(r, h.EngineManager.PDFPool, "image", "pdf", func(context.Context) (string, error) {
			return out.Path, converters.ImagesToPDF(inputs, out.Path, pageSize)
		})
		if err != nil {
			h.Store.Remove(out.Path)
			return models.Envelope{}, models.StagedFile{}, failed("Failed to create PDF", err)
		}
		log.Info("images merged", "count", len(inputs), "page_size", pageSize)
		return models.Envelope{URL: downloadURL(r, out.Name), Pages: len(inputs)}, out, nil
	})
}

func (h *ConversionHandler) stageAll(files []*multipart.FileHeader, allowed ...string) ([]string, error) {
	var paths []string
	for _, fh := range files {
		sf, err := h.stage(fh, allowed...)
		if err != nil {
			h.Store.Remove(paths...)
			return nil, err
		}
		paths = append(paths, sf.Path)
	}
	return paths, nil
}

// selectPages resolves the pages form field against a document of total
// pages. The result holds zero-based indices.
func (h *ConversionHandler) selectPages(selector string, total int) ([]int, error) {
	var pages []int
	if h.Config.PageRangeStrict {
		var err error
		if pages, err = pagerange.ParseStrict(selector, total); err != nil {
			return nil, models.ClientInput("Invalid page selection: %v", err)
		}
	} else {
		pages = pagerange.Parse(selector, total)
	}
	if len(pages) == 0 {
		return nil, models.ClientInput("No valid pages selected")
	}
	return pages, nil
}

func pageCount(path string) (int, error) {
	n, err := converters.PageCount(path)
	if err != nil || n == 0 {
		return 0, models.ClientInput("The uploaded file is not a readable PDF")
	}
	return n, nil
}

// HandlePDFToImages renders selected pages to images and returns them as a
// zip archive.
func (h *ConversionHandler) HandlePDFToImages() http.HandlerFunc {
	return h.tool("pdf-to-images", func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error) {
		in, err := h.saveUpload(r, "file", ".pdf")
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		defer h.Store.Remove(in.Path)

		quality := strings.ToLower(strings.TrimSpace(r.FormValue("quality")))
		if quality == "" {
			quality = "medium"
		}
		dpi, ok := qualityDPI[quality]
		if !ok {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Unsupported quality %q (use low, medium or high)", quality)
		}
		format := strings.ToLower(strings.TrimSpace(r.FormValue("format")))
		switch format {
		case "":
			format = "png"
		case "jpeg":
			format = "jpg"
		case "png", "jpg":
		default:
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Unsupported image format %q (use png or jpg)", format)
		}

		total, err := pageCount(in.Path)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		pages, err := h.selectPages(r.FormValue("pages"), total)
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}

		workDir, err := os.MkdirTemp(h.Store.UploadDir, "pages-")
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		defer os.RemoveAll(workDir)

		images := make([]string, len(pages))
		g, gctx := errgroup.WithContext(r.Context())
		g.SetLimit(h.Config.Workers)
		for i, p := range pages {
			g.Go(func() error {
				prefix := filepath.Join(workDir, fmt.Sprintf("page_%03d", p+1))
				res, err := h.EngineManager.PopplerPool.Submit(gctx, models.Job{
					ID:         requestID(r),
					FromFormat: "pdf",
					ToFormat:   format,
					Run: func(ctx context.Context) (string, error) {
						return h.Tools.RenderPage(ctx, in.Path, p+1, dpi, format, prefix)
					},
				})
				if err != nil {
					return err
				}
				if res.Error != nil {
					return res.Error
				}
				images[i] = res.Path
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return models.Envelope{}, models.StagedFile{}, failed("Failed to render pages", err)
		}

		out := h.Store.OutputPath("pages", ".zip")
		if err := utils.ZipFiles(out.Path, images); err != nil {
			return models.Envelope{}, models.StagedFile{}, failed("Failed to package images", err)
		}
		log.Info("pages rendered", "pages", len(pages), "dpi", dpi, "format", format)
		return models.Envelope{ZipURL: downloadURL(r, out.Name), Pages: len(pages)}, out, nil
	})
}

// HandlePDFToOffice converts a PDF, or a page selection of it, into an
// editable document.
func (h *ConversionHandler) HandlePDFToOffice() http.HandlerFunc {
	return h.tool("pdf-to-office", func(r *http.Request, log *slog.Logger) (models.Envelope, models.StagedFile, error) {
		in, err := h.saveUpload(r, "file", ".pdf")
		if err != nil {
			return models.Envelope{}, models.StagedFile{}, err
		}
		inputs := []string{in.Path}
		defer func() { h.Store.Remove(inputs...) }()

		format := strings.ToLower(strings.TrimSpace(r.FormValue("format")))
		if format == "" {
			format = "docx"
		}
		if !validOfficeFormat(format) {
			return models.Envelope{}, models.StagedFile{}, models.ClientInput("Unsupported format %q (use %s)", format, strings.Join(converters.OfficeFormats(), ", "))
		}

		source := in.Path
		if selector := strings.TrimSpace(r.FormValue("pages")); selector != "" {
			total, err := pageCount(in.Path)
			if err != nil {
				return models.Envelope{}, models.StagedFile{}, err
			}
			pages, err := h.selectPages(selector, total)
			if err != nil {
				return models.Envelope{}, models.StagedFile{}, err
			}
			if len(pages) < total {
				trimmed := h.Store.UploadPath("trimmed", ".pdf")
				inputs = append(inputs, trimmed.Path)
				_, err := h.run(r, h.EngineManager.PDFPool, "pdf", "pdf", func(context.Context) (string, error) {
					return trimmed.Path, converters.TrimPages(in.Path, trimmed.Path, pagerange.Format(pages))
				})
				if err != nil {
					return models.Envelope{}, models.StagedFile{}, failed("Failed to select pages", err)
				}
				source = trimmed.Path
			}
		}

		out := h.Store.OutputPath("office", "."+format)
		_, err = h.run(r, h.EngineManager.OfficePool, "pdf", format, func(ctx context.Context) (string, error) {
			return out.Path, h.Tools.PDFToOffice(ctx, source, out.Path, format)
		})
		if err != nil {
			h.Store.Remove(out.Path)
			return models.Envelope{}, models.StagedFile{}, failed("Failed to convert PDF", err)
		}
		log.Info("pdf converted", "format", format)
		return models.Envelope{URL: downloadURL(r, out.Name)}, out, nil
	})
}

func validOfficeFormat(f string) bool {
	for _, o := range converters.OfficeFormats() {
		if o == f {
			return true
		}
	}
	return false
}
