package converters

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// Never read or create ~/.config/pdfcpu on the server.
	api.DisableConfigDir()
}

// PageSizes lists the paper sizes ImagesToPDF accepts, keyed by lower case.
var PageSizes = map[string]string{
	"a4":     "A4",
	"letter": "Letter",
	"legal":  "Legal",
	"a3":     "A3",
	"a5":     "A5",
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// ImagesToPDF writes one page per image into outputPath, each image centred
// and scaled onto a page of the given paper size.
func ImagesToPDF(images []string, outputPath, pageSize string) error {
	if len(images) == 0 {
		return fmt.Errorf("no images to import")
	}
	size, ok := PageSizes[strings.ToLower(pageSize)]
	if !ok {
		return fmt.Errorf("unsupported page size %q", pageSize)
	}
	imp, err := api.Import(fmt.Sprintf("f:%s, pos:c, sc:0.95", size), types.POINTS)
	if err != nil {
		return fmt.Errorf("pdfcpu import details: %w", err)
	}
	if err := api.ImportImagesFile(images, outputPath, imp, pdfConfig()); err != nil {
		return fmt.Errorf("pdfcpu import images: %w", err)
	}
	return nonEmpty(outputPath)
}

// PageCount reports the number of pages in a PDF.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}

// TrimPages writes a copy of inputPath holding only the given 1-based pages.
func TrimPages(inputPath, outputPath string, pages []string) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages selected")
	}
	if err := api.TrimFile(inputPath, outputPath, pages, pdfConfig()); err != nil {
		return fmt.Errorf("pdfcpu trim: %w", err)
	}
	return nil
}
