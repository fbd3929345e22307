// Package pdf composes normalized photos into a single paginated document,
// one page per photo, sized per image so photos are never upscaled.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	// normalized photos are png; jpeg kept for fallback originals
	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/jcervantes/foliofotos/internal/util"
)

// ErrNoImages is returned when assembly is requested with no images.
var ErrNoImages = errors.New("no images to assemble")

const (
	// A4 dimensions in points
	a4Short = 595.27
	a4Long  = 841.89

	// margin on all sides of every page, in points
	pageMargin = 36.0
)

// Assembler builds the photo document uploaded alongside the individual files.
type Assembler interface {

	// Assemble composes the ordered images into one multi-page pdf, one page
	// per image. Page orientation follows each image's aspect; images are
	// centered and shrunk to fit inside the margin but never enlarged.
	// Undecodable images are skipped; an error is returned only when no page
	// at all could be produced.
	Assemble(images [][]byte) ([]byte, error)
}

// NewAssembler creates a new pdf assembler, returning a pointer to the
// concrete implementation.
func NewAssembler() Assembler {
	return &assembler{
		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceFolioFotos)).
			With(slog.String(util.PackageKey, util.PackagePdf)).
			With(slog.String(util.ComponentKey, util.ComponentPdfAssembler)),
	}
}

var _ Assembler = (*assembler)(nil)

// assembler is the concrete implementation of the Assembler interface.
type assembler struct {
	logger *slog.Logger
}

// Assemble is the concrete implementation of the interface method.
func (a *assembler) Assemble(images [][]byte) ([]byte, error) {

	if len(images) == 0 {
		return nil, ErrNoImages
	}

	// pages are appended one import at a time because each image carries its
	// own page orientation and scale factor. Images that cannot be paged
	// (eg undecodable fallback originals) are skipped so one bad photo does
	// not cost the rest of the set their document.
	var doc []byte
	pages := 0
	for i, img := range images {

		imp, err := importDetails(img)
		if err != nil {
			a.logger.Warn(fmt.Sprintf("skipping unpageable image %d of %d: %v", i+1, len(images), err))
			continue
		}

		// nil ReadSeeker on the first pass creates the document,
		// subsequent passes append to it
		var rs io.ReadSeeker
		if doc != nil {
			rs = bytes.NewReader(doc)
		}

		var buf bytes.Buffer
		if err := api.ImportImages(rs, &buf, []io.Reader{bytes.NewReader(img)}, imp, nil); err != nil {
			return nil, fmt.Errorf("failed to import page %d: %v", i+1, err)
		}

		doc = buf.Bytes()
		pages++
	}

	if pages == 0 {
		return nil, fmt.Errorf("none of the %d image(s) could be paged", len(images))
	}

	a.logger.Info(fmt.Sprintf("assembled pdf with %d of %d page(s), %d bytes", pages, len(images), len(doc)))

	return doc, nil
}

// importDetails builds the pdfcpu import description for one image: page
// orientation by aspect, centered position, and an absolute scale factor of
// min(fit-width, fit-height, 1.0) so the image fills the printable area
// without ever being enlarged.
func importDetails(img []byte) (*pdfcpu.Import, error) {

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image dimensions: %v", err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}

	form, scale := pageFit(cfg.Width, cfg.Height)

	// the scale prefix must be "sc"; a bare "s" is ambiguous to the parser
	desc := fmt.Sprintf("f:%s, pos:c, sc:%.4f abs", form, scale)

	imp, err := api.Import(desc, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse import details %q: %v", desc, err)
	}

	return imp, nil
}

// pageFit selects the page form for an image's aspect and the scale factor
// that fits it inside the margins. One image pixel renders as one point, so
// the scale ceiling of 1.0 is what keeps small images from being enlarged.
func pageFit(width, height int) (form string, scale float64) {

	form = "A4P"
	pageW, pageH := a4Short, a4Long
	if width >= height {
		form = "A4L"
		pageW, pageH = a4Long, a4Short
	}

	availW := pageW - 2*pageMargin
	availH := pageH - 2*pageMargin

	scale = availW / float64(width)
	if s := availH / float64(height); s < scale {
		scale = s
	}
	if scale > 1.0 {
		scale = 1.0
	}

	return form, scale
}
