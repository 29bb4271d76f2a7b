package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

// maxFormDepth bounds recursion into form XObjects when looking for images.
const maxFormDepth = 4

func extractPDF(path string) ([]models.Page, error) {
	// The whole file is kept in memory so images can be decoded lazily after
	// extraction returns.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := openPDF(data)
	if err != nil {
		return nil, err
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, ErrEmptyDocument
	}

	pages := make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		text, images, err := scanPage(r, data, i)
		var page models.Page
		if err != nil {
			log.Error().Err(err).Int("page", i).Msg("Error processing page")
			page = models.Page{PageNum: i, Text: models.ErrorPageText(i)}
		} else {
			page = newPage(i, text)
		}
		page.Images = images
		pages = append(pages, page)
	}
	return pages, nil
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = fmt.Errorf("%w: %v", ErrCorrupted, rec)
		}
	}()

	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) || strings.Contains(err.Error(), "encrypt") {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if !r.Trailer().Key("Encrypt").IsNull() {
		return nil, ErrEncrypted
	}
	return r, nil
}

// scanPage returns the plain text and the image XObjects of page num. A
// failure to list images does not fail the page.
func scanPage(r *pdf.Reader, data []byte, num int) (text string, images []models.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", num, rec)
		}
	}()

	p := r.Page(num)
	if p.V.IsNull() {
		return "", nil, fmt.Errorf("page %d not found", num)
	}
	images = pageImages(p, data, num)
	text, err = p.GetPlainText(nil)
	return text, images, err
}

func pageImages(p pdf.Page, data []byte, num int) (images []models.Image) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Int("page", num).Interface("panic", rec).Msg("Failed to list page images")
		}
	}()
	collectImages(p.Resources().Key("XObject"), data, fmt.Sprintf("page%d", num), 0, &images)
	return images
}

func collectImages(xobjects pdf.Value, data []byte, prefix string, depth int, out *[]models.Image) {
	for _, name := range xobjects.Keys() {
		x := xobjects.Key(name)
		switch x.Key("Subtype").Name() {
		case "Image":
			*out = append(*out, models.NewImage(prefix+"/"+name, func() (models.ImageData, error) {
				return decodeImage(x, data)
			}))
		case "Form":
			if depth < maxFormDepth {
				collectImages(x.Key("Resources").Key("XObject"), data, prefix+"/"+name, depth+1, out)
			}
		}
	}
}
