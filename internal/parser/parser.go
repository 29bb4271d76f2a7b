package parser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrEncrypted         = errors.New("the PDF is encrypted, please provide an unencrypted PDF")
	ErrEmptyDocument     = errors.New("the document appears to be empty")
	ErrNoReadableText    = errors.New("no readable content found in the document")
	ErrCorrupted         = errors.New("the file appears to be corrupted or is not a valid PDF")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// ExtractPages returns the text of every page of the document at path in page
// order. Pages that fail or come back blank carry a sentinel text instead of
// failing the whole document.
func ExtractPages(path string) ([]models.Page, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}

	var (
		pages []models.Page
		err   error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		pages, err = extractPDF(path)
	case ".docx":
		pages, err = parseDOCX(path)
	case ".pptx":
		pages, err = parsePPTX(path)
	case ".xlsx":
		pages, err = parseXLSX(path)
	case ".xlsm", ".xltx", ".xltm":
		pages, err = parseExcelize(path)
	case ".md", ".markdown":
		pages, err = parseMarkdown(path)
	case ".txt":
		pages, err = parseText(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	if !hasReadableContent(pages) {
		return nil, ErrNoReadableText
	}

	log.Debug().Str("path", path).Int("pages", len(pages)).Msg("Extracted pages")
	return pages, nil
}

// NeedsOCR reports whether any page has no text but carries at least one
// image. Only PDFs can need OCR.
func NeedsOCR(path string) (bool, error) {
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return false, err
	}
	r, err := openPDF(data)
	if err != nil {
		return false, err
	}
	for i := 1; i <= r.NumPage(); i++ {
		text, images, _ := scanPage(r, data, i)
		if strings.TrimSpace(text) == "" && len(images) > 0 {
			log.Debug().Int("page", i).Int("images", len(images)).Msg("Page needs OCR")
			return true, nil
		}
	}
	return false, nil
}

func newPage(num int, text string) models.Page {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn().Int("page", num).Msg("Empty text content on page")
		text = models.EmptyPageText(num)
	}
	return models.Page{PageNum: num, Text: text}
}

// hasReadableContent reports whether some page has real text, or has images
// that OCR could turn into text.
func hasReadableContent(pages []models.Page) bool {
	for _, p := range pages {
		if !p.IsSentinel() || len(p.Images) > 0 {
			return true
		}
	}
	return false
}
