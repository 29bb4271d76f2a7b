package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

// Recognizer runs OCR over the images of pages that lack enough text.
type Recognizer struct {
	handle        *Handle
	minTextLength int
	timeout       time.Duration
}

func NewRecognizer(handle *Handle, minTextLength int, timeout time.Duration) *Recognizer {
	return &Recognizer{handle: handle, minTextLength: minTextLength, timeout: timeout}
}

// Process returns the recognized text of all eligible images joined by
// newlines. A failing image is logged and skipped.
func (r *Recognizer) Process(ctx context.Context, pages []models.Page) (string, error) {
	engine, err := r.handle.Get(ctx)
	if err != nil {
		return "", err
	}

	var fragments []string
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if utf8.RuneCountInString(strings.TrimSpace(page.Text)) > r.minTextLength {
			continue
		}

		for _, img := range page.Images {
			data, err := img.Open()
			if err != nil {
				log.Error().Err(err).Int("page", page.PageNum).Str("image", img.Name).Msg("Error processing image")
				continue
			}
			if len(data.Bytes) == 0 {
				log.Warn().Int("page", page.PageNum).Str("image", img.Name).Msg("Empty image")
				continue
			}

			texts, err := r.recognize(ctx, engine, data)
			if err != nil {
				log.Error().Err(err).Int("page", page.PageNum).Str("image", img.Name).Msg("OCR error")
				continue
			}
			if len(texts) == 0 {
				log.Warn().Int("page", page.PageNum).Str("image", img.Name).Msg("No text found in image")
				continue
			}
			fragments = append(fragments, texts...)
			log.Info().Int("page", page.PageNum).Int("fragments", len(texts)).Msg("Extracted text from image")
		}
	}
	return strings.Join(fragments, "\n"), nil
}

// recognize bounds one engine call by the timeout even when the engine
// ignores its context.
func (r *Recognizer) recognize(ctx context.Context, engine Engine, data models.ImageData) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		texts []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		texts, err := engine.Recognize(ctx, data)
		done <- result{texts, err}
	}()

	select {
	case res := <-done:
		return res.texts, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("recognition aborted: %w", ctx.Err())
	}
}
