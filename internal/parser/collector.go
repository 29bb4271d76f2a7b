package parser

import (
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

// Collect merges the page texts and the OCR output into one document string.
// Sentinel pages are dropped. An empty result is returned as "" and left to
// the caller to reject.
func Collect(pages []models.Page, ocrText string) string {
	var blocks []string
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" || p.IsSentinel() {
			continue
		}
		blocks = append(blocks, text)
	}
	if ocr := strings.TrimSpace(ocrText); ocr != "" {
		blocks = append(blocks, ocr)
	}
	if len(blocks) == 0 {
		log.Warn().Msg("No text content collected")
		return ""
	}
	return strings.Join(blocks, models.BlockSeparator)
}
