package ocr

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
)

// Engine recognizes the text in one image and returns it as fragments in
// reading order.
type Engine interface {
	Recognize(ctx context.Context, img models.ImageData) ([]string, error)
}

// VisionEngine asks a vision capable chat model to transcribe the image.
type VisionEngine struct {
	model     llmservice.Generator
	prompt    string
	maxTokens int
}

func NewVisionEngine(model llmservice.Generator) *VisionEngine {
	return &VisionEngine{
		model:     model,
		prompt:    models.OCRPrompt,
		maxTokens: 2048,
	}
}

func (e *VisionEngine) Recognize(ctx context.Context, img models.ImageData) ([]string, error) {
	messages := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(e.prompt),
			llms.BinaryPart(img.MimeType, img.Bytes),
		},
	}}

	content, err := llmservice.GenerateContent(ctx, e.model, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(e.maxTokens),
	)
	if errors.Is(err, llmservice.ErrEmptyResponse) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var fragments []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fragments = append(fragments, line)
		}
	}
	return fragments, nil
}
