package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
)

const (
	msgNoText       = "No text content provided for summarization."
	msgEmptySummary = "Failed to generate summary. The model returned an empty response."
	msgModelError   = "Model error: %v"
)

type Summarizer struct {
	llm         llmservice.Generator
	maxChars    int
	temperature float64
	maxTokens   int
}

func NewSummarizer(llm llmservice.Generator, cfg *config.RAGConfig) *Summarizer {
	return &Summarizer{
		llm:         llm,
		maxChars:    cfg.SummaryMaxChars,
		temperature: cfg.SummaryTemperature,
		maxTokens:   cfg.SummaryMaxTokens,
	}
}

// Truncate cuts text to maxChars characters and appends the truncation
// marker when anything was cut.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + models.TruncationMarker
}

// Summarize never fails; problems are described in the returned text.
func (s *Summarizer) Summarize(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return msgNoText
	}

	prompt := fmt.Sprintf(models.SummaryPromptTemplate, Truncate(text, s.maxChars))
	summary, err := llmservice.GenerateContent(ctx, s.llm,
		llmservice.Messages(models.SummarySystemPrompt, prompt),
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens),
	)
	if errors.Is(err, llmservice.ErrEmptyResponse) {
		return msgEmptySummary
	}
	if err != nil {
		log.Error().Err(err).Msg("Error generating summary")
		return fmt.Sprintf(msgModelError, err)
	}
	return summary
}
