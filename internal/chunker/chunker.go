package chunker

import (
	"strings"

	"pdf-rag/internal/config"
)

// Segmenter splits document text into chunks for embedding.
type Segmenter interface {
	Segment(text string) []string
}

// Policy names a strategy and its parameters. Zero values fall back to the
// defaults of the chosen strategy.
type Policy struct {
	Strategy      string
	Size          int
	Overlap       int
	TokenBudget   int
	CharsPerToken int
}

const (
	defaultChunkSize     = 1000
	defaultChunkOverlap  = 200
	defaultTokenBudget   = 1000
	defaultCharsPerToken = 4
)

func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Strategy:      cfg.Chunker.Strategy,
		Size:          cfg.RAG.ChunkSize,
		Overlap:       cfg.RAG.ChunkOverlap,
		TokenBudget:   cfg.Chunker.TokenBudget,
		CharsPerToken: cfg.Chunker.CharsPerToken,
	}
}

func New(p Policy) Segmenter {
	if p.Strategy == config.StrategyWindow {
		return NewWindow(p.Size, p.Overlap)
	}
	return NewTokenBudget(p.TokenBudget, p.CharsPerToken)
}

func Segment(text string, p Policy) []string {
	return New(p).Segment(text)
}

// normalizeSpace collapses every whitespace run to a single space and trims
// the ends.
func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
