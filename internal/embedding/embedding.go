package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-rag/internal/chunker"
	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
)

var (
	ErrEmptyText    = errors.New("empty text provided")
	ErrNoChunks     = errors.New("no chunks created from text")
	ErrNoEmbeddings = errors.New("failed to generate any valid embeddings")
)

// QueryEmbedder embeds a single text. *embeddings.EmbedderImpl satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder creates the embedder for the configured provider.
func NewEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	if llmConfig.Provider == config.ProviderOllama {
		return NewOllamaEmbedder(llmConfig)
	}
	return NewOpenAIEmbedder(llmConfig)
}

func NewOpenAIEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating OpenAI embedder")

	opts := append(llmservice.OpenAIOptions(llmConfig), openai.WithEmbeddingModel(llmConfig.Model))
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating Ollama embedder")

	opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// Generator chunks a document and embeds every chunk.
type Generator struct {
	embedder  QueryEmbedder
	segmenter chunker.Segmenter
}

func NewGenerator(embedder QueryEmbedder, segmenter chunker.Segmenter) *Generator {
	return &Generator{embedder: embedder, segmenter: segmenter}
}

// Create returns one vector per successfully embedded chunk together with the
// chunk texts and, for every chunk, the full input text. Chunks whose
// embedding fails are skipped.
func (g *Generator) Create(ctx context.Context, text string) (vectors [][]float32, chunks []string, texts []string, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil, ErrEmptyText
	}

	pieces := g.segmenter.Segment(text)
	if len(pieces) == 0 {
		return nil, nil, nil, ErrNoChunks
	}

	for i, chunk := range pieces {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		vec, err := g.embedder.EmbedQuery(ctx, chunk)
		if err != nil {
			log.Error().Err(err).Int("chunk", i).Msg("Error generating embedding")
			continue
		}
		if len(vec) == 0 {
			log.Warn().Int("chunk", i).Msg("Empty embedding returned")
			continue
		}
		vectors = append(vectors, vec)
		chunks = append(chunks, chunk)
		texts = append(texts, text)
	}

	if len(vectors) == 0 {
		return nil, nil, nil, ErrNoEmbeddings
	}
	log.Info().Int("chunks", len(pieces)).Int("embedded", len(vectors)).Msg("Created embeddings")
	return vectors, chunks, texts, nil
}
