package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/vectorstore"
)

const (
	msgNoQuestion     = "No question provided."
	msgNoContext      = "No relevant information found in the document to answer this question."
	msgEmptyAnswer    = "Failed to generate an answer. The model returned an empty response."
	msgRetrieveFailed = "Failed to retrieve relevant context: %v"
	msgModelError     = "Model error: %v"
)

// RAG answers questions from the chunks held in a vector store.
type RAG struct {
	embedder    embedding.QueryEmbedder
	store       vectorstore.Store
	llm         llmservice.Generator
	topK        int
	temperature float64
	maxTokens   int
}

// StreamFunc receives answer tokens while they are generated.
type StreamFunc func(ctx context.Context, chunk []byte) error

func NewRAG(embedder embedding.QueryEmbedder, store vectorstore.Store, llm llmservice.Generator, cfg *config.RAGConfig) *RAG {
	return &RAG{
		embedder:    embedder,
		store:       store,
		llm:         llm,
		topK:        cfg.TopK,
		temperature: cfg.AnswerTemperature,
		maxTokens:   cfg.AnswerMaxTokens,
	}
}

// Retrieve embeds the question and returns the closest chunks in rank order.
func (r *RAG) Retrieve(ctx context.Context, question string) ([]vectorstore.Match, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	res := r.store.Search(ctx, queryEmbedding, r.topK)
	if !res.Success {
		return nil, errors.New(res.Error)
	}
	return res.Matches, nil
}

// Query answers the question and reports the context it used. It never
// fails; problems are described in Content.
func (r *RAG) Query(ctx context.Context, question string) models.PromptResponse {
	return r.QueryStream(ctx, question, nil)
}

// QueryStream is Query with the answer also streamed through fn while the
// model generates it. Content always holds the complete answer or the
// failure message.
func (r *RAG) QueryStream(ctx context.Context, question string, fn StreamFunc) models.PromptResponse {
	response := models.PromptResponse{Query: question}
	if strings.TrimSpace(question) == "" {
		response.Content = msgNoQuestion
		return response
	}

	matches, err := r.Retrieve(ctx, question)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving context")
		response.Content = fmt.Sprintf(msgRetrieveFailed, err)
		return response
	}
	if len(matches) == 0 {
		response.Content = msgNoContext
		return response
	}

	chunks := vectorstore.SearchResult{Matches: matches}.Chunks()
	response.Source = strings.Join(chunks, " ")
	log.Debug().Int("chunks", len(chunks)).Msg("Retrieved context")

	opts := []llms.CallOption{
		llms.WithTemperature(r.temperature),
		llms.WithMaxTokens(r.maxTokens),
	}
	if fn != nil {
		opts = append(opts, llms.WithStreamingFunc(fn))
	}

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, response.Source, question)
	answer, err := llmservice.GenerateContent(ctx, r.llm, llmservice.Messages(models.AnswerSystemPrompt, prompt), opts...)
	switch {
	case errors.Is(err, llmservice.ErrEmptyResponse):
		response.Content = msgEmptyAnswer
	case err != nil:
		log.Error().Err(err).Msg("Error generating answer")
		response.Content = fmt.Sprintf(msgModelError, err)
	default:
		response.Content = answer
	}
	return response
}

// Answer returns only the answer text of Query.
func (r *RAG) Answer(ctx context.Context, question string) string {
	return r.Query(ctx, question).Content
}
