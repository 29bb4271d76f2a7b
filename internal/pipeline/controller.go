// Package pipeline wires extraction, OCR, embedding and storage into the
// ingestion state machine and serves summaries and answers from the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chunker"
	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/ocr"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/summarizer"
	"pdf-rag/internal/vectorstore"
)

type State string

const (
	StateIdle       State = "idle"
	StateReceived   State = "received"
	StateExtracted  State = "extracted"
	StateOCRChecked State = "ocr-checked"
	StateOCRApplied State = "ocr-applied"
	StateOCRSkipped State = "ocr-skipped"
	StateCollected  State = "collected"
	StateEmbedded   State = "embedded"
	StateStored     State = "stored"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

const (
	msgEmptyUpload   = "Empty file content provided"
	msgNoText        = "No text content could be extracted from the PDF"
	msgStoreFailed   = "Failed to store vectors in the database"
	msgNoSummaryText = "No document content available for summarization."
	msgNoDocument    = "No document has been processed yet. Please upload a document first."
)

// Deps overrides the components New would otherwise build from the config.
// Nil fields are built from the config.
type Deps struct {
	Embedder   embedding.QueryEmbedder
	LLM        llmservice.Generator
	OCRFactory ocr.Factory
	Store      vectorstore.Store
}

type Controller struct {
	mu         sync.Mutex
	cfg        *config.Config
	store      vectorstore.Store
	embeddings *embedding.Generator
	recognizer *ocr.Recognizer
	rag        *rag.RAG
	summarizer *summarizer.Summarizer

	state  State
	reason string
}

// New builds every component. With ocr.eager_init set the recognition engine
// is created here and a failure to create it is returned.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Controller, error) {
	var err error
	if deps.Embedder == nil {
		if deps.Embedder, err = embedding.NewEmbedder(&cfg.EmbedLLM); err != nil {
			return nil, err
		}
	}
	if deps.LLM == nil {
		if deps.LLM, err = llmservice.NewLLM(&cfg.InferenceLLM); err != nil {
			return nil, err
		}
	}
	if deps.OCRFactory == nil {
		deps.OCRFactory = visionFactory(&cfg.VisionLLM)
	}

	handle := ocr.NewHandle(deps.OCRFactory, cfg.OCR.InitAttempts, cfg.OCR.InitBackoff)
	if cfg.OCR.EagerInit {
		if _, err := handle.Get(ctx); err != nil {
			return nil, err
		}
	}

	if deps.Store == nil {
		if deps.Store, err = OpenStore(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	}

	return &Controller{
		cfg:        cfg,
		store:      deps.Store,
		embeddings: embedding.NewGenerator(deps.Embedder, chunker.New(chunker.PolicyFromConfig(cfg))),
		recognizer: ocr.NewRecognizer(handle, cfg.OCR.MinTextLength, cfg.OCR.Timeout),
		rag:        rag.NewRAG(deps.Embedder, deps.Store, deps.LLM, &cfg.RAG),
		summarizer: summarizer.NewSummarizer(deps.LLM, &cfg.RAG),
		state:      StateIdle,
	}, nil
}

func visionFactory(llmConfig *config.LLMConfig) ocr.Factory {
	return func(context.Context) (ocr.Engine, error) {
		model, err := llmservice.NewLLM(llmConfig)
		if err != nil {
			return nil, err
		}
		return ocr.NewVisionEngine(model), nil
	}
}

func (c *Controller) transition(s State) {
	c.state = s
	c.reason = ""
	log.Info().Str("state", string(s)).Msg("Ingestion state")
}

func (c *Controller) fail(reason string) (bool, string) {
	c.state = StateFailed
	c.reason = reason
	log.Error().Str("reason", reason).Msg("Ingestion failed")
	return false, reason
}

// State returns the state the last ingestion reached and, when it failed,
// the reason.
func (c *Controller) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.reason
}

// Process ingests an uploaded document. The bytes are written to a
// temporary file that is removed before Process returns.
func (c *Controller) Process(ctx context.Context, content []byte) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transition(StateReceived)
	if len(content) == 0 {
		return c.fail(msgEmptyUpload)
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return c.fail(fmt.Sprintf("Failed to save temporary file: %v", err))
	}
	path := filepath.Join(c.cfg.TempDir, "upload-"+id+".pdf")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return c.fail(fmt.Sprintf("Failed to save temporary file: %v", err))
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to cleanup temporary file")
		}
	}()

	return c.ingest(ctx, path)
}

// ProcessFile ingests a document already on disk. The file is left in place.
func (c *Controller) ProcessFile(ctx context.Context, path string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transition(StateReceived)
	return c.ingest(ctx, path)
}

func (c *Controller) ingest(ctx context.Context, path string) (bool, string) {
	pages, err := parser.ExtractPages(path)
	if err != nil {
		return c.fail(err.Error())
	}
	c.transition(StateExtracted)

	needsOCR, err := parser.NeedsOCR(path)
	if err != nil {
		return c.fail(fmt.Sprintf("Failed to check OCR requirement: %v", err))
	}
	c.transition(StateOCRChecked)

	var ocrText string
	if needsOCR {
		ocrText, err = c.recognizer.Process(ctx, pages)
		if err != nil {
			return c.fail(fmt.Sprintf("OCR processing failed: %v", err))
		}
		c.transition(StateOCRApplied)
	} else {
		c.transition(StateOCRSkipped)
	}

	merged := parser.Collect(pages, ocrText)
	if strings.TrimSpace(merged) == "" {
		return c.fail(msgNoText)
	}
	c.transition(StateCollected)

	vectors, chunks, texts, err := c.embeddings.Create(ctx, merged)
	if err != nil {
		return c.fail(fmt.Sprintf("Failed to create embeddings: %v", err))
	}
	c.transition(StateEmbedded)

	previous := c.store.FullText()
	c.store.SetFullText(merged)
	if !c.store.Store(ctx, vectors, chunks, texts) {
		c.store.SetFullText(previous)
		return c.fail(msgStoreFailed)
	}
	c.transition(StateStored)

	c.transition(StateDone)
	log.Info().Str("path", path).Int("chunks", len(chunks)).Msg("Document processing complete")
	return true, ""
}

// GenerateSummary summarizes the text of the last ingested document.
func (c *Controller) GenerateSummary(ctx context.Context) string {
	fullText := c.store.FullText()
	if fullText == "" {
		log.Warn().Msg("No text found in vector store")
		return msgNoSummaryText
	}
	return c.summarizer.Summarize(ctx, fullText)
}

// AnswerQuestion answers from the stored chunks.
func (c *Controller) AnswerQuestion(ctx context.Context, question string) string {
	return c.Ask(ctx, question).Content
}

// Ask is AnswerQuestion with the retrieved context attached.
func (c *Controller) Ask(ctx context.Context, question string) models.PromptResponse {
	return c.AskStream(ctx, question, nil)
}

// AskStream is Ask with the answer streamed through fn while it is generated.
// fn is not called when no answer is generated; Content still carries the
// message in that case.
func (c *Controller) AskStream(ctx context.Context, question string, fn rag.StreamFunc) models.PromptResponse {
	log.Info().Str("question", question).Msg("Answering question")
	if c.store.Len() == 0 {
		return models.PromptResponse{Query: question, Content: msgNoDocument}
	}
	return c.rag.QueryStream(ctx, question, fn)
}

func (c *Controller) ClearStore(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Info().Msg("Clearing vector store")
	return c.store.Clear(ctx)
}

type exporter interface {
	Export(ctx context.Context) (string, error)
}

// ExportStore writes an encrypted copy of the store and returns its path.
// Only backends that support export can do this.
func (c *Controller) ExportStore(ctx context.Context) (string, error) {
	e, ok := c.store.(exporter)
	if !ok {
		return "", fmt.Errorf("vector store backend %q does not support export", c.cfg.VectorStore.Backend)
	}
	return e.Export(ctx)
}

type importer interface {
	Import(ctx context.Context, path string) error
}

// ImportStore replaces the store contents with an export written by
// ExportStore.
func (c *Controller) ImportStore(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.store.(importer)
	if !ok {
		return fmt.Errorf("vector store backend %q does not support import", c.cfg.VectorStore.Backend)
	}
	return i.Import(ctx, path)
}

func (c *Controller) Close() error {
	return c.store.Close()
}
