package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/vectorstore"
)

const (
	sidecarFile   = "chromem_meta.msgpack"
	sourceTextKey = "source_text"
	positionKey   = "position"
	idWidth       = 8

	// The full document text travels in exports as the single document of a
	// companion collection.
	documentSuffix = "_document"
	fullTextID     = "full_text"
)

type sidecar struct {
	FullText string `msgpack:"full_text"`
}

// VectorDBManager stores chunks in a persistent chromem-go collection.
// Documents are keyed by their zero-padded position so results map back to
// insertion order.
type VectorDBManager struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	dbPath         string
	collectionName string
	compress       bool
	encryptionKey  string
	filePath       string
	dim            int
	fullText       string
}

func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings must be supplied by the caller")
}

// NewVectorDBManager opens or creates the collection under dbPath.
func NewVectorDBManager(dbPath, collectionName string, compress bool, encryptionKey string) (*VectorDBManager, error) {
	if err := helper.CreateFolder(dbPath); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dbPath, "chromem"), compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	m := &VectorDBManager{
		db:             db,
		dbPath:         dbPath,
		collectionName: collectionName,
		compress:       compress,
		encryptionKey:  encryptionKey,
		filePath:       filepath.Join(dbPath, collectionName+".chromem"),
	}
	if _, err := m.GetOrCreateCollection(); err != nil {
		return nil, err
	}
	m.loadSidecar()
	m.dim = m.probeDimension()

	log.Info().Str("collection", collectionName).Int("documents", m.collection.Count()).Msg("Chromem vector store ready")
	return m, nil
}

func (m *VectorDBManager) GetOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) documentCollection() string { return m.collectionName + documentSuffix }

func (m *VectorDBManager) sidecarPath() string { return filepath.Join(m.dbPath, sidecarFile) }

func (m *VectorDBManager) loadSidecar() {
	raw, err := os.ReadFile(m.sidecarPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("Error reading chromem sidecar")
		}
		return
	}
	var meta sidecar
	if err := msgpack.Unmarshal(raw, &meta); err != nil {
		log.Warn().Err(err).Msg("Discarding invalid chromem sidecar")
		return
	}
	m.fullText = meta.FullText
}

// probeDimension reads the dimension of the first stored document.
func (m *VectorDBManager) probeDimension() int {
	if m.collection.Count() == 0 {
		return 0
	}
	doc, err := m.collection.GetByID(context.Background(), docID(0))
	if err != nil {
		log.Warn().Err(err).Msg("Could not determine collection dimension")
		return 0
	}
	return len(doc.Embedding)
}

func docID(pos int) string {
	return fmt.Sprintf("%0*d", idWidth, pos)
}

func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	if err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Store(ctx context.Context, vectors [][]float32, chunks, texts []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	dim, err := vectorstore.ValidateBatch(vectors, chunks, texts, m.dim)
	if err != nil {
		log.Error().Err(err).Msg("Rejected vectors")
		return false
	}

	start := m.collection.Count()
	docs := make([]chromem.Document, len(vectors))
	for i := range vectors {
		pos := start + i
		docs[i] = chromem.Document{
			ID:        docID(pos),
			Content:   chunks[i],
			Embedding: vectors[i],
			Metadata: map[string]string{
				positionKey:   strconv.Itoa(pos),
				sourceTextKey: texts[i],
			},
		}
	}

	if err := m.CreateDocs(ctx, docs); err != nil {
		log.Error().Err(err).Msg("Error storing vectors")
		m.rollback(ctx, docs)
		return false
	}
	if err := m.writeSidecar(); err != nil {
		log.Error().Err(err).Msg("Error writing chromem sidecar")
		m.rollback(ctx, docs)
		return false
	}

	m.dim = dim
	log.Info().Int("added", len(docs)).Int("total", m.collection.Count()).Msg("Stored vectors")
	return true
}

// rollback removes the documents of a failed Store.
func (m *VectorDBManager) rollback(ctx context.Context, docs []chromem.Document) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	if err := m.collection.Delete(ctx, nil, nil, ids...); err != nil {
		log.Error().Err(err).Msg("Error rolling back stored vectors")
	}
}

func (m *VectorDBManager) writeSidecar() error {
	raw, err := msgpack.Marshal(&sidecar{FullText: m.fullText})
	if err != nil {
		return err
	}
	return helper.WriteFileAtomic(m.sidecarPath(), raw)
}

// Search ranks by cosine similarity and reports 1 - similarity as distance.
func (m *VectorDBManager) Search(ctx context.Context, query []float32, k int) vectorstore.SearchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := m.collection.Count()
	if count == 0 {
		return vectorstore.Failed(vectorstore.ErrNoIndex)
	}
	if k <= 0 {
		return vectorstore.Failed("invalid k %d", k)
	}
	if m.dim != 0 && len(query) != m.dim {
		return vectorstore.Failed("query has dimension %d, index has %d", len(query), m.dim)
	}

	results, err := m.collection.QueryEmbedding(ctx, query, vectorstore.CapK(k, count), nil, nil)
	if err != nil {
		return vectorstore.Failed("failed to query by similarity: %v", err)
	}

	matches := make([]vectorstore.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, vectorstore.Match{
			Chunk:      r.Content,
			SourceText: r.Metadata[sourceTextKey],
			Distance:   1 - r.Similarity,
		})
	}
	return vectorstore.SearchResult{Success: true, Matches: matches}
}

// DeleteCollection drops the collection, its companion document collection
// and their files, then recreates the collection empty.
func (m *VectorDBManager) DeleteCollection() error {
	for _, name := range []string{m.collectionName, m.documentCollection()} {
		if err := m.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	_, err := m.GetOrCreateCollection()
	return err
}

func (m *VectorDBManager) Clear(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.DeleteCollection(); err != nil {
		log.Error().Err(err).Msg("Error clearing vector store")
		return false
	}
	if err := os.Remove(m.sidecarPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Msg("Error removing chromem sidecar")
		return false
	}
	m.dim = 0
	m.fullText = ""
	log.Info().Msg("Vector store cleared")
	return true
}

func (m *VectorDBManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection.Count()
}

func (m *VectorDBManager) FullText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fullText
}

func (m *VectorDBManager) SetFullText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullText = text
}

func (m *VectorDBManager) Close() error { return nil }

// Export writes the collection and the document text to an encrypted file
// next to the database.
func (m *VectorDBManager) Export(ctx context.Context) (string, error) {
	if m.encryptionKey == "" {
		return "", errors.New("encryption key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, err := m.db.GetOrCreateCollection(m.documentCollection(), nil, precomputedOnly)
	if err != nil {
		return "", fmt.Errorf("failed to create/get collection: %w", err)
	}
	fullText := chromem.Document{ID: fullTextID, Content: m.fullText, Embedding: []float32{1}}
	if err := docs.AddDocument(ctx, fullText); err != nil {
		return "", fmt.Errorf("failed to store document text: %w", err)
	}

	log.Debug().Str("collection", m.collectionName).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collectionName, m.documentCollection()); err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return m.filePath, nil
}

// Import replaces the collection and the document text with the ones stored
// in an export file.
func (m *VectorDBManager) Import(ctx context.Context, path string) error {
	if !helper.FileExists(path) {
		return fmt.Errorf("export file %s not found", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.DeleteCollection(m.documentCollection()); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := m.db.ImportFromFile(path, m.encryptionKey, m.collectionName, m.documentCollection()); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	if _, err := m.GetOrCreateCollection(); err != nil {
		return err
	}
	m.dim = m.probeDimension()

	m.fullText = ""
	if docs := m.db.GetCollection(m.documentCollection(), precomputedOnly); docs != nil {
		doc, err := docs.GetByID(ctx, fullTextID)
		if err != nil {
			log.Warn().Err(err).Msg("Export file holds no document text")
		} else {
			m.fullText = doc.Content
		}
	}
	if err := m.writeSidecar(); err != nil {
		return fmt.Errorf("failed to write chromem sidecar: %w", err)
	}
	log.Info().Str("file", path).Int("documents", m.collection.Count()).Msg("Imported collection")
	return nil
}
