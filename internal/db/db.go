package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-rag/internal/config"
	"pdf-rag/internal/vectorstore"
)

// Chunk is one embedded chunk. Position is its insertion index.
type Chunk struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	Position      int64           `bun:"position,pk"`
	Content       string          `bun:"content,notnull"`
	SourceText    string          `bun:"source_text,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

// Document holds the merged text of the ingested document in a single row.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64  `bun:"id,pk"`
	FullText      string `bun:"full_text,notnull"`
}

const documentID = 1

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPq:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db bun.IDB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Chunk)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func DropDocuments(ctx context.Context, db bun.IDB) error {
	for _, model := range []interface{}{(*Chunk)(nil), (*Document)(nil)} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func StoreDocument(ctx context.Context, db bun.IDB, fullText string) error {
	doc := &Document{ID: documentID, FullText: fullText}
	_, err := db.NewInsert().
		Model(doc).
		On("CONFLICT (id) DO UPDATE").
		Set("full_text = EXCLUDED.full_text").
		Returning("NULL").
		Exec(ctx)
	return err
}

type SearchRow struct {
	Content    string  `bun:"content"`
	SourceText string  `bun:"source_text"`
	Distance   float64 `bun:"distance"`
}

// SearchDocuments orders chunks by L2 distance to the query.
func SearchDocuments(ctx context.Context, db bun.IDB, query []float32, limit int) ([]SearchRow, error) {
	vec := pgvector.NewVector(query)
	var rows []SearchRow
	err := db.NewSelect().
		Model((*Chunk)(nil)).
		Column("content", "source_text").
		ColumnExpr("embedding <-> ? AS distance", vec).
		OrderExpr("embedding <-> ?", vec).
		Limit(limit).
		Scan(ctx, &rows)
	return rows, err
}

// Store is the PostgreSQL and pgvector backed vectorstore.Store.
type Store struct {
	mu       sync.RWMutex
	db       *bun.DB
	count    int
	dim      int
	fullText string
}

// Open connects with the configured driver and prepares the schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s, err := NewStore(ctx, NewDB(sqldb, cfg.Debug))
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return s, nil
}

// NewStore prepares the schema and loads the current row count, vector
// dimension and document text.
func NewStore(ctx context.Context, db *bun.DB) (*Store, error) {
	if err := InitDB(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	log.Info().Int("vectors", s.count).Msg("Pgvector store ready")
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	count, err := s.db.NewSelect().Model((*Chunk)(nil)).Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	s.count = count

	if count > 0 {
		err := s.db.NewSelect().
			Model((*Chunk)(nil)).
			ColumnExpr("vector_dims(embedding)").
			Order("position").
			Limit(1).
			Scan(ctx, &s.dim)
		if err != nil {
			return fmt.Errorf("failed to read vector dimension: %w", err)
		}
	}

	var doc Document
	err = s.db.NewSelect().Model(&doc).Where("id = ?", documentID).Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read document: %w", err)
	default:
		s.fullText = doc.FullText
	}
	return nil
}

func (s *Store) Store(ctx context.Context, vectors [][]float32, chunks, texts []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := vectorstore.ValidateBatch(vectors, chunks, texts, s.dim)
	if err != nil {
		log.Error().Err(err).Msg("Rejected vectors")
		return false
	}

	rows := make([]Chunk, len(vectors))
	for i := range vectors {
		rows[i] = Chunk{
			Position:   int64(s.count + i),
			Content:    chunks[i],
			SourceText: texts[i],
			Embedding:  pgvector.NewVector(vectors[i]),
		}
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&rows).Returning("NULL").Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		if err := StoreDocument(ctx, tx, s.fullText); err != nil {
			return fmt.Errorf("failed to store document: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Error storing vectors")
		return false
	}

	s.count += len(rows)
	s.dim = dim
	log.Info().Int("added", len(rows)).Int("total", s.count).Msg("Stored vectors")
	return true
}

func (s *Store) Search(ctx context.Context, query []float32, k int) vectorstore.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return vectorstore.Failed(vectorstore.ErrNoIndex)
	}
	if k <= 0 {
		return vectorstore.Failed("invalid k %d", k)
	}
	if len(query) != s.dim {
		return vectorstore.Failed("query has dimension %d, index has %d", len(query), s.dim)
	}

	rows, err := SearchDocuments(ctx, s.db, query, vectorstore.CapK(k, s.count))
	if err != nil {
		return vectorstore.Failed("failed to search documents: %v", err)
	}
	matches := make([]vectorstore.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, vectorstore.Match{
			Chunk:      r.Content,
			SourceText: r.SourceText,
			Distance:   float32(r.Distance),
		})
	}
	return vectorstore.SearchResult{Success: true, Matches: matches}
}

func (s *Store) Clear(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []interface{}{(*Chunk)(nil), (*Document)(nil)} {
			if _, err := tx.NewTruncateTable().Model(model).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Error clearing vector store")
		return false
	}
	s.count = 0
	s.dim = 0
	s.fullText = ""
	log.Info().Msg("Vector store cleared")
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) FullText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullText
}

func (s *Store) SetFullText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullText = text
}

func (s *Store) Close() error {
	return s.db.Close()
}
