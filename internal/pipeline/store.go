package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/vectorstore"
)

// OpenStore opens the vector store backend named in the config.
func OpenStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	vs := cfg.VectorStore
	log.Debug().Str("backend", vs.Backend).Str("dir", vs.Dir).Msg("Opening vector store")

	switch vs.Backend {
	case config.BackendFlat, "":
		s, err := vectorstore.NewFlatStore(vs.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendChromem:
		s, err := chromemdb.NewVectorDBManager(vs.Dir, vs.CollectionName, vs.Compress, cfg.RAG.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPgvector:
		s, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", vs.Backend)
	}
}
