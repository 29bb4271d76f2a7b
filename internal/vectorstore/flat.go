package vectorstore

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"pdf-rag/internal/helper"
)

const (
	IndexFile    = "index.flat"
	MetadataFile = "metadata.msgpack"

	metadataVersion = 1
)

var indexMagic = [4]byte{'F', 'L', 'A', 'T'}

type metadata struct {
	Version     int      `msgpack:"version"`
	Dimension   int      `msgpack:"dimension"`
	VectorCount int      `msgpack:"vector_count"`
	IndexSHA256 string   `msgpack:"index_sha256"`
	Chunks      []string `msgpack:"chunks"`
	Texts       []string `msgpack:"texts"`
	FullText    string   `msgpack:"full_text"`
}

// FlatStore is an exact squared-L2 index held in memory and persisted as a
// binary index file plus a msgpack metadata file.
type FlatStore struct {
	mu       sync.RWMutex
	dir      string
	dim      int
	vectors  [][]float32
	chunks   []string
	texts    []string
	fullText string
}

// NewFlatStore opens the store under dir. Missing or inconsistent files leave
// the store empty.
func NewFlatStore(dir string) (*FlatStore, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s := &FlatStore{dir: dir}
	if err := s.load(); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Discarding persisted vector store")
		s.reset()
	}
	log.Info().Str("dir", dir).Int("vectors", len(s.vectors)).Msg("Flat vector store ready")
	return s, nil
}

func (s *FlatStore) indexPath() string    { return filepath.Join(s.dir, IndexFile) }
func (s *FlatStore) metadataPath() string { return filepath.Join(s.dir, MetadataFile) }

func (s *FlatStore) reset() {
	s.dim = 0
	s.vectors = nil
	s.chunks = nil
	s.texts = nil
	s.fullText = ""
}

func (s *FlatStore) load() error {
	raw, err := os.ReadFile(s.metadataPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var meta metadata
	if err := msgpack.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}
	if meta.Version != metadataVersion {
		return fmt.Errorf("unsupported metadata version %d", meta.Version)
	}
	if len(meta.Chunks) != meta.VectorCount || len(meta.Texts) != meta.VectorCount {
		return fmt.Errorf("metadata holds %d chunks and %d texts for %d vectors", len(meta.Chunks), len(meta.Texts), meta.VectorCount)
	}

	if meta.VectorCount == 0 {
		s.fullText = meta.FullText
		return nil
	}

	index, err := os.ReadFile(s.indexPath())
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	sum := sha256.Sum256(index)
	if hex.EncodeToString(sum[:]) != meta.IndexSHA256 {
		return errors.New("index checksum mismatch")
	}
	dim, vectors, err := decodeIndex(index)
	if err != nil {
		return err
	}
	if len(vectors) != meta.VectorCount || dim != meta.Dimension {
		return fmt.Errorf("index holds %d vectors of dimension %d, metadata expects %d of %d", len(vectors), dim, meta.VectorCount, meta.Dimension)
	}

	s.dim = dim
	s.vectors = vectors
	s.chunks = meta.Chunks
	s.texts = meta.Texts
	s.fullText = meta.FullText
	return nil
}

func encodeIndex(dim int, vectors [][]float32) []byte {
	var buf bytes.Buffer
	buf.Grow(12 + 4*dim*len(vectors))
	buf.Write(indexMagic[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dim))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(vectors)))
	for _, v := range vectors {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func decodeIndex(data []byte) (int, [][]float32, error) {
	r := bytes.NewReader(data)
	var header struct {
		Magic [4]byte
		Dim   uint32
		Count uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, nil, fmt.Errorf("corrupt index header: %w", err)
	}
	if header.Magic != indexMagic {
		return 0, nil, errors.New("corrupt index header: bad magic")
	}
	dim, count := int(header.Dim), int(header.Count)
	if dim == 0 || r.Len() != 4*dim*count {
		return 0, nil, fmt.Errorf("corrupt index: %d bytes for %d vectors of dimension %d", r.Len(), count, dim)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vectors[i]); err != nil {
			return 0, nil, fmt.Errorf("corrupt index: %w", err)
		}
	}
	return dim, vectors, nil
}

// persist writes the index before the metadata so that metadata on disk
// never references an index it does not checksum.
func (s *FlatStore) persist(dim int, vectors [][]float32, chunks, texts []string, fullText string) error {
	index := encodeIndex(dim, vectors)
	sum := sha256.Sum256(index)

	raw, err := msgpack.Marshal(&metadata{
		Version:     metadataVersion,
		Dimension:   dim,
		VectorCount: len(vectors),
		IndexSHA256: hex.EncodeToString(sum[:]),
		Chunks:      chunks,
		Texts:       texts,
		FullText:    fullText,
	})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := helper.WriteFileAtomic(s.indexPath(), index); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := helper.WriteFileAtomic(s.metadataPath(), raw); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (s *FlatStore) Store(_ context.Context, vectors [][]float32, chunks, texts []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := ValidateBatch(vectors, chunks, texts, s.dim)
	if err != nil {
		log.Error().Err(err).Msg("Rejected vectors")
		return false
	}

	allVectors := append(slices.Clip(s.vectors), vectors...)
	allChunks := append(slices.Clip(s.chunks), chunks...)
	allTexts := append(slices.Clip(s.texts), texts...)

	if err := s.persist(dim, allVectors, allChunks, allTexts, s.fullText); err != nil {
		log.Error().Err(err).Msg("Error storing vectors")
		return false
	}

	s.dim = dim
	s.vectors = allVectors
	s.chunks = allChunks
	s.texts = allTexts
	log.Info().Int("added", len(vectors)).Int("total", len(allVectors)).Msg("Stored vectors")
	return true
}

func (s *FlatStore) Search(_ context.Context, query []float32, k int) SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return Failed(ErrNoIndex)
	}
	if k <= 0 {
		return Failed("invalid k %d", k)
	}
	if len(query) != s.dim {
		return Failed("query has dimension %d, index has %d", len(query), s.dim)
	}

	type hit struct {
		pos  int
		dist float32
	}
	hits := make([]hit, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = hit{pos: i, dist: squaredL2(query, v)}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(a.dist, b.dist) })

	k = CapK(k, len(hits))
	matches := make([]Match, 0, k)
	for _, h := range hits[:k] {
		if h.pos >= len(s.chunks) || h.pos >= len(s.texts) {
			continue
		}
		matches = append(matches, Match{Chunk: s.chunks[h.pos], SourceText: s.texts[h.pos], Distance: h.dist})
	}
	return SearchResult{Success: true, Matches: matches}
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (s *FlatStore) Clear(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{s.metadataPath(), s.indexPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Error().Err(err).Str("path", p).Msg("Error clearing vector store")
			return false
		}
	}
	s.reset()
	log.Info().Msg("Vector store cleared")
	return true
}

func (s *FlatStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *FlatStore) FullText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullText
}

// SetFullText replaces the document text kept with the index. It is written
// to disk with the next Store.
func (s *FlatStore) SetFullText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullText = text
}

func (s *FlatStore) Close() error { return nil }
