package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func batch() ([][]float32, []string, []string) {
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	chunks := []string{"red", "green", "blue"}
	texts := []string{"doc", "doc", "doc"}
	return vectors, chunks, texts
}

func storeBatch(s Store) bool {
	vectors, chunks, texts := batch()
	return s.Store(context.Background(), vectors, chunks, texts)
}

func openFlat(t *testing.T, dir string) *FlatStore {
	t.Helper()
	s, err := NewFlatStore(dir)
	if err != nil {
		t.Fatalf("NewFlatStore: %v", err)
	}
	return s
}

func TestFlatStoreThenSearch(t *testing.T) {
	ctx := context.Background()
	s := openFlat(t, t.TempDir())

	if !storeBatch(s) {
		t.Fatal("Store failed")
	}
	res := s.Search(ctx, []float32{0, 1, 0}, 2)
	if !res.Success {
		t.Fatalf("Search failed: %s", res.Error)
	}
	if len(res.Matches) != 2 || res.Matches[0].Chunk != "green" {
		t.Fatalf("unexpected matches %+v", res.Matches)
	}
	if res.Matches[0].Distance > 1e-6 {
		t.Fatalf("exact match distance %v", res.Matches[0].Distance)
	}
	if res.Matches[1].Distance != 2 {
		t.Fatalf("squared L2 to an orthogonal unit vector should be 2, got %v", res.Matches[1].Distance)
	}
	if res.Matches[0].SourceText != "doc" {
		t.Fatalf("source text %q", res.Matches[0].SourceText)
	}
}

func TestFlatStoreCapsK(t *testing.T) {
	ctx := context.Background()
	s := openFlat(t, t.TempDir())
	storeBatch(s)

	res := s.Search(ctx, []float32{1, 0, 0}, 50)
	if !res.Success || len(res.Matches) != 3 {
		t.Fatalf("got %+v", res)
	}
}

func TestFlatStoreSearchFailures(t *testing.T) {
	ctx := context.Background()
	s := openFlat(t, t.TempDir())

	if res := s.Search(ctx, []float32{1, 0, 0}, 1); res.Success || res.Error != ErrNoIndex {
		t.Fatalf("empty store: %+v", res)
	}
	storeBatch(s)
	if res := s.Search(ctx, []float32{1, 0}, 1); res.Success {
		t.Fatal("dimension mismatch should fail")
	}
	if res := s.Search(ctx, []float32{1, 0, 0}, 0); res.Success {
		t.Fatal("k=0 should fail")
	}
}

func TestFlatStoreRejectsBadBatches(t *testing.T) {
	ctx := context.Background()
	s := openFlat(t, t.TempDir())
	storeBatch(s)

	tests := []struct {
		name    string
		vectors [][]float32
		chunks  []string
		texts   []string
	}{
		{"length mismatch", [][]float32{{1, 1, 1}}, []string{"a", "b"}, []string{"t"}},
		{"dimension change", [][]float32{{1, 1}}, []string{"a"}, []string{"t"}},
		{"empty batch", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.Store(ctx, tt.vectors, tt.chunks, tt.texts) {
				t.Fatal("expected failure")
			}
			if s.Len() != 3 {
				t.Fatalf("store changed after failure: %d", s.Len())
			}
		})
	}
}

func TestFlatStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openFlat(t, dir)
	s.SetFullText("the whole document")
	storeBatch(s)
	s.Store(ctx, [][]float32{{1, 1, 0}}, []string{"yellow"}, []string{"doc"})

	reopened := openFlat(t, dir)
	if reopened.Len() != 4 {
		t.Fatalf("reopened with %d vectors", reopened.Len())
	}
	if reopened.FullText() != "the whole document" {
		t.Fatalf("full text %q", reopened.FullText())
	}
	res := reopened.Search(ctx, []float32{1, 1, 0}, 1)
	if !res.Success || res.Matches[0].Chunk != "yellow" {
		t.Fatalf("got %+v", res)
	}
}

func TestFlatStoreClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openFlat(t, dir)
	s.SetFullText("text")
	storeBatch(s)

	if !s.Clear(ctx) {
		t.Fatal("Clear failed")
	}
	if res := s.Search(ctx, []float32{1, 0, 0}, 1); res.Success || res.Error != ErrNoIndex {
		t.Fatalf("search after clear: %+v", res)
	}
	if s.FullText() != "" {
		t.Fatal("full text survived clear")
	}
	for _, name := range []string{IndexFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s still on disk", name)
		}
	}

	if !s.Store(ctx, [][]float32{{0.5, 0.5}}, []string{"fresh"}, []string{"new"}) {
		t.Fatal("store after clear failed")
	}
	if s.Len() != 1 {
		t.Fatalf("store after clear should start empty, got %d", s.Len())
	}
}

func TestFlatStoreResetsOnCorruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, dir string)
	}{
		{"checksum mismatch", func(t *testing.T, dir string) {
			path := filepath.Join(dir, IndexFile)
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			data[len(data)-1] ^= 0xff
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"garbage metadata", func(t *testing.T, dir string) {
			if err := os.WriteFile(filepath.Join(dir, MetadataFile), []byte("not msgpack at all"), 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"missing index", func(t *testing.T, dir string) {
			if err := os.Remove(filepath.Join(dir, IndexFile)); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := openFlat(t, dir)
			storeBatch(s)

			tt.corrupt(t, dir)

			reopened := openFlat(t, dir)
			if reopened.Len() != 0 {
				t.Fatalf("expected reset, got %d vectors", reopened.Len())
			}
			if !storeBatch(reopened) {
				t.Fatal("store after reset failed")
			}
		})
	}
}

func TestIndexCodec(t *testing.T) {
	vectors := [][]float32{{1.5, -2}, {0, 3.25}}
	dim, got, err := decodeIndex(encodeIndex(2, vectors))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dim != 2 || len(got) != 2 || got[1][1] != 3.25 || got[0][1] != -2 {
		t.Fatalf("got %d %v", dim, got)
	}
	if _, _, err := decodeIndex([]byte("FLAT")); err == nil {
		t.Fatal("truncated header should fail")
	}
}
