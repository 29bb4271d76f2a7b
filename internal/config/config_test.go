package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RAG.TopK != 5 || cfg.RAG.ChunkSize != 1000 || cfg.RAG.ChunkOverlap != 200 {
		t.Fatalf("unexpected rag defaults: %+v", cfg.RAG)
	}
	if cfg.OCR.Timeout != 30*time.Second || cfg.OCR.InitAttempts != 3 || !cfg.OCR.EagerInit {
		t.Fatalf("unexpected ocr defaults: %+v", cfg.OCR)
	}
	if cfg.VectorStore.Backend != BackendFlat || cfg.VectorStore.Dir != "./vector_store" {
		t.Fatalf("unexpected vector store defaults: %+v", cfg.VectorStore)
	}
	if cfg.Chunker.Strategy != StrategyToken {
		t.Fatalf("expected token strategy, got %q", cfg.Chunker.Strategy)
	}
}

func TestLoadConfigOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("PDFRAG_TEST_KEY", "sk-test")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
log_level: debug
inference_llm:
  provider: ollama
  base_url: http://localhost:11434
  model: llama3
embed_llm:
  key: ${PDFRAG_TEST_KEY}
rag:
  top_k: 3
  chunk_size: 500
  chunk_overlap: 900
ocr:
  eager_init: false
  timeout: 5s
vector_store:
  backend: chromem
  dir: /tmp/vs
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level: got %q", cfg.LogLevel)
	}
	if cfg.InferenceLLM.Provider != ProviderOllama || cfg.InferenceLLM.Model != "llama3" {
		t.Errorf("inference llm: %+v", cfg.InferenceLLM)
	}
	if cfg.EmbedLLM.Key != "sk-test" {
		t.Errorf("expected env expansion, got %q", cfg.EmbedLLM.Key)
	}
	if cfg.EmbedLLM.Model != "text-embedding-3-large" {
		t.Errorf("embed model default lost: %q", cfg.EmbedLLM.Model)
	}
	if cfg.RAG.TopK != 3 {
		t.Errorf("top_k: got %d", cfg.RAG.TopK)
	}
	if cfg.RAG.ChunkOverlap != 100 {
		t.Errorf("overlap >= size should fall back to size/5, got %d", cfg.RAG.ChunkOverlap)
	}
	if cfg.OCR.EagerInit {
		t.Errorf("eager_init should be false")
	}
	if cfg.OCR.Timeout != 5*time.Second {
		t.Errorf("timeout: got %v", cfg.OCR.Timeout)
	}
	if cfg.OCR.InitBackoff != 2*time.Second {
		t.Errorf("backoff default lost: %v", cfg.OCR.InitBackoff)
	}
	if cfg.VectorStore.Backend != BackendChromem || cfg.VectorStore.Dir != "/tmp/vs" {
		t.Errorf("vector store: %+v", cfg.VectorStore)
	}
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "PDFRAG_TEST_MODEL=nomic-embed-text\n")
	t.Cleanup(func() { os.Unsetenv("PDFRAG_TEST_MODEL") })
	path := writeFile(t, dir, "config.yaml", "embed_llm:\n  provider: ollama\n  model: ${PDFRAG_TEST_MODEL}\n")

	cfg, err := LoadConfig(path, envPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.EmbedLLM.Model != "nomic-embed-text" {
		t.Fatalf("expected model from .env, got %q", cfg.EmbedLLM.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown provider", func(c *Config) { c.VisionLLM.Provider = "bedrock" }, true},
		{"unknown strategy", func(c *Config) { c.Chunker.Strategy = "paragraph" }, true},
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "faiss" }, true},
		{"pgvector without dsn", func(c *Config) { c.VectorStore.Backend = BackendPgvector }, true},
		{"pgvector with dsn", func(c *Config) {
			c.VectorStore.Backend = BackendPgvector
			c.Database.DSN = "postgres://localhost:5432/rag"
		}, false},
		{"pgvector bad driver", func(c *Config) {
			c.VectorStore.Backend = BackendPgvector
			c.Database.DSN = "postgres://localhost:5432/rag"
			c.Database.Driver = "mysql"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "rag: [unterminated")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
