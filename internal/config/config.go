package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendFlat     = "flat"
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"

	StrategyToken  = "token"
	StrategyWindow = "window"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"
)

type Config struct {
	LogLevel     string            `yaml:"log_level"`
	TempDir      string            `yaml:"temp_dir"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	VisionLLM    LLMConfig         `yaml:"vision_llm"`
	RAG          RAGConfig         `yaml:"rag"`
	Chunker      ChunkerConfig     `yaml:"chunker"`
	OCR          OCRConfig         `yaml:"ocr"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Database     DatabaseConfig    `yaml:"database"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	ChunkSize          int     `yaml:"chunk_size"`
	ChunkOverlap       int     `yaml:"chunk_overlap"`
	TopK               int     `yaml:"top_k"`
	AnswerTemperature  float64 `yaml:"answer_temperature"`
	AnswerMaxTokens    int     `yaml:"answer_max_tokens"`
	SummaryTemperature float64 `yaml:"summary_temperature"`
	SummaryMaxTokens   int     `yaml:"summary_max_tokens"`
	SummaryMaxChars    int     `yaml:"summary_max_chars"`
	EncryptionKey      string  `yaml:"encryption_key"`
}

// ChunkerConfig selects the segmentation strategy used before embedding.
type ChunkerConfig struct {
	Strategy      string `yaml:"strategy"`
	TokenBudget   int    `yaml:"token_budget"`
	CharsPerToken int    `yaml:"chars_per_token"`
}

type OCRConfig struct {
	EagerInit     bool          `yaml:"eager_init"`
	MinTextLength int           `yaml:"min_text_length"`
	Timeout       time.Duration `yaml:"timeout"`
	InitAttempts  int           `yaml:"init_attempts"`
	InitBackoff   time.Duration `yaml:"init_backoff"`
}

type VectorStoreConfig struct {
	Backend        string `yaml:"backend"`
	Dir            string `yaml:"dir"`
	CollectionName string `yaml:"collection_name"`
	Compress       bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// LoadConfig reads the YAML config at path on top of the defaults. Environment
// variables from envFiles (".env" when none are given) are loaded first and
// ${VAR} references in the YAML are expanded. A missing config file yields the
// defaults.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
	} else if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		TempDir:  os.TempDir(),
		EmbedLLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-large",
		},
		InferenceLLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4-turbo-preview",
		},
		VisionLLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4o-mini",
		},
		RAG: RAGConfig{
			ChunkSize:          1000,
			ChunkOverlap:       200,
			TopK:               5,
			AnswerTemperature:  0.3,
			AnswerMaxTokens:    1024,
			SummaryTemperature: 0.7,
			SummaryMaxTokens:   2048,
			SummaryMaxChars:    24000,
		},
		Chunker: ChunkerConfig{
			Strategy:      StrategyToken,
			TokenBudget:   1000,
			CharsPerToken: 4,
		},
		OCR: OCRConfig{
			EagerInit:     true,
			MinTextLength: 100,
			Timeout:       30 * time.Second,
			InitAttempts:  3,
			InitBackoff:   2 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Backend:        BackendFlat,
			Dir:            "./vector_store",
			CollectionName: "document_chunks",
		},
		Database: DatabaseConfig{
			Driver: DriverPgdriver,
		},
	}
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.TempDir == "" {
		cfg.TempDir = def.TempDir
	}
	applyLLMDefaults(&cfg.EmbedLLM, def.EmbedLLM)
	applyLLMDefaults(&cfg.InferenceLLM, def.InferenceLLM)
	applyLLMDefaults(&cfg.VisionLLM, def.VisionLLM)

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = def.RAG.ChunkSize
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize / 5
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.RAG.AnswerMaxTokens <= 0 {
		cfg.RAG.AnswerMaxTokens = def.RAG.AnswerMaxTokens
	}
	if cfg.RAG.SummaryMaxTokens <= 0 {
		cfg.RAG.SummaryMaxTokens = def.RAG.SummaryMaxTokens
	}
	if cfg.RAG.SummaryMaxChars <= 0 {
		cfg.RAG.SummaryMaxChars = def.RAG.SummaryMaxChars
	}

	if cfg.Chunker.Strategy == "" {
		cfg.Chunker.Strategy = def.Chunker.Strategy
	}
	if cfg.Chunker.TokenBudget <= 0 {
		cfg.Chunker.TokenBudget = def.Chunker.TokenBudget
	}
	if cfg.Chunker.CharsPerToken <= 0 {
		cfg.Chunker.CharsPerToken = def.Chunker.CharsPerToken
	}

	if cfg.OCR.MinTextLength <= 0 {
		cfg.OCR.MinTextLength = def.OCR.MinTextLength
	}
	if cfg.OCR.Timeout <= 0 {
		cfg.OCR.Timeout = def.OCR.Timeout
	}
	if cfg.OCR.InitAttempts <= 0 {
		cfg.OCR.InitAttempts = def.OCR.InitAttempts
	}
	if cfg.OCR.InitBackoff < 0 {
		cfg.OCR.InitBackoff = def.OCR.InitBackoff
	}

	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = def.VectorStore.Backend
	}
	if cfg.VectorStore.Dir == "" {
		cfg.VectorStore.Dir = def.VectorStore.Dir
	}
	if cfg.VectorStore.CollectionName == "" {
		cfg.VectorStore.CollectionName = def.VectorStore.CollectionName
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = def.Database.Driver
	}
}

func applyLLMDefaults(llm *LLMConfig, def LLMConfig) {
	if llm.Provider == "" {
		llm.Provider = def.Provider
	}
	if llm.Model == "" {
		llm.Model = def.Model
	}
	if llm.Provider == ProviderOpenAI && llm.Key == "" {
		llm.Key = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	for name, llm := range map[string]LLMConfig{
		"embed_llm":     c.EmbedLLM,
		"inference_llm": c.InferenceLLM,
		"vision_llm":    c.VisionLLM,
	} {
		switch llm.Provider {
		case ProviderOpenAI, ProviderOllama:
		default:
			return fmt.Errorf("%s: unknown provider %q", name, llm.Provider)
		}
	}
	switch c.Chunker.Strategy {
	case StrategyToken, StrategyWindow:
	default:
		return fmt.Errorf("chunker: unknown strategy %q", c.Chunker.Strategy)
	}
	switch c.VectorStore.Backend {
	case BackendFlat, BackendChromem:
	case BackendPgvector:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database: dsn is required for the pgvector backend")
		}
		if c.Database.Driver != DriverPgdriver && c.Database.Driver != DriverPq {
			return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("vector_store: unknown backend %q", c.VectorStore.Backend)
	}
	return nil
}
