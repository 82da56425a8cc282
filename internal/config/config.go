// ABOUTME: Centralized configuration for the MindAid services
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

// AppName is used for the data directory and log file names
const AppName = "mindaid"

// Config holds all configuration for MindAid
type Config struct {
	// Storage settings
	DBPath string

	// Model service settings (any OpenAI-compatible endpoint)
	OpenAIKey       string
	OpenAIBaseURL   string
	ChatModel       string
	ClassifierModel string
	EmbeddingModel  string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration

	// Diagnosis settings
	ClassifierMaxInputChars int
	AllowTruncation         bool
	QuestionnaireFile       string

	// Retrieval settings
	CorpusDir     string
	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int
	QueryCacheTTL time.Duration

	// Counseling settings
	MemoryBudgetChars        int
	GenerationMaxInputTokens int

	// Locking
	RedisAddr string
	LockTTL   time.Duration

	// Logging
	LogFile       string
	LogProduction bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:                   getEnv("MINDAID_DB_PATH", DefaultDBPath()),
		OpenAIKey:                os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:            os.Getenv("OPENAI_BASE_URL"),
		ChatModel:                getEnv("MINDAID_CHAT_MODEL", "gpt-4o-mini"),
		ClassifierModel:          getEnv("MINDAID_CLASSIFIER_MODEL", "gpt-4o-mini"),
		EmbeddingModel:           getEnv("MINDAID_EMBEDDING_MODEL", "text-embedding-3-small"),
		Timeout:                  getEnvDuration("MODEL_TIMEOUT", 30*time.Second),
		MaxRetries:               getEnvInt("OPENAI_MAX_RETRIES", 3),
		RetryDelay:               getEnvDuration("OPENAI_RETRY_DELAY", 2*time.Second),
		ClassifierMaxInputChars:  getEnvInt("CLASSIFIER_MAX_INPUT_CHARS", 2000),
		AllowTruncation:          getEnvBool("CLASSIFIER_ALLOW_TRUNCATION", true),
		QuestionnaireFile:        os.Getenv("QUESTIONNAIRE_FILE"),
		CorpusDir:                os.Getenv("CORPUS_DIR"),
		ChunkSize:                getEnvInt("CORPUS_CHUNK_SIZE", 1000),
		ChunkOverlap:             getEnvInt("CORPUS_CHUNK_OVERLAP", 200),
		RetrievalTopK:            getEnvInt("RETRIEVAL_TOP_K", 3),
		QueryCacheTTL:            getEnvDuration("QUERY_CACHE_TTL", 10*time.Minute),
		MemoryBudgetChars:        getEnvInt("MEMORY_BUDGET_CHARS", 8000),
		GenerationMaxInputTokens: getEnvInt("GENERATION_MAX_INPUT_TOKENS", 6000),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		LockTTL:                  getEnvDuration("LOCK_TTL", 2*time.Minute),
		LogFile:                  os.Getenv("LOG_FILE"),
		LogProduction:            getEnvBool("LOG_PRODUCTION", false),
	}

	return cfg, cfg.Validate()
}

// SystemPromptReserveChars is the prompt space kept for the counselor's
// system instructions
const SystemPromptReserveChars = 1024

func (c *Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive, got %v", c.Timeout)
	}
	if c.ClassifierMaxInputChars <= 0 {
		return fmt.Errorf("CLASSIFIER_MAX_INPUT_CHARS must be positive, got %d", c.ClassifierMaxInputChars)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CORPUS_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CORPUS_CHUNK_OVERLAP must be 0 to CORPUS_CHUNK_SIZE-1, got %d", c.ChunkOverlap)
	}
	if c.RetrievalTopK < 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must not be negative, got %d", c.RetrievalTopK)
	}
	if c.MemoryBudgetChars <= 0 {
		return fmt.Errorf("MEMORY_BUDGET_CHARS must be positive, got %d", c.MemoryBudgetChars)
	}
	// The prompt has to hold the system instructions plus a full memory
	// budget of history.
	if c.GenerationMaxInputTokens*4 < c.MemoryBudgetChars+SystemPromptReserveChars {
		return fmt.Errorf("GENERATION_MAX_INPUT_TOKENS (%d) is too small for MEMORY_BUDGET_CHARS (%d) plus %d characters of instructions",
			c.GenerationMaxInputTokens, c.MemoryBudgetChars, SystemPromptReserveChars)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %v", c.LockTTL)
	}
	return nil
}

// DefaultDataDir returns the data directory following the XDG spec
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, AppName)
}

// DefaultDBPath returns the default database file path
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), AppName+".db")
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
