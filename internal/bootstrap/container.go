// ABOUTME: Composition root that builds every MindAid service from configuration
// ABOUTME: Shared by the MCP server and the CLI commands
package bootstrap

import (
	"context"
	"fmt"

	"github.com/harper/mindaid/internal/config"
	"github.com/harper/mindaid/internal/core"
	"github.com/harper/mindaid/internal/llm"
	"github.com/harper/mindaid/internal/lock"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container holds the wired services. Fields are nil when the level of
// wiring that needs them was not requested.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	Store  *sqlite.Storage
	Locker lock.Locker
	Users  *core.UserService

	LLM       *llm.OpenAIClient
	Engine    *core.QuestionnaireEngine
	Index     *core.RetrievalIndex
	Diagnosis *core.DiagnosisService
	Memory    *core.MemoryManager
	Counselor *core.Counselor

	redis *redis.Client
}

// NewBase opens the store and locker and builds the user service and memory
// manager. No model service is contacted, so account commands run without an
// API key.
func NewBase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := sqlite.NewStorageWithPath(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	c := &Container{Config: cfg, Logger: logger, Store: store}

	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := c.redis.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: redis at %s: %v", models.ErrConfiguration, cfg.RedisAddr, err)
		}
		c.Locker = lock.NewRedisLocker(c.redis, cfg.LockTTL)
		logger.Info("using redis locker", zap.String("addr", cfg.RedisAddr))
	} else {
		c.Locker = lock.NewKeyedMutex()
	}

	c.Users = core.NewUserService(store, c.Locker, logger)
	c.Memory = core.NewMemoryManager(store, c.Locker, cfg.MemoryBudgetChars, logger)
	return c, nil
}

// New builds the full service graph: model client, question trees, the
// retrieval index over the corpus, diagnosis and counseling.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c, err := NewBase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.wireModels(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) wireModels(ctx context.Context) error {
	cfg := c.Config

	client, err := llm.NewOpenAIClientWithConfig(&llm.ClientConfig{
		APIKey:          cfg.OpenAIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		ChatModel:       cfg.ChatModel,
		ClassifierModel: cfg.ClassifierModel,
		EmbeddingModel:  cfg.EmbeddingModel,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
	})
	if err != nil {
		return err
	}
	c.LLM = client

	engine, err := LoadEngine(cfg)
	if err != nil {
		return err
	}
	c.Engine = engine

	index, err := BuildIndex(ctx, cfg, client, c.Store, c.Logger)
	if err != nil {
		return err
	}
	c.Index = index

	classifier := core.NewClassificationAdapter(client, engine.Labels(), core.ClassifierOptions{
		MaxInputChars:   cfg.ClassifierMaxInputChars,
		AllowTruncation: cfg.AllowTruncation,
		Timeout:         cfg.Timeout,
	}, c.Logger)
	c.Diagnosis = core.NewDiagnosisService(c.Store, engine, classifier, c.Locker, c.Logger)

	hydrator := core.NewContextHydrator(core.CounselorSystemPrompt, cfg.GenerationMaxInputTokens)
	c.Counselor = core.NewCounselor(c.Store, c.Memory, index, hydrator, client, core.CounselorOptions{
		TopK:    cfg.RetrievalTopK,
		Timeout: cfg.Timeout,
	}, c.Logger)

	c.Logger.Info("services ready",
		zap.Int("question_trees", len(engine.Labels())),
		zap.Int("corpus_chunks", index.Len()),
		zap.String("embedding_model", index.Model()))
	return nil
}

// LoadEngine builds the questionnaire engine from QUESTIONNAIRE_FILE or the
// embedded defaults
func LoadEngine(cfg *config.Config) (*core.QuestionnaireEngine, error) {
	var (
		trees []*models.QuestionTree
		err   error
	)
	if cfg.QuestionnaireFile != "" {
		trees, err = core.LoadQuestionTreesFile(cfg.QuestionnaireFile)
	} else {
		trees, err = core.DefaultQuestionTrees()
	}
	if err != nil {
		return nil, err
	}
	return core.NewQuestionnaireEngine(trees)
}

// BuildIndex loads and chunks the corpus, then embeds it through the store's
// embedding cache
func BuildIndex(ctx context.Context, cfg *config.Config, embedder core.Embedder, store *sqlite.Storage, logger *zap.Logger) (*core.RetrievalIndex, error) {
	chunker, err := core.NewChunkEngine(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	docs, err := core.LoadCorpus(cfg.CorpusDir)
	if err != nil {
		return nil, err
	}
	chunks, err := core.ChunkCorpus(chunker, docs)
	if err != nil {
		return nil, err
	}
	return core.BuildRetrievalIndex(ctx, embedder, store, chunks, cfg.QueryCacheTTL, logger)
}

// Close releases the store and the redis connection
func (c *Container) Close() error {
	var firstErr error
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = c.Logger.Sync()
	return firstErr
}
