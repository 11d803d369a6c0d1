// Package service wires configuration into the runtime components shared by
// the CLI commands.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/llmclient"
	"github.com/xkilldash9x/covergen/internal/rl"
	"github.com/xkilldash9x/covergen/internal/store"
)

// InitializeLLMClient creates the tier router from the llm section.
func InitializeLLMClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. Test generation will not be possible.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// InitializeDBPool opens and verifies a PostgreSQL connection pool.
func InitializeDBPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url is not configured")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	logger.Info("Connected to PostgreSQL.", zap.Int32("max_conns", poolConfig.MaxConns))
	return pool, nil
}

// InitializePostgresStore wraps pool in a store and makes sure its tables exist.
func InitializePostgresStore(ctx context.Context, pool store.DBPool, logger *zap.Logger) (*store.Store, error) {
	pg, err := store.New(ctx, pool, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

// InitializeTableStore selects the Q-table backend named by cfg.Store. pg is
// only consulted for the postgres backend.
func InitializeTableStore(ctx context.Context, cfg config.BrainConfig, pg *store.Store, logger *zap.Logger) (rl.TableStore, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("Using an in-memory Q-table; learning will be lost on exit.")
		return rl.NewMemoryStore(nil), nil
	case "file":
		fs, err := rl.NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Debug("Using file Q-table.", zap.String("path", fs.Path()))
		return fs, nil
	case "sqlite":
		return rl.NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres Q-table store requires a database connection")
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unsupported Q-table store type: %s", cfg.Store)
	}
}

// NewRand returns a generator seeded with seed, or with the clock when seed
// is zero.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
