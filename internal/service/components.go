package service

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/metrics"
	"github.com/xkilldash9x/covergen/internal/rl"
)

// Components holds everything an agent or genetic run needs.
type Components struct {
	LLM        schemas.LLMClient
	Generator  schemas.Generator
	Evaluator  schemas.Evaluator
	Recorder   *metrics.Recorder
	TableStore rl.TableStore
	// History is nil when run history is disabled.
	History schemas.HistoryStore
	DBPool  *pgxpool.Pool

	logger *zap.Logger
}

// Shutdown releases the table store and then the database pool. It is safe
// to call on partially built components.
func (c *Components) Shutdown() {
	if c == nil {
		return
	}
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.TableStore != nil {
		if err := c.TableStore.Close(); err != nil {
			logger.Warn("Error closing Q-table store.", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	logger.Debug("All components shut down.")
}
