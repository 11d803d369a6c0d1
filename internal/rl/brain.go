// Package rl implements a tabular Q-learning brain with pluggable persistence.
package rl

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
)

// Terminal is the sentinel next-state that disables lookahead in Learn.
const Terminal = "DONE"

// TableStore persists a Q-table between runs.
type TableStore interface {
	// Load returns the stored table. A missing table is not an error.
	Load(ctx context.Context) (schemas.QTable, error)
	// Save replaces the stored table with t.
	Save(ctx context.Context, t schemas.QTable) error
	Close() error
}

// Brain is an epsilon-greedy Q-learner over a closed action set.
type Brain struct {
	mu      sync.Mutex
	actions []string
	table   schemas.QTable
	store   TableStore
	cfg     config.BrainConfig
	rng     *rand.Rand
	logger  *zap.Logger
	dirty   bool
}

// NewBrain builds a brain and restores its table from store. A store that
// cannot be read leaves the brain empty rather than failing.
func NewBrain(ctx context.Context, actions []string, store TableStore, cfg config.BrainConfig, rng *rand.Rand, logger *zap.Logger) (*Brain, error) {
	if len(actions) == 0 {
		return nil, errors.New("brain requires at least one action")
	}
	if store == nil {
		return nil, errors.New("brain requires a table store")
	}
	b := &Brain{
		actions: append([]string(nil), actions...),
		table:   make(schemas.QTable),
		store:   store,
		cfg:     cfg,
		rng:     rng,
		logger:  logger.Named("brain"),
	}

	loaded, err := store.Load(ctx)
	switch {
	case err != nil:
		b.logger.Warn("Could not load Q-table; starting empty.", zap.Error(err))
	case loaded != nil:
		b.table = loaded
		b.logger.Debug("Q-table loaded.", zap.Int("states", len(loaded)))
	}
	return b, nil
}

// ensureRow gives state a row with every action, keeping existing values.
// Must be called with mu held.
func (b *Brain) ensureRow(state string) map[string]float64 {
	row := b.table[state]
	if row == nil {
		row = make(map[string]float64, len(b.actions))
		b.table[state] = row
	}
	for _, a := range b.actions {
		if _, ok := row[a]; !ok {
			row[a] = 0.0
		}
	}
	return row
}

// ChooseAction picks the greedy action with probability ExploitationRate and
// a uniformly random action otherwise. Greedy ties are broken uniformly.
func (b *Brain) ChooseAction(state string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	row := b.ensureRow(state)
	if b.rng.Float64() < b.cfg.ExploitationRate {
		best := bestActions(b.actions, row)
		return best[b.rng.Intn(len(best))]
	}
	return b.actions[b.rng.Intn(len(b.actions))]
}

// bestActions returns every action sharing the maximal value, in action order.
func bestActions(actions []string, row map[string]float64) []string {
	var best []string
	for _, a := range actions {
		switch {
		case len(best) == 0 || row[a] > row[best[0]]:
			best = append(best[:0], a)
		case row[a] == row[best[0]]:
			best = append(best, a)
		}
	}
	return best
}

// Learn applies one temporal-difference update. With write-through enabled
// the whole table is persisted before returning.
func (b *Brain) Learn(ctx context.Context, state, action string, reward float64, next string) error {
	b.mu.Lock()
	row := b.ensureRow(state)
	nextRow := b.ensureRow(next)

	target := reward
	if next != Terminal {
		target = reward + b.cfg.DiscountFactor*maxValue(b.actions, nextRow)
	}
	old := row[action]
	row[action] = old + b.cfg.LearningRate*(target-old)
	b.dirty = true
	updated := row[action]
	b.mu.Unlock()

	b.logger.Debug("Q-value updated.",
		zap.String("state", state),
		zap.String("action", action),
		zap.Float64("reward", reward),
		zap.String("next_state", next),
		zap.Float64("old", old),
		zap.Float64("new", updated))

	if b.cfg.WriteThrough {
		return b.Flush(ctx)
	}
	return nil
}

func maxValue(actions []string, row map[string]float64) float64 {
	m := row[actions[0]]
	for _, a := range actions[1:] {
		if row[a] > m {
			m = row[a]
		}
	}
	return m
}

// Value returns the stored estimate for (state, action) and whether the
// state has a row.
func (b *Brain) Value(state, action string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.table[state]
	if !ok {
		return 0, false
	}
	return row[action], true
}

// Snapshot returns a deep copy of the table.
func (b *Brain) Snapshot() schemas.QTable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.table.Clone()
}

// Actions returns the configured action set.
func (b *Brain) Actions() []string {
	return append([]string(nil), b.actions...)
}

// Flush persists the table if it changed since the last flush.
func (b *Brain) Flush(ctx context.Context) error {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return nil
	}
	snapshot := b.table.Clone()
	b.dirty = false
	b.mu.Unlock()

	if err := b.store.Save(ctx, snapshot); err != nil {
		b.mu.Lock()
		b.dirty = true
		b.mu.Unlock()
		return fmt.Errorf("failed to persist Q-table: %w", err)
	}
	return nil
}

// Close flushes pending changes and releases the store.
func (b *Brain) Close(ctx context.Context) error {
	flushErr := b.Flush(ctx)
	closeErr := b.store.Close()
	return errors.Join(flushErr, closeErr)
}
