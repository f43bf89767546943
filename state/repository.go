package state

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Repository owns the trade-state key. Every read-modify-write goes
// through Mutate, which holds a mutex for the whole cycle so the event
// classifier and the trade cycle cannot drop each other's edits.
type Repository struct {
	mu    sync.Mutex
	store Store
	key   string
	log   *zap.Logger
}

func NewRepository(store Store, key string, log *zap.Logger) *Repository {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{store: store, key: key, log: log}
}

// Load returns the current trade state. Absent state yields Default. A
// corrupt stored value also yields Default: the loss is logged, not
// returned, so a damaged row never wedges the agent.
func (r *Repository) Load(ctx context.Context) (TradeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Repository) loadLocked(ctx context.Context) (TradeState, error) {
	var st TradeState
	found, err := r.store.Get(ctx, r.key, &st)
	switch {
	case errors.Is(err, ErrCorrupt):
		r.log.Warn("discarding corrupt trade state", zap.String("key", r.key), zap.Error(err))
		return Default(), nil
	case err != nil:
		return TradeState{}, err
	case !found:
		return Default(), nil
	}
	if err := st.Validate(); err != nil {
		r.log.Warn("discarding invalid trade state", zap.String("key", r.key), zap.Error(err))
		return Default(), nil
	}
	return st, nil
}

// Save replaces the stored state wholesale.
func (r *Repository) Save(ctx context.Context, st TradeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Set(ctx, r.key, st)
}

// Mutate loads the state, applies fn and writes the result back if fn
// changed anything. The returned state is what is now stored. If fn
// returns an error nothing is written.
func (r *Repository) Mutate(ctx context.Context, fn func(*TradeState) error) (TradeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, err := r.loadLocked(ctx)
	if err != nil {
		return TradeState{}, err
	}
	after := before
	if err := fn(&after); err != nil {
		return before, err
	}
	if after == before {
		return after, nil
	}
	if err := r.store.Set(ctx, r.key, after); err != nil {
		return before, err
	}
	return after, nil
}

// Reset forces the default shape, pause flag included.
func (r *Repository) Reset(ctx context.Context) error {
	return r.Save(ctx, Default())
}
