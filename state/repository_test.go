package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingStore struct {
	*MemoryStore
	mu   sync.Mutex
	sets int
}

func (c *countingStore) Set(ctx context.Context, key string, v any) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.MemoryStore.Set(ctx, key, v)
}

func TestRepositoryLoadDefault(t *testing.T) {
	t.Parallel()

	r := NewRepository(NewMemoryStore(), "", zaptest.NewLogger(t))
	st, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), st)
}

func TestRepositoryCorruptFailsOpen(t *testing.T) {
	t.Parallel()

	mem := NewMemoryStore()
	mem.SetRaw(DefaultKey, []byte("garbage"))
	r := NewRepository(mem, DefaultKey, zaptest.NewLogger(t))

	st, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), st)
}

func TestRepositoryInvalidFailsOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"unknown position", `{"position":"short","size":-3,"entryPrice":-1}`},
		{"negative long size", `{"position":"long","size":-3,"entryPrice":50}`},
		{"long without entry", `{"position":"long","size":10}`},
		{"flat with size", `{"position":"","size":4}`},
		{"unknown intent", `{"intent":"sell"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mem := NewMemoryStore()
			mem.SetRaw(DefaultKey, []byte(tt.raw))
			r := NewRepository(mem, DefaultKey, zaptest.NewLogger(t))

			st, err := r.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, Default(), st)

			// mutations start from the default too
			st, err = r.Mutate(context.Background(), func(s *TradeState) error {
				s.PauseNewEntries = true
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, TradeState{PauseNewEntries: true}, st)
		})
	}
}

func TestRepositoryMutateSkipsUnchangedWrite(t *testing.T) {
	t.Parallel()

	cs := &countingStore{MemoryStore: NewMemoryStore()}
	r := NewRepository(cs, DefaultKey, zaptest.NewLogger(t))
	ctx := context.Background()

	st, err := r.Mutate(ctx, func(s *TradeState) error {
		s.PauseNewEntries = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, st.PauseNewEntries)
	assert.Equal(t, 1, cs.sets)

	_, err = r.Mutate(ctx, func(s *TradeState) error {
		s.PauseNewEntries = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cs.sets)
}

func TestRepositoryMutateErrorWritesNothing(t *testing.T) {
	t.Parallel()

	r := NewRepository(NewMemoryStore(), DefaultKey, zaptest.NewLogger(t))
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := r.Mutate(ctx, func(s *TradeState) error {
		s.Open(5, 10, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	st, err := r.Load(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsLong())
}

func TestRepositoryConcurrentMutationsKeepEveryEdit(t *testing.T) {
	t.Parallel()

	r := NewRepository(NewMemoryStore(), DefaultKey, zaptest.NewLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Mutate(ctx, func(s *TradeState) error {
				s.Size++
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Mutate(ctx, func(s *TradeState) error {
				s.EntryPrice++
				return nil
			})
		}()
	}
	wg.Wait()

	st, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50.0, st.Size)
	assert.Equal(t, 50.0, st.EntryPrice)
}

func TestRepositoryResetClearsPause(t *testing.T) {
	t.Parallel()

	r := NewRepository(NewMemoryStore(), DefaultKey, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, r.Save(ctx, TradeState{Position: PositionLong, Size: 1, EntryPrice: 1, PauseNewEntries: true}))

	require.NoError(t, r.Reset(ctx))
	st, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Default(), st)
}
