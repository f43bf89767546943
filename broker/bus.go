package broker

import (
	"context"
	"fmt"
	"sync"
)

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Bus fans events out to subscribers. Publish blocks on a full
// subscriber until it reads or detaches, so order events are never
// dropped for a live listener.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			// done first so a Publish blocked on this subscriber lets go
			// of the read lock before we take the write lock.
			close(s.done)
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		})
	}
	return s.ch, cancel
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}

// Len reports the number of attached subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Collect subscribes, runs send, then feeds every event to step until
// step reports done, step fails, or ctx ends. The listener is detached
// on every path.
func (b *Bus) Collect(ctx context.Context, send func() error, step func(Event) (bool, error)) error {
	ch, cancel := b.Subscribe(64)
	defer cancel()

	if send != nil {
		if err := send(); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
			return ctx.Err()
		case ev := <-ch:
			done, err := step(ev)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// Await returns the first event accepted by match.
func (b *Bus) Await(ctx context.Context, send func() error, match func(Event) bool) (Event, error) {
	var got Event
	err := b.Collect(ctx, send, func(ev Event) (bool, error) {
		if match(ev) {
			got = ev
			return true, nil
		}
		return false, nil
	})
	return got, err
}
