// Package events distributes entity change notifications. A Bus fans
// updates out to in-process subscribers; the SSE client and writer carry
// them between processes.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wesm/vaultsearch/internal/entity"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Bus fans out batches of entity updates to subscribers. Publishing never
// blocks: a subscriber whose queue is full misses the batch.
type Bus struct {
	buffer int
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan []entity.Update
}

// NewBus creates a bus. A buffer <= 0 uses DefaultBuffer.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{buffer: buffer, logger: logger, subs: make(map[int]chan []entity.Update)}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan []entity.Update, func()) {
	ch := make(chan []entity.Update, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers updates to every subscriber.
func (b *Bus) Publish(updates []entity.Update) {
	if len(updates) == 0 {
		return
	}
	batch := append([]entity.Update(nil), updates...)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- batch:
		default:
			b.logger.Warn("event subscriber queue full, dropping updates", "subscriber", id, "updates", len(batch))
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Pump subscribes and passes every batch to sink until ctx is done.
func (b *Bus) Pump(ctx context.Context, sink func([]entity.Update)) error {
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-ch:
			sink(batch)
		}
	}
}
