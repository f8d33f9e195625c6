package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/diegodella1/slackalerts/internal/storage"
)

// Publisher receives every alert event as it is created. Implementations
// must not block the evaluation pass.
type Publisher interface {
	PublishAlert(ctx context.Context, event storage.AlertEvent)
}

// Bus fans alert events out to in-process subscribers. It backs the SSE
// stream the same way the original UI consumed a database change feed.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan storage.AlertEvent
	nextID int
	logger zerolog.Logger
}

// NewBus constructs an empty event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan storage.AlertEvent),
		logger: logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a listener and returns its channel plus a cancel func.
// The channel is buffered; a subscriber that falls behind loses events
// rather than stalling the pass.
func (b *Bus) Subscribe() (<-chan storage.AlertEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan storage.AlertEvent, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// PublishAlert delivers the event to every live subscriber.
func (b *Bus) PublishAlert(_ context.Context, event storage.AlertEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn().Int("subscriber", id).Msg("dropping alert event for slow subscriber")
		}
	}
}

// Multi fans one publish out to several publishers.
type Multi []Publisher

// PublishAlert forwards the event to each wrapped publisher.
func (m Multi) PublishAlert(ctx context.Context, event storage.AlertEvent) {
	for _, p := range m {
		p.PublishAlert(ctx, event)
	}
}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = (Multi)(nil)
)
