// Package suggestion manages Suggestion lifecycle (create/accept/dismiss)
// and the in-memory SSE fan-out that pushes new suggestions to connected
// operator dashboards in real time. Grounded on
// original_source/backend/app/services/proactivity/suggestion_service.py's
// SuggestionService and its module-level `_sse_queues` fan-out map.
package suggestion

import (
	"sync"

	"github.com/google/uuid"
)

// brokerQueueSize bounds each subscriber's backlog; a slow SSE client drops
// frames rather than blocking suggestion creation for everyone else.
const brokerQueueSize = 64

// Broker fans new-suggestion notifications out to every SSE stream
// subscribed to an organization. One Broker instance is shared across all
// organizations; subscriptions are partitioned by organization id.
type Broker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan []byte]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uuid.UUID]map[chan []byte]struct{})}
}

// Subscribe registers a new bounded channel for orgID's SSE stream. The
// returned cancel func must be called when the stream's request context is
// done, or the channel leaks.
func (b *Broker) Subscribe(orgID uuid.UUID) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, brokerQueueSize)

	b.mu.Lock()
	if b.subs[orgID] == nil {
		b.subs[orgID] = make(map[chan []byte]struct{})
	}
	b.subs[orgID][ch] = struct{}{}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		delete(b.subs[orgID], ch)
		if len(b.subs[orgID]) == 0 {
			delete(b.subs, orgID)
		}
		b.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish delivers data to every subscriber of orgID's stream. A full
// subscriber channel is skipped rather than blocked on — a dropped live
// update is acceptable since the dashboard's next poll/reconnect re-lists
// pending suggestions from the database.
func (b *Broker) Publish(orgID uuid.UUID, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[orgID] {
		select {
		case ch <- data:
		default:
		}
	}
}
