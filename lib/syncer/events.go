package syncer

import (
	"sync"
	"time"
)

// EventType tags a sync pipeline notification.
type EventType string

const (
	EventSyncStarted EventType = "sync_started"
	EventSyncStopped EventType = "sync_stopped"
)

// Event is an asynchronous notification emitted by the synchronizer. It is
// consumed by observers (the /events feed), never by the coordinator.
type Event struct {
	Type       EventType `json:"type"`
	CycleID    string    `json:"cycle_id"`
	DataSource string    `json:"data_source,omitempty"`
	Uploaded   int       `json:"uploaded,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Broadcaster fans events out to subscribers. Publishing never blocks: slow
// subscribers drop events, preferring liveness over completeness.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer. The returned cancel func must be
// called to release the subscription.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
