package events

import (
	"sync"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

// Bus fans proximity changes out to in-process subscribers. Slow
// subscribers miss changes rather than stall the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan domain.ProximityChange]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan domain.ProximityChange]struct{})}
}

func (b *Bus) Subscribe() <-chan domain.ProximityChange {
	ch := make(chan domain.ProximityChange, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Bus) Unsubscribe(sub <-chan domain.ProximityChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			close(ch)
			return
		}
	}
}

func (b *Bus) Publish(change domain.ProximityChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
