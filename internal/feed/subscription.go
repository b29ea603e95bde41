package feed

import (
	"sync"

	"roomchat-service/internal/models"
)

// Subscription is one live view over a room's message feed. Each delivery is
// the room's complete ordered list; consumers replace all prior state with it.
// Deliveries conflate: if a new snapshot arrives before the consumer has taken
// the previous one, the stale snapshot is dropped so the consumer always ends
// on the newest state.
type Subscription struct {
	feed   *Feed
	roomID int
	userID int

	once sync.Once
	mu   sync.Mutex
	ch   chan []models.Message
	done bool
}

// Snapshots returns the delivery channel. It is closed when the subscription
// is closed; no snapshots are delivered after that.
func (s *Subscription) Snapshots() <-chan []models.Message {
	return s.ch
}

// RoomID reports the room this subscription is scoped to.
func (s *Subscription) RoomID() int {
	return s.roomID
}

// Close releases the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.unregister(s)
		s.mu.Lock()
		s.done = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *Subscription) push(snapshot []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	for {
		select {
		case s.ch <- snapshot:
			return
		default:
		}
		// channel full: drop the pending stale snapshot and retry
		select {
		case <-s.ch:
		default:
		}
	}
}
