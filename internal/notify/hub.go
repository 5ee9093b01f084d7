// Package notify provides an in-process fan-out hub for user notifications.
//
// The claim lifecycle service publishes a notification here after its
// transaction commits, so dashboard sessions holding a websocket receive it
// without polling. The hub is delivery-best-effort: the database row written
// in the transaction is the source of truth, the hub only accelerates it.
package notify

import (
	"sync"

	"github.com/fleetgrid/ops-api/internal/models"
)

// Hub fans notifications out to per-user subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan *models.Notification
	next int
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[int]chan *models.Notification),
	}
}

// Subscribe registers a listener for one user's notifications. The returned
// cancel function removes the subscription and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan *models.Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan *models.Notification, 8)

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan *models.Notification)
	}
	h.subs[userID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if userSubs, ok := h.subs[userID]; ok {
			if c, ok := userSubs[id]; ok {
				delete(userSubs, id)
				close(c)
			}
			if len(userSubs) == 0 {
				delete(h.subs, userID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers a notification to the target user's subscribers without
// blocking. Sessions with a full buffer miss the push and catch up from the
// store on next poll.
func (h *Hub) Publish(n *models.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
		default:
		}
	}
}
