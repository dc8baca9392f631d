// Package events fans ledger changes out to live subscribers.
package events

import (
	"context"
	"sync"
)

// Subscription receives a signal every time the installation's ledger changes.
// Signals coalesce: a slow reader sees at most one pending signal.
type Subscription struct {
	installationID uint64
	ch             chan struct{}
}

func (s *Subscription) C() <-chan struct{} {
	return s.ch
}

// Hub tracks subscriptions by installation id.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint64]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(installationID uint64) *Subscription {
	sub := &Subscription{installationID: installationID, ch: make(chan struct{}, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[installationID]; !ok {
		h.clients[installationID] = make(map[*Subscription]struct{})
	}
	h.clients[installationID][sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[sub.installationID]; ok {
		delete(clients, sub)
		if len(clients) == 0 {
			delete(h.clients, sub.installationID)
		}
	}
}

// Notify signals every subscriber of the installation without blocking.
func (h *Hub) Notify(_ context.Context, installationID uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients[installationID] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) Subscribers(installationID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[installationID])
}
