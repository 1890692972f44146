// Package relay holds the live half of the relay: the subscription
// registry, the matching and fan-out engine, and the wire protocol
// dispatcher. Storage-facing validation lives in internal/admission.
package relay

import (
	"sync"
	"time"

	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/telemetry"
)

// Sender is the outbound side of one client connection. Send must not
// block: it reports false when the frame was dropped because the
// connection's buffer is full or the connection has closed.
type Sender interface {
	ID() string
	Send(frame []byte) bool
	Closed() bool
}

// Subscription is one live filter owned by one connection. A
// subscription id is the request id that opened it; ids are scoped per
// connection, so two connections may reuse the same id independently.
type Subscription struct {
	ID        string
	ConnID    string
	Filter    event.Filter
	CreatedAt time.Time

	conn Sender
}

// Registry tracks active subscriptions. The primary map is keyed by
// subscription id with a per-connection inner map; connection to
// subscription-ids is kept as a secondary index for O(k) cleanup on
// disconnect. All mutations and all matching reads take the one lock,
// so fan-out never observes a half-updated subscription set.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*Subscription
	byConn  map[string]map[string]struct{}
	metrics *telemetry.Metrics
}

// NewRegistry builds an empty registry.
func NewRegistry(metrics *telemetry.Metrics) *Registry {
	return &Registry{
		subs:    make(map[string]map[string]*Subscription),
		byConn:  make(map[string]map[string]struct{}),
		metrics: metrics,
	}
}

// Add registers a live subscription. Re-registering the same (conn, id)
// pair replaces the previous filter.
func (r *Registry) Add(conn Sender, subID string, filter event.Filter, createdAt time.Time) {
	sub := &Subscription{
		ID:        subID,
		ConnID:    conn.ID(),
		Filter:    filter,
		CreatedAt: createdAt,
		conn:      conn,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.subs[subID]
	if !ok {
		byID = make(map[string]*Subscription)
		r.subs[subID] = byID
	}
	if _, replaced := byID[sub.ConnID]; !replaced {
		r.metrics.SubscriptionsChanged(1)
	}
	byID[sub.ConnID] = sub

	owned, ok := r.byConn[sub.ConnID]
	if !ok {
		owned = make(map[string]struct{})
		r.byConn[sub.ConnID] = owned
	}
	owned[subID] = struct{}{}
}

// Remove cancels the connection's subscription with the given id. After
// it returns, no further matched events are delivered under that id.
func (r *Registry) Remove(connID, subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connID, subID)
}

// RemoveConnection drops every subscription owned by the connection.
func (r *Registry) RemoveConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subID := range r.byConn[connID] {
		r.removeLocked(connID, subID)
	}
}

func (r *Registry) removeLocked(connID, subID string) {
	byID, ok := r.subs[subID]
	if !ok {
		return
	}
	if _, owned := byID[connID]; !owned {
		return
	}
	delete(byID, connID)
	if len(byID) == 0 {
		delete(r.subs, subID)
	}
	if owned := r.byConn[connID]; owned != nil {
		delete(owned, subID)
		if len(owned) == 0 {
			delete(r.byConn, connID)
		}
	}
	r.metrics.SubscriptionsChanged(-1)
}

// Match returns every subscription whose filter matches the event,
// at most one entry per (connection, subscription id).
func (r *Registry) Match(e *event.Event) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*Subscription
	for _, byID := range r.subs {
		for _, sub := range byID {
			if sub.Filter.Matches(e) {
				matched = append(matched, sub)
			}
		}
	}
	return matched
}

// Len reports the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, byID := range r.subs {
		total += len(byID)
	}
	return total
}
