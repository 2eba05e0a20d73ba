// Package bus is the in-process message bus between agents. It keeps a
// bounded FIFO history of every message sent and pushes notifications to
// subscribers; routing is push-based, not delivery-guaranteed, so none of
// the operations can fail.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// DefaultCapacity bounds the history buffer when no capacity is configured.
const DefaultCapacity = 1000

// Handler receives a copy of each matching message.
type Handler func(agent.Message)

// Stats is a pure aggregation over the current history window.
type Stats struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"byType"`
	BySender map[string]int `json:"bySender"`
}

// Bus routes typed messages between named agents and keeps a bounded
// history. Delivery order per message is: any-message subscribers, then
// type subscribers, then recipient subscribers (skipped for broadcasts so a
// broadcast is never double-delivered).
type Bus struct {
	mu       sync.Mutex
	history  []agent.Message
	start    int
	size     int
	capacity int

	nextSubID     int
	anySubs       map[int]Handler
	typeSubs      map[string]map[int]Handler
	recipientSubs map[string]map[int]Handler

	// pending serialises delivery so a handler publishing from inside its
	// callback cannot deadlock or reorder history.
	pending    []agent.Message
	delivering bool

	log *logger.Logger
}

// New creates a bus with the given history capacity (<=0 uses the default).
func New(capacity int, log *logger.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logger.NewDefault("bus")
	}
	return &Bus{
		history:       make([]agent.Message, capacity),
		capacity:      capacity,
		anySubs:       make(map[int]Handler),
		typeSubs:      make(map[string]map[int]Handler),
		recipientSubs: make(map[string]map[int]Handler),
		log:           log,
	}
}

// Publish records the message and notifies subscribers. Missing ID and
// timestamp fields are filled in; the returned copy is what history holds.
// Unknown recipients are accepted.
func (b *Bus) Publish(msg agent.Message) agent.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.To == "" {
		msg.To = agent.Broadcast
	}

	b.mu.Lock()
	b.append(msg)
	b.pending = append(b.pending, msg)
	if b.delivering {
		// Another Publish on this goroutine's stack (or a concurrent one)
		// is draining; it will deliver this message in order.
		b.mu.Unlock()
		return msg
	}
	b.delivering = true
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		handlers := b.handlersFor(next)
		b.mu.Unlock()
		for _, h := range handlers {
			h(next)
		}
		b.mu.Lock()
	}
	b.delivering = false
	b.mu.Unlock()
	return msg
}

// Send publishes a targeted message.
func (b *Bus) Send(from, to, msgType string, payload map[string]any) agent.Message {
	return b.Publish(agent.Message{From: from, To: to, Type: msgType, Payload: payload})
}

// Broadcast publishes a message addressed to every agent.
func (b *Bus) Broadcast(from, msgType string, payload map[string]any) agent.Message {
	return b.Publish(agent.Message{From: from, To: agent.Broadcast, Type: msgType, Payload: payload})
}

// append stores the message in the ring, evicting the oldest entry once the
// buffer is full. Caller holds b.mu.
func (b *Bus) append(msg agent.Message) {
	idx := (b.start + b.size) % b.capacity
	b.history[idx] = msg
	if b.size < b.capacity {
		b.size++
	} else {
		b.start = (b.start + 1) % b.capacity
	}
}

// handlersFor snapshots the subscriber callbacks in delivery order. Caller
// holds b.mu.
func (b *Bus) handlersFor(msg agent.Message) []Handler {
	handlers := make([]Handler, 0, len(b.anySubs)+4)
	for id := 0; id < b.nextSubID; id++ {
		if h, ok := b.anySubs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	if subs := b.typeSubs[msg.Type]; subs != nil {
		for id := 0; id < b.nextSubID; id++ {
			if h, ok := subs[id]; ok {
				handlers = append(handlers, h)
			}
		}
	}
	if msg.To != agent.Broadcast {
		if subs := b.recipientSubs[msg.To]; subs != nil {
			for id := 0; id < b.nextSubID; id++ {
				if h, ok := subs[id]; ok {
					handlers = append(handlers, h)
				}
			}
		}
	}
	return handlers
}

// SubscribeAll registers a handler for every message. The returned function
// removes the subscription.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	b.anySubs[id] = h
	b.log.WithField("sub", id).Debugf("subscribed to all messages")
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.anySubs, id)
	}
}

// SubscribeType registers a handler for messages of one type.
func (b *Bus) SubscribeType(msgType string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	if b.typeSubs[msgType] == nil {
		b.typeSubs[msgType] = make(map[int]Handler)
	}
	b.typeSubs[msgType][id] = h
	b.log.WithField("sub", id).WithField("type", msgType).Debugf("subscribed to message type")
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.typeSubs[msgType], id)
	}
}

// SubscribeRecipient registers a handler for messages addressed specifically
// to one agent. Broadcasts are not delivered here; use SubscribeAll for
// those.
func (b *Bus) SubscribeRecipient(agentID string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	if b.recipientSubs[agentID] == nil {
		b.recipientSubs[agentID] = make(map[int]Handler)
	}
	b.recipientSubs[agentID][id] = h
	b.log.WithField("sub", id).WithField("agent", agentID).Debugf("subscribed to recipient")
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.recipientSubs[agentID], id)
	}
}

// History returns the most recent limit messages in send order, oldest
// first. limit <= 0 returns the whole window.
func (b *Bus) History(limit int) []agent.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window(limit, func(agent.Message) bool { return true })
}

// AgentMessages filters history to messages the agent sent, received
// directly, or received as a broadcast.
func (b *Bus) AgentMessages(agentID string, limit int) []agent.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window(limit, func(m agent.Message) bool {
		return m.From == agentID || m.To == agentID || m.To == agent.Broadcast
	})
}

// window collects matching messages oldest-first, then trims to the most
// recent limit. Caller holds b.mu.
func (b *Bus) window(limit int, match func(agent.Message) bool) []agent.Message {
	result := make([]agent.Message, 0, b.size)
	for i := 0; i < b.size; i++ {
		msg := b.history[(b.start+i)%b.capacity]
		if match(msg) {
			result = append(result, msg)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

// Stats aggregates the current history. No side effects.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		ByType:   make(map[string]int),
		BySender: make(map[string]int),
	}
	for i := 0; i < b.size; i++ {
		msg := b.history[(b.start+i)%b.capacity]
		stats.Total++
		stats.ByType[msg.Type]++
		stats.BySender[msg.From]++
	}
	return stats
}
