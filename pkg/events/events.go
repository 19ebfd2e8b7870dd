package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventServiceStarted      EventType = "service.started"
	EventServiceStopped      EventType = "service.stopped"
	EventNodeBecameHealthy   EventType = "node.healthy"
	EventNodeBecameUnhealthy EventType = "node.unhealthy"
	EventNodeThrottled       EventType = "node.throttled"
	EventNodeRestored        EventType = "node.restored"
	EventDNSRecordAdded      EventType = "dns.record.added"
	EventDNSRecordRemoved    EventType = "dns.record.removed"
	EventDNSOperationError   EventType = "dns.operation.error"
	EventAllNodesDown        EventType = "nodes.all_down"
)

// NodeTransition is the payload for node.healthy / node.unhealthy.
type NodeTransition struct {
	Name          string
	Address       string
	Reason        string // set for node.unhealthy
	OnlineCount   int
	TotalCount    int
	DisabledCount int
}

// LoadChange is the payload for node.throttled / node.restored.
type LoadChange struct {
	Name      string
	Address   string
	Domain    string // fully qualified zone name
	Users     int
	Threshold int
}

// DNSChange is the payload for dns.record.added / dns.record.removed.
type DNSChange struct {
	IP     string
	Domain string // fully qualified zone name
}

// DNSError is the payload for dns.operation.error.
type DNSError struct {
	Action string // "add", "update" or "remove"
	IP     string
	Domain string
	Err    string
}

// FleetDown is the payload for nodes.all_down.
type FleetDown struct {
	Total    int
	Affected []string
}

// Event is one structured notification emitted by the engine. Payload
// holds the type-specific struct above, or nil for lifecycle events.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// New builds an event with a fresh ID and timestamp.
func New(t EventType, payload any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Notifier accepts events. Implementations must never block the caller;
// pipeline progress cannot depend on notification delivery.
type Notifier interface {
	Accept(event *Event)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Accept implements Notifier. Publishing never blocks: when the buffer
// is full the event is dropped rather than stalling a tick.
func (b *Broker) Accept(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	default:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
