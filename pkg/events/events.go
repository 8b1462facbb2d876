package events

import (
	"sync"
	"time"
)

// Kind identifies which variant of the peer event tagged union an Event
// carries. Payload fields not relevant to a given Kind are left zero.
type Kind string

const (
	// Tick is the periodic heartbeat a node emits to prove liveness.
	Tick Kind = "TICK"
	// State carries a peer's FSM state, master identifier, and checked flags.
	State Kind = "STATE"
	// Process carries a single process-state report from a peer.
	Process Kind = "PROCESS"
	// ProcessAdded announces a process newly known to a peer's local agent.
	ProcessAdded Kind = "PROCESS_ADDED"
	// ProcessRemoved announces a process no longer known to a peer's agent.
	ProcessRemoved Kind = "PROCESS_REMOVED"
	// Authorization carries the accept/reject outcome of a CHECK_INSTANCE probe.
	Authorization Kind = "AUTHORIZATION"
	// RemoteInfo carries a full process list handed over on (re-)authorization.
	RemoteInfo Kind = "REMOTE_INFO"
)

// Event is one item of the duplex peer event channel described by the
// engine's transport boundary: a tagged union keyed by Kind, with only the
// fields relevant to that Kind populated.
type Event struct {
	Kind       Kind
	Identifier string // node the event concerns, or originates from
	Timestamp  time.Time

	// STATE
	FSMState string
	Master   string
	Checked  bool

	// PROCESS, PROCESS_ADDED, PROCESS_REMOVED
	Namespec string
	Payload  any

	// AUTHORIZATION
	Allowed bool

	// REMOTE_INFO
	ProcessList []any
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans out peer events to every subscriber. In this engine the
// EventLoop is the only subscriber; it applies each event to the Context
// registry.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
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
			// Subscriber buffer full, skip rather than block the broker.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
