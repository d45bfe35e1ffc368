package events

import "sync"

// Subscriber receives published events
type Subscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(event Event)

func (f SubscriberFunc) OnEvent(event Event) { f(event) }

// Publisher is the narrow interface the engines depend on
type Publisher interface {
	Publish(event Event)
}

// Bus manages event publishing and subscription
type Bus interface {
	Publisher
	// Subscribe registers s and returns a function that removes it
	Subscribe(s Subscriber) (unsubscribe func())
}

// SimpleBus delivers synchronously, in subscription order, on the
// publisher's goroutine. Subscribers must not block.
type SimpleBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Subscriber
	order  []int
}

// NewBus creates an empty bus
func NewBus() *SimpleBus {
	return &SimpleBus{subs: make(map[int]Subscriber)}
}

func (b *SimpleBus) Subscribe(s Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *SimpleBus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.subs[id])
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.OnEvent(event)
	}
}

type discard struct{}

func (discard) Publish(Event)               {}
func (discard) Subscribe(Subscriber) func() { return func() {} }

// Discard drops every event
var Discard Bus = discard{}

// Recorder keeps every event it sees. Tests subscribe one to a bus.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) OnEvent(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Publish(event Event) { r.OnEvent(event) }

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of type t
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}
