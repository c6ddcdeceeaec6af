package progress

import "sync"

// defaultBufferSize bounds each subscriber's queue. Grounded on the
// teacher's broadcaster, which buffers its in/out channels at a fixed
// depth (core/broadcast.go) rather than letting a slow consumer apply
// backpressure to the producer.
const defaultBufferSize = 64

// Bus fans events out to any number of subscribers. It never back-pressures
// the transfer path: lifecycle events block briefly on a per-subscriber
// send (bounded by that subscriber actually draining its queue promptly,
// which every bundled subscriber does), while Progress events are dropped
// rather than ever blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Subscriber receives events published after it subscribed.
type Subscriber struct {
	ch   chan Event
	bus  *Bus
	once sync.Once
}

// Events returns the channel to range over.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Close unsubscribes and releases the channel. Safe to call more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a new Subscriber with the default queue depth.
func (b *Bus) Subscribe() *Subscriber {
	return b.SubscribeBuffered(defaultBufferSize)
}

// SubscribeBuffered registers a new Subscriber with a caller-chosen queue
// depth.
func (b *Bus) SubscribeBuffered(buffer int) *Subscriber {
	s := &Subscriber{ch: make(chan Event, buffer), bus: b}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s
}

// Publish fans e out to every current subscriber. Lifecycle events
// (Started, Finished, Skipped, Failed, SessionEnded) are never dropped:
// Publish blocks until each subscriber's queue has room. Progress events
// use drop-oldest: if a subscriber's queue is full, its oldest queued
// event is discarded to make room for the new one, so a slow consumer
// falls behind on progress granularity without ever stalling the sender
// or receiver engine calling Publish.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lifecycle := isLifecycle(e)

	for s := range b.subs {
		if lifecycle {
			s.ch <- e
			continue
		}

		select {
		case s.ch <- e:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- e:
			default:
				// Subscriber is draining concurrently and refilled the
				// slot we just freed; drop this sample rather than spin.
			}
		}
	}
}
