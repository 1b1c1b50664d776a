// Package eventbus dispatches EventRecords to a fixed set of observers
// registered at construction. Delivery is best-effort and
// non-blocking: a slow observer has events dropped for it rather than
// stalling the caller, and every drop bumps a counter.
package eventbus

import (
	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/metrics"
)

// Observer receives EventRecords. It is called from the Bus's own
// dispatch goroutine per subscriber, never from the publisher's
// goroutine directly, so a blocking Observer only stalls its own queue.
type Observer func(domain.EventRecord)

type subscriber struct {
	queue chan domain.EventRecord
	obs   Observer
}

// Bus fans a single stream of EventRecords out to every registered
// Observer.
type Bus struct {
	subscribers []*subscriber
	done        chan struct{}
}

// New builds a Bus with the given observers, each backed by a
// queueSize-deep buffer. Observers are fixed for the Bus's lifetime;
// there is no dynamic subscribe.
func New(queueSize int, observers ...Observer) *Bus {
	b := &Bus{done: make(chan struct{})}
	for _, obs := range observers {
		s := &subscriber{queue: make(chan domain.EventRecord, queueSize), obs: obs}
		b.subscribers = append(b.subscribers, s)
		go b.drain(s)
	}
	return b
}

func (b *Bus) drain(s *subscriber) {
	for {
		select {
		case rec := <-s.queue:
			s.obs(rec)
		case <-b.done:
			return
		}
	}
}

// Publish delivers rec to every observer's queue without blocking the
// caller. If an observer's queue is full, rec is dropped for it and
// the events_dropped counter is incremented.
func (b *Bus) Publish(rec domain.EventRecord) {
	for _, s := range b.subscribers {
		select {
		case s.queue <- rec:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Close stops every subscriber's drain loop. Queued-but-undelivered
// events are discarded.
func (b *Bus) Close() {
	close(b.done)
}
