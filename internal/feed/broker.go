// Package feed fans change signals out to live subscriptions.
//
// A subscription is a refresh callback bound to a topic. Publishing a topic
// wakes its subscriptions; each one then re-reads whatever state it renders.
// Signals carry no data, so bursts of writes coalesce into a single refresh.
package feed

import "sync"

// Broker is an in-process topic fan-out. The zero value is not usable; call
// NewBroker.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	refresh func()
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[*subscription]struct{})}
}

// Subscribe registers refresh under topic and schedules one immediate run so
// the subscriber sees current state without waiting for a change. Runs of a
// single subscription never overlap. The returned func detaches it; a run
// already in progress is allowed to finish.
func (b *Broker) Subscribe(topic string, refresh func()) (unsubscribe func()) {
	sub := &subscription{
		refresh: refresh,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	sub.signal()
	go sub.run()

	return func() {
		b.remove(topic, sub)
		sub.stop()
	}
}

// Publish wakes every subscription of the given topics.
func (b *Broker) Publish(topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		for sub := range b.topics[topic] {
			sub.signal()
		}
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close stops every subscription. Later Subscribe calls are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for topic, set := range b.topics {
		for sub := range set {
			sub.stop()
		}
		delete(b.topics, topic)
	}
}

func (b *Broker) remove(topic string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[topic]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.topics, topic)
	}
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
		// a refresh is already pending
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			select {
			case <-s.done:
				return
			default:
			}
			s.refresh()
		}
	}
}
