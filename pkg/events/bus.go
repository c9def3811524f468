package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// defaultSubscriberBuffer is the per-subscriber channel capacity.
	defaultSubscriberBuffer = 64

	// defaultHistoryLimit is the number of events retained per channel for
	// catchup. Subscribers further behind than this get an overflow signal
	// and must reload through the REST API.
	defaultHistoryLimit = 200
)

// Subscription is one subscriber's view of a channel. Events arrive on C;
// when the subscriber falls behind the oldest buffered event is dropped to
// make room, so C never blocks a publisher.
type Subscription struct {
	C <-chan Event

	bus     *Bus
	channel string
	ch      chan Event

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// Close detaches the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.detach(s)
	close(s.ch)
}

// Dropped returns how many events were discarded because the subscriber
// fell behind.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// deliver enqueues an event, evicting the oldest buffered one when full.
func (s *Subscription) deliver(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- evt:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// channelState holds per-channel fan-out and catchup state.
type channelState struct {
	seq     uint64
	subs    map[*Subscription]struct{}
	history []Event // ring, oldest first, capped at historyLimit
}

// Bus is the in-process publish/subscribe hub. One instance serves the whole
// process; channels come into existence on first use.
type Bus struct {
	mu           sync.RWMutex
	channels     map[string]*channelState
	bufferSize   int
	historyLimit int
}

// NewBus creates a bus with the default buffer and history sizes.
func NewBus() *Bus {
	return &Bus{
		channels:     make(map[string]*channelState),
		bufferSize:   defaultSubscriberBuffer,
		historyLimit: defaultHistoryLimit,
	}
}

// Subscribe attaches a new subscriber to a channel.
func (b *Bus) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		bus:     b,
		channel: channel,
		ch:      make(chan Event, b.bufferSize),
	}
	sub.C = sub.ch

	b.mu.Lock()
	state := b.state(channel)
	state.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish stamps the event with an ID, timestamp and per-channel sequence
// number, records it in the channel history, and fans it out to every
// subscriber. Transient event types are delivered but not recorded.
func (b *Bus) Publish(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	state := b.state(evt.Channel)
	state.seq++
	evt.Seq = state.seq
	if !transient(evt.Type) {
		state.history = append(state.history, evt)
		if len(state.history) > b.historyLimit {
			state.history = state.history[len(state.history)-b.historyLimit:]
		}
	}
	subs := make([]*Subscription, 0, len(state.subs))
	for sub := range state.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(evt)
	}
	return evt
}

// Since returns the retained events on a channel with Seq > lastSeq, oldest
// first. overflow reports that events between lastSeq and the oldest retained
// one were already evicted from the history ring.
func (b *Bus) Since(channel string, lastSeq uint64) (events []Event, overflow bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.channels[channel]
	if !ok {
		return nil, false
	}
	if len(state.history) > 0 && lastSeq+1 < state.history[0].Seq {
		overflow = true
	}
	for _, evt := range state.history {
		if evt.Seq > lastSeq {
			events = append(events, evt)
		}
	}
	return events, overflow
}

// SubscriberCount returns the number of active subscribers on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if state, ok := b.channels[channel]; ok {
		return len(state.subs)
	}
	return 0
}

// state returns the channel state, creating it if needed. Caller holds b.mu.
func (b *Bus) state(channel string) *channelState {
	st, ok := b.channels[channel]
	if !ok {
		st = &channelState{subs: make(map[*Subscription]struct{})}
		b.channels[channel] = st
	}
	return st
}

func (b *Bus) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.channels[sub.channel]; ok {
		delete(state.subs, sub)
	}
}

// transient reports whether an event type is excluded from catchup history.
func transient(eventType string) bool {
	return eventType == EventTypeAgentProgress
}
