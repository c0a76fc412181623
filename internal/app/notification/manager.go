// Package notification provides the signal bus that tells observers what part
// of the playback state changed.
package notification

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Mask is a set of changed state areas. Observers re-query the session for
// the actual values.
type Mask uint8

const (
	SignalNewTrack  Mask = 1 << iota // Track changed, metadata must be reloaded
	SignalPlayState                  // Play/pause/stop changed
	SignalPosition                   // Position jumped (seek, loop, restart)
	SignalVolume                     // Master volume changed

	SignalAll = SignalNewTrack | SignalPlayState | SignalPosition | SignalVolume
)

// Has reports whether any flag in f is set.
func (m Mask) Has(f Mask) bool {
	return m&f != 0
}

// String returns the string representation of the mask.
func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m.Has(SignalNewTrack) {
		parts = append(parts, "new_track")
	}
	if m.Has(SignalPlayState) {
		parts = append(parts, "play_state")
	}
	if m.Has(SignalPosition) {
		parts = append(parts, "position")
	}
	if m.Has(SignalVolume) {
		parts = append(parts, "volume")
	}
	return strings.Join(parts, "|")
}

// Observer receives signals.
type Observer interface {
	OnSignal(mask Mask)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(mask Mask)

// OnSignal calls f(mask).
func (f ObserverFunc) OnSignal(mask Mask) { f(mask) }

// Handle identifies a subscription.
type Handle string

// subscription represents an observer's subscription.
type subscription struct {
	id       Handle
	observer Observer
	mu       sync.Mutex // serializes deliveries to this observer
}

// Manager manages observer subscriptions and signal dispatch.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[Handle]*subscription
	order         []Handle
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[Handle]*subscription),
	}
}

// Subscribe adds an observer and returns its handle. Observers are signalled
// in subscription order.
func (m *Manager) Subscribe(observer Observer) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := Handle(uuid.New().String())
	m.subscriptions[id] = &subscription{
		id:       id,
		observer: observer,
	}
	m.order = append(m.order, id)
	return id
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (m *Manager) Unsubscribe(id Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscriptions[id]; !ok {
		return
	}
	delete(m.subscriptions, id)
	for i, h := range m.order {
		if h == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SequenceNo returns the number of signals dispatched so far.
func (m *Manager) SequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	return m.sequenceNo
}

// Signal delivers mask to every observer synchronously, in subscription
// order. A panicking observer is logged and skipped.
func (m *Manager) Signal(mask Mask) {
	if mask == 0 {
		return
	}

	m.sequenceNoMu.Lock()
	m.sequenceNo++
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during delivery
	subs := make([]*subscription, 0, len(m.order))
	for _, id := range m.order {
		subs = append(subs, m.subscriptions[id])
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub, mask)
	}
}

// SignalTo delivers mask to a single observer.
func (m *Manager) SignalTo(id Handle, mask Mask) {
	m.mu.RLock()
	sub, ok := m.subscriptions[id]
	m.mu.RUnlock()

	if !ok || mask == 0 {
		return
	}
	deliver(sub, mask)
}

func deliver(sub *subscription, mask Mask) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("notification: observer panicked: id=%s signal=%s: %v", sub.id, mask, r)
		}
	}()
	sub.observer.OnSignal(mask)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[Handle]*subscription)
	m.order = nil
}
