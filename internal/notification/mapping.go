// Package notification holds the per-session notification mapping shared by the
// aggregator and the live channel.
package notification

import (
	"sync"

	"github.com/Domenick1991/tripboard/internal/domain"
)

// Mapping is keyed by booking ID. Records are only ever appended; Reset is the
// single operation that drops them and is reserved for a full pipeline reset.
type Mapping struct {
	mu       sync.RWMutex
	records  map[string][]domain.Notification
	watchers map[int]chan domain.Notification
	nextID   int
	closed   bool
}

func NewMapping() *Mapping {
	return &Mapping{
		records:  make(map[string][]domain.Notification),
		watchers: make(map[int]chan domain.Notification),
	}
}

// Ensure registers a booking with an empty sequence if it has none yet.
func (m *Mapping) Ensure(bookingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[bookingID]; !ok {
		m.records[bookingID] = []domain.Notification{}
	}
}

// Append adds records under bookingID in the given order and fans them out to watchers.
func (m *Mapping) Append(bookingID string, records ...domain.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[bookingID]
	if !ok {
		existing = []domain.Notification{}
	}
	m.records[bookingID] = append(existing, records...)

	for _, rec := range records {
		for _, ch := range m.watchers {
			select {
			case ch <- rec:
			default:
				// slow watcher; the record is still in the mapping
			}
		}
	}
}

// Get returns a copy of the records for bookingID and whether the booking is known.
func (m *Mapping) Get(bookingID string) ([]domain.Notification, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records, ok := m.records[bookingID]
	if !ok {
		return nil, false
	}
	out := make([]domain.Notification, len(records))
	copy(out, records)
	return out, true
}

func (m *Mapping) Len(bookingID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[bookingID])
}

func (m *Mapping) Snapshot() map[string][]domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]domain.Notification, len(m.records))
	for id, records := range m.records {
		cp := make([]domain.Notification, len(records))
		copy(cp, records)
		out[id] = cp
	}
	return out
}

// Reset drops every record. Watchers stay registered.
func (m *Mapping) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string][]domain.Notification)
}

// Watch streams records appended after the call. The returned func unregisters
// the watcher and closes the channel; it is safe to call more than once. After
// Close the channel comes back already closed.
func (m *Mapping) Watch(buffer int) (<-chan domain.Notification, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan domain.Notification, buffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	m.watchers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(ch)
		}
	}
}

// Close ends every watcher. Records stay readable.
func (m *Mapping) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
}
