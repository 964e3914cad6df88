package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calrelay/calrelay/internal/model"
)

// --- Mock calendar provider --------------------------------------------------

// mockProvider is an in-memory stand-in for the Google Calendar client. The
// real sqlite store is used alongside it in tests, so only the provider side
// needs a double.
type mockProvider struct {
	mu     sync.Mutex
	events map[string]*model.ExternalEvent
	nextID int

	authErr   error
	listErr   error
	insertErr error
	updateErr error
	deleteErr error

	listCalls   int
	insertCalls int
	updateCalls int
	deleteCalls int
}

func newMockProvider(events ...*model.ExternalEvent) *mockProvider {
	m := &mockProvider{events: make(map[string]*model.ExternalEvent)}
	for _, ev := range events {
		m.add(ev)
	}
	return m
}

// add seeds an event as if it had been created remotely, assigning an id and
// update timestamp when missing. Returns the id.
func (m *mockProvider) add(ev *model.ExternalEvent) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *ev
	if cp.ID == "" {
		m.nextID++
		cp.ID = fmt.Sprintf("gcal-%d", m.nextID)
	}
	if cp.Updated.IsZero() {
		cp.Updated = time.Now().UTC()
	}
	cp.Etag = fmt.Sprintf("etag-%s-%d", cp.ID, cp.Updated.UnixNano())
	m.events[cp.ID] = &cp
	return cp.ID
}

// setSummary simulates a remote edit: new title, fresh update timestamp.
func (m *mockProvider) setSummary(id, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id].Summary = summary
	m.events[id].Updated = time.Now().UTC()
}

func (m *mockProvider) setUpdated(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id].Updated = at
}

func (m *mockProvider) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
}

func (m *mockProvider) get(id string) *model.ExternalEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil
	}
	cp := *ev
	return &cp
}

func (m *mockProvider) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockProvider) CheckAuth(_ context.Context) error {
	return m.authErr
}

func (m *mockProvider) ListEvents(_ context.Context, _, _ time.Time, _ int64) ([]*model.ExternalEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*model.ExternalEvent, 0, len(m.events))
	for _, ev := range m.events {
		cp := *ev
		result = append(result, &cp)
	}
	return result, nil
}

func (m *mockProvider) InsertEvent(_ context.Context, draft *model.ExternalEvent) (*model.ExternalEvent, error) {
	m.mu.Lock()
	m.insertCalls++
	if err := m.insertErr; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	cp := *draft
	cp.ID = ""
	id := m.add(&cp)
	return m.get(id), nil
}

func (m *mockProvider) UpdateEvent(_ context.Context, id string, draft *model.ExternalEvent) (*model.ExternalEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCalls++
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	existing, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("remote event %q not found", id)
	}
	cp := *draft
	cp.ID = id
	cp.Updated = time.Now().UTC()
	cp.Etag = fmt.Sprintf("etag-%s-%d", id, cp.Updated.UnixNano())
	cp.HTMLLink = existing.HTMLLink
	m.events[id] = &cp
	out := cp
	return &out, nil
}

func (m *mockProvider) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("remote event %q not found", id)
	}
	delete(m.events, id)
	return nil
}
