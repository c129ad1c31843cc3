package calendar

import (
	"context"
	"sync"

	"demobook/models"
)

// MemoryProvider is an in-process calendar for development and tests.
type MemoryProvider struct {
	mu     sync.Mutex
	events map[string]EventSpec
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{events: make(map[string]EventSpec)}
}

func (m *MemoryProvider) CreateEvent(_ context.Context, calendarID string, spec EventSpec) (CreatedEvent, error) {
	if spec.ID == "" {
		return CreatedEvent{}, models.NewError(models.KindInvalidSchedule, "event id is required")
	}
	if !spec.End.After(spec.Start) {
		return CreatedEvent{}, models.NewError(models.KindInvalidSchedule, "event ends before it starts")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := calendarID + "/" + spec.ID
	if _, ok := m.events[key]; !ok {
		m.events[key] = spec
	}
	return CreatedEvent{ID: spec.ID}, nil
}

func (m *MemoryProvider) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, calendarID+"/"+eventID)
	return nil
}

// Events returns a copy of the stored events.
func (m *MemoryProvider) Events() []EventSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventSpec, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	return out
}
