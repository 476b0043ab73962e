package incident

import (
	"context"
	"sync"
)

// MockRepository implements Repository for testing. Nil funcs succeed.
type MockRepository struct {
	InsertFunc      func(ctx context.Context, inc Incident) error
	AcknowledgeFunc func(ctx context.Context, id string) error
	DeleteFunc      func(ctx context.Context, id string) error
	AppendNoteFunc  func(ctx context.Context, id string, note Note) error
	RecentFunc      func(ctx context.Context, limit int) ([]Incident, error)

	mu    sync.Mutex
	calls []string
}

// Insert calls InsertFunc and records the call.
func (m *MockRepository) Insert(ctx context.Context, inc Incident) error {
	m.record("Insert")
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, inc)
	}
	return nil
}

// Acknowledge calls AcknowledgeFunc and records the call.
func (m *MockRepository) Acknowledge(ctx context.Context, id string) error {
	m.record("Acknowledge")
	if m.AcknowledgeFunc != nil {
		return m.AcknowledgeFunc(ctx, id)
	}
	return nil
}

// Delete calls DeleteFunc and records the call.
func (m *MockRepository) Delete(ctx context.Context, id string) error {
	m.record("Delete")
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// AppendNote calls AppendNoteFunc and records the call.
func (m *MockRepository) AppendNote(ctx context.Context, id string, note Note) error {
	m.record("AppendNote")
	if m.AppendNoteFunc != nil {
		return m.AppendNoteFunc(ctx, id, note)
	}
	return nil
}

// Recent calls RecentFunc and records the call.
func (m *MockRepository) Recent(ctx context.Context, limit int) ([]Incident, error) {
	m.record("Recent")
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, limit)
	}
	return nil, nil
}

// Calls returns the recorded method names in order.
func (m *MockRepository) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockRepository) record(method string) {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.mu.Unlock()
}
