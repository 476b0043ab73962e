package analysis

import (
	"context"
	"sync"
	"time"
)

// MockBackend implements Backend for testing.
type MockBackend struct {
	// SubmitFunc is called when Submit is invoked.
	SubmitFunc func(ctx context.Context, up Upload) (string, error)

	// StatusFunc is called when AnalysisStatus is invoked.
	StatusFunc func(ctx context.Context, taskID string) (StatusReport, error)

	mu          sync.Mutex
	calls       []MockCall
	active      int
	maxInFlight int
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Arg    string
	Time   time.Time
}

// Submit calls SubmitFunc and records the call.
func (m *MockBackend) Submit(ctx context.Context, up Upload) (string, error) {
	done := m.begin("Submit", up.Filename)
	defer done()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, up)
	}
	return "mock-task", nil
}

// AnalysisStatus calls StatusFunc and records the call.
func (m *MockBackend) AnalysisStatus(ctx context.Context, taskID string) (StatusReport, error) {
	done := m.begin("AnalysisStatus", taskID)
	defer done()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, taskID)
	}
	return StatusReport{Status: RemoteProcessing}, nil
}

// Calls returns all recorded calls.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (m *MockBackend) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func (m *MockBackend) begin(method, arg string) func() {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Arg: arg, Time: time.Now()})
	m.active++
	if m.active > m.maxInFlight {
		m.maxInFlight = m.active
	}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}
}
