package sink

import (
	"context"
	"iter"
	"sync"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

// Trace is one recorded client trace.
type Trace struct {
	Meta    ClientMeta
	Actions []model.Action
}

// MemorySink keeps every trace in memory, mostly for tests and the HTTP
// service. With discard set it only counts.
type MemorySink struct {
	discard bool

	mu      sync.Mutex
	traces  []Trace
	actions int
	summary []byte
	closed  bool
}

// NewMemorySink returns a sink that records traces.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// NewDiscardSink returns a sink that drains and counts traces without
// keeping them.
func NewDiscardSink() *MemorySink { return &MemorySink{discard: true} }

func (m *MemorySink) WriteTrace(_ context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	var recorded []model.Action
	n := 0
	for a := range actions {
		if !m.discard {
			recorded = append(recorded, a)
		}
		n++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions += n
	if !m.discard {
		m.traces = append(m.traces, Trace{Meta: meta, Actions: recorded})
	}
	return n, nil
}

func (m *MemorySink) WriteSummary(_ context.Context, _ string, summary []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = append([]byte(nil), summary...)
	return nil
}

// Traces returns a copy of the recorded traces in write order.
func (m *MemorySink) Traces() []Trace {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trace, len(m.traces))
	copy(out, m.traces)
	return out
}

// Actions returns how many actions were written in total.
func (m *MemorySink) Actions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actions
}

// Summary returns the last summary written.
func (m *MemorySink) Summary() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
