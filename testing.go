package usched

import (
	"sort"
	"sync"

	"github.com/corelane/usched/internal/interfaces"
)

// MockHandler is an in-memory interfaces.Handler for testing the
// scheduler core without wiring a real backend/kv.Store: a minimal,
// lock-protected implementation that also tracks call counts for
// test assertions.
type MockHandler struct {
	mu sync.RWMutex
	data map[string][]byte
	closed bool

	getCalls int
	putCalls int
	deleteCalls int
	seekCalls int
	scanCalls int

	// ScanCheckpoints lets Scan be tested against the preemption
	// machinery: it calls the passed checkpoint function this many
	// times before returning, instead of computing a real per-shard
	// cadence.
	ScanCheckpoints int
}

// NewMockHandler creates an empty MockHandler.
func NewMockHandler() *MockHandler {
	return &MockHandler{data: make(map[string][]byte)}
}

func (m *MockHandler) Get(key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++

	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MockHandler) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++

	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MockHandler) Delete(key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++

	_, ok := m.data[string(key)]
	delete(m.data, string(key))
	return ok, nil
}

func (m *MockHandler) Seek(key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls++

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	target := string(key)
	for _, k := range keys {
		if k > target {
			return []byte(k), true, nil
		}
	}
	return nil, false, nil
}

func (m *MockHandler) Scan(prefix []byte, limit int, checkpoint func()) ([]interfaces.KVPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++

	for i := 0; i < m.ScanCheckpoints && checkpoint != nil; i++ {
		checkpoint()
	}

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []interfaces.KVPair
	p := string(prefix)
	for _, k := range keys {
		if len(p) > 0 && (len(k) < len(p) || k[:len(p)] != p) {
			continue
		}
		out = append(out, interfaces.KVPair{Key: []byte(k), Value: m.data[k]})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockHandler) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockHandler) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// CallCounts returns the number of times each method has been called.
func (m *MockHandler) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"get": m.getCalls,
		"put": m.putCalls,
		"delete": m.deleteCalls,
		"seek": m.seekCalls,
		"scan": m.scanCalls,
	}
}

// Reset clears call counters and stored data.
func (m *MockHandler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	m.getCalls, m.putCalls, m.deleteCalls, m.seekCalls, m.scanCalls = 0, 0, 0, 0, 0
}

// Seed populates the handler's backing map directly, bypassing Put's
// call-count tracking, for tests that need preloaded fixtures.
func (m *MockHandler) Seed(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

var _ interfaces.Handler = (*MockHandler)(nil)
