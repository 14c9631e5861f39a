package chat

import (
	"sync"
	"time"
)

// Exchange is one answered question.
type Exchange struct {
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response"`
	GeneratedQuery string    `json:"generated_query"`
	At             time.Time `json:"at"`
}

// memory is a bounded, ordered conversation buffer.
type memory struct {
	mu        sync.Mutex
	limit     int
	exchanges []Exchange
}

func newMemory(limit int) *memory {
	return &memory{limit: limit}
}

func (m *memory) add(e Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exchanges = append(m.exchanges, e)
	if over := len(m.exchanges) - m.limit; m.limit > 0 && over > 0 {
		m.exchanges = append(m.exchanges[:0:0], m.exchanges[over:]...)
	}
}

func (m *memory) snapshot() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Exchange, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

func (m *memory) reset() {
	m.mu.Lock()
	m.exchanges = nil
	m.mu.Unlock()
}
