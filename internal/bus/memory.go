package bus

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Bus used by tests and by the single-instance
// development mode. Publishing fans out synchronously to every handler
// currently subscribed on the channel within this process, simulating
// the cross-instance fan-out a real Redis deployment would provide
// across instances.
type Memory struct {
	mu       sync.RWMutex
	channels map[string][]Handler
	kv       map[string]memEntry
}

type memEntry struct {
	value   string
	expires time.Time
}

// NewMemory returns an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{
		channels: make(map[string][]Handler),
		kv:       make(map[string]memEntry),
	}
}

func (m *Memory) Publish(_ context.Context, channel, payload string) error {
	m.mu.RLock()
	handlers := append([]Handler(nil), m.channels[channel]...)
	m.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel] = append(m.channels[channel], handler)
	return nil
}

func (m *Memory) Unsubscribe(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channel)
	return nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.kv[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expires) {
		delete(m.kv, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

// Keys supports the single "prefix*" glob shape the core actually issues
// (presence:<id>:*).
func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(pattern, "*")
	now := time.Now()
	var out []string
	for k, entry := range m.kv {
		if now.After(entry.expires) {
			delete(m.kv, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

var _ Bus = (*Memory)(nil)
