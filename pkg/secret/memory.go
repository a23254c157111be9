package secret

import (
	"context"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
}

var _ SwapStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, service, account string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key(service, account)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, service, account string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key(service, account)] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, service, account string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(service, account)
	if _, ok := m.values[k]; ok {
		return false, nil
	}
	m.values[k] = append([]byte(nil), value...)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key(service, account))
	return nil
}
