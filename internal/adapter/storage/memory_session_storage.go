package storage

import (
	"context"
	"sync"

	"github.com/rl1809/stockpilot/internal/port"
)

// MemorySessionStorage is an in-process tab storage for the CLI and tests.
type MemorySessionStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{values: make(map[string]string)}
}

func (m *MemorySessionStorage) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemorySessionStorage) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemorySessionStorage) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

// MemoryTabs hands out one MemorySessionStorage per tab id.
type MemoryTabs struct {
	mu   sync.Mutex
	tabs map[string]*MemorySessionStorage
}

func NewMemoryTabs() *MemoryTabs {
	return &MemoryTabs{tabs: make(map[string]*MemorySessionStorage)}
}

func (t *MemoryTabs) ForTab(tabID string) port.SessionStorage {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.tabs[tabID]
	if !ok {
		s = NewMemorySessionStorage()
		t.tabs[tabID] = s
	}
	return s
}

// MemoryPreferenceRepository keeps preferences for the process lifetime.
type MemoryPreferenceRepository struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryPreferenceRepository() *MemoryPreferenceRepository {
	return &MemoryPreferenceRepository{values: make(map[string]string)}
}

func (m *MemoryPreferenceRepository) GetPreference(ctx context.Context, owner, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[owner+"\x00"+key]
	return v, ok, nil
}

func (m *MemoryPreferenceRepository) PutPreference(ctx context.Context, owner, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[owner+"\x00"+key] = value
	return nil
}
