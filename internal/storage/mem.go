package storage

import "sync"

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu        sync.Mutex
	Positions map[int]int
	Settings  map[int]ShutterSettings
	Relays    map[int]bool

	// Saves counts every successful save call.
	Saves int

	// SaveError, if set, is returned by every save.
	SaveError error
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		Positions: make(map[int]int),
		Settings:  make(map[int]ShutterSettings),
		Relays:    make(map[int]bool),
	}
}

func (m *MemStore) LoadShutterPosition(channel int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Positions[channel]
	return p, ok
}

func (m *MemStore) SaveShutterPosition(channel int, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Positions[channel] = position
	m.Saves++
	return nil
}

func (m *MemStore) LoadShutterSettings(channel int) (ShutterSettings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Settings[channel]
	return s, ok
}

func (m *MemStore) SaveShutterSettings(channel int, s ShutterSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Settings[channel] = s
	m.Saves++
	return nil
}

func (m *MemStore) ReadRelayState(channel int) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	on, ok := m.Relays[channel]
	return on, ok
}

func (m *MemStore) SaveRelayState(channel int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Relays[channel] = on
	m.Saves++
	return nil
}
