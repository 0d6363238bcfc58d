package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type shutterRecord struct {
	Position      *int  `yaml:"position,omitempty"`
	FullOpeningMs int64 `yaml:"full_opening_ms,omitempty"`
	FullClosingMs int64 `yaml:"full_closing_ms,omitempty"`
	HasSettings   bool  `yaml:"has_settings,omitempty"`
}

type fileData struct {
	Shutters map[int]*shutterRecord `yaml:"shutters,omitempty"`
	Relays   map[int]bool           `yaml:"relays,omitempty"`
}

// FileStore keeps state in a single YAML file, rewritten atomically on every
// save.
type FileStore struct {
	mu   sync.Mutex
	path string
	data fileData
}

// OpenFile loads path. A missing file starts an empty store.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: fileData{
			Shutters: make(map[int]*shutterRecord),
			Relays:   make(map[int]bool),
		},
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path comes from device configuration
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", path, err)
	}
	if s.data.Shutters == nil {
		s.data.Shutters = make(map[int]*shutterRecord)
	}
	if s.data.Relays == nil {
		s.data.Relays = make(map[int]bool)
	}
	return s, nil
}

func (s *FileStore) shutter(channel int) *shutterRecord {
	r, ok := s.data.Shutters[channel]
	if !ok {
		r = &shutterRecord{}
		s.data.Shutters[channel] = r
	}
	return r
}

// LoadShutterPosition returns the saved position of a shutter.
func (s *FileStore) LoadShutterPosition(channel int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.Shutters[channel]
	if !ok || r.Position == nil {
		return 0, false
	}
	return *r.Position, true
}

// SaveShutterPosition persists a shutter position.
func (s *FileStore) SaveShutterPosition(channel int, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := position
	s.shutter(channel).Position = &p
	return s.flush()
}

// LoadShutterSettings returns the saved travel times of a shutter.
func (s *FileStore) LoadShutterSettings(channel int) (ShutterSettings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.Shutters[channel]
	if !ok || !r.HasSettings {
		return ShutterSettings{}, false
	}
	return ShutterSettings{
		FullOpening: time.Duration(r.FullOpeningMs) * time.Millisecond,
		FullClosing: time.Duration(r.FullClosingMs) * time.Millisecond,
	}, true
}

// SaveShutterSettings persists shutter travel times.
func (s *FileStore) SaveShutterSettings(channel int, st ShutterSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.shutter(channel)
	r.FullOpeningMs = st.FullOpening.Milliseconds()
	r.FullClosingMs = st.FullClosing.Milliseconds()
	r.HasSettings = true
	return s.flush()
}

// ReadRelayState returns the saved state of a relay.
func (s *FileStore) ReadRelayState(channel int) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	on, ok := s.data.Relays[channel]
	return on, ok
}

// SaveRelayState persists a relay state.
func (s *FileStore) SaveRelayState(channel int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Relays[channel] = on
	return s.flush()
}

// flush writes the file through a temporary sibling and a rename.
// Caller must hold s.mu.
func (s *FileStore) flush() error {
	raw, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}
