package spdymux

import "sync"

// PersistedSetting is one persisted (setting id -> value) entry kept
// for an Origin across sessions within the process lifetime.
type PersistedSetting struct {
	Value     uint32
	Persisted bool
}

// Store is a process-wide, lock-guarded Origin -> settings mapping,
// persisted for the process lifetime. The zero value is ready to use;
// a *Store should be shared across every Session dialing the same
// process, and is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	byOrigin map[Origin]map[SettingID]PersistedSetting
}

// NewStore returns an empty, ready-to-use settings store.
func NewStore() *Store {
	return &Store{byOrigin: make(map[Origin]map[SettingID]PersistedSetting)}
}

// Copy returns a value copy of the settings persisted for origin, or
// false if none have been recorded.
func (s *Store) Copy(origin Origin) (map[SettingID]PersistedSetting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.byOrigin[origin]
	if !ok {
		return nil, false
	}
	out := make(map[SettingID]PersistedSetting, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out, true
}

// Update merges entries flagged persist-value into the store for
// origin.
func (s *Store) Update(origin Origin, entries []SettingIDValue) {
	var toPersist []SettingIDValue
	for _, e := range entries {
		if e.Flag&FlagSettingPersistValue != 0 {
			toPersist = append(toPersist, e)
		}
	}
	if len(toPersist) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byOrigin == nil {
		s.byOrigin = make(map[Origin]map[SettingID]PersistedSetting)
	}
	m, ok := s.byOrigin[origin]
	if !ok {
		m = make(map[SettingID]PersistedSetting)
		s.byOrigin[origin] = m
	}
	for _, e := range toPersist {
		m[e.ID] = PersistedSetting{Value: e.Value, Persisted: true}
	}
}

// Clear drops every persisted entry for origin, as required when a
// SETTINGS frame arrives with FLAG_SETTINGS_CLEAR_SETTINGS set.
func (s *Store) Clear(origin Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byOrigin, origin)
}
