package state

import (
	"fmt"

	"github.com/zimi-go/zimi/internal/safeio"
)

// Collections is the persisted shape of collections.json, per
// spec.md §4.8: a name to member-archive-ID-list map.
type Collections map[string][]string

// ListCollections returns every collection. Missing file yields an
// empty map, not an error.
func (s *Store) ListCollections() Collections {
	s.colMu.Lock()
	defer s.colMu.Unlock()
	return s.loadCollectionsLocked()
}

func (s *Store) loadCollectionsLocked() Collections {
	var c Collections
	if err := safeio.ReadJSON(s.path("collections.json"), &c); err != nil || c == nil {
		return Collections{}
	}
	return c
}

// SaveCollection creates or replaces the member list for name.
func (s *Store) SaveCollection(name string, members []string) error {
	s.colMu.Lock()
	defer s.colMu.Unlock()
	c := s.loadCollectionsLocked()
	c[name] = members
	if err := safeio.WriteJSONAtomic(s.path("collections.json"), c); err != nil {
		return fmt.Errorf("state: save collections: %w", err)
	}
	return nil
}

// DeleteCollection removes name. A no-op if it doesn't exist.
func (s *Store) DeleteCollection(name string) error {
	s.colMu.Lock()
	defer s.colMu.Unlock()
	c := s.loadCollectionsLocked()
	if _, ok := c[name]; !ok {
		return nil
	}
	delete(c, name)
	if err := safeio.WriteJSONAtomic(s.path("collections.json"), c); err != nil {
		return fmt.Errorf("state: delete collection: %w", err)
	}
	return nil
}
