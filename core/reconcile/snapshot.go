package reconcile

import (
	"encoding/json"
	"fmt"
)

// Snapshot is a JSON-shaped dataset: collection name to object keyed by record id.
// The settings collection holds a single object instead.
type Snapshot map[string]any

// DecodeSnapshot parses a JSON document into a Snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &InputError{Reason: fmt.Sprintf("decode: %v", err), Err: ErrInvalidSnapshot}
	}
	if s == nil {
		s = Snapshot{}
	}
	return s, nil
}

// Collection returns the normalized collection. Missing collections are empty.
func (s Snapshot) Collection(name CollectionName) (Collection, error) {
	raw, ok := s[string(name)]
	if !ok || raw == nil {
		return Collection{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &InputError{Collection: name, Reason: fmt.Sprintf("expected object, got %T", raw), Err: ErrInvalidSnapshot}
	}
	if name == CollectionSettings {
		return Collection{SettingsKey: obj}, nil
	}
	return Collection(obj), nil
}

// Collections returns every normalized collection.
func (s Snapshot) Collections() (map[CollectionName]Collection, error) {
	out := make(map[CollectionName]Collection, len(Collections))
	for _, name := range Collections {
		c, err := s.Collection(name)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

// Count returns the number of records in a collection, zero when malformed.
func (s Snapshot) Count(name CollectionName) int {
	c, err := s.Collection(name)
	if err != nil {
		return 0
	}
	return len(c)
}

// SnapshotOf builds a Snapshot from normalized collections. A settings collection
// without the sentinel entry is omitted.
func SnapshotOf(collections map[CollectionName]Collection) Snapshot {
	s := make(Snapshot, len(collections))
	for name, c := range collections {
		if name == CollectionSettings {
			if v, ok := c[SettingsKey]; ok {
				s[string(name)] = v
			}
			continue
		}
		s[string(name)] = map[string]any(c)
	}
	return s
}
