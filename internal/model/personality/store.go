package personality

import "strings"

// Store exposes the personality catalogue to handlers and the relay.
type Store interface {
	List() []Type
	FindByCode(code string) (Type, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Type
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied types.
func NewMemoryStore(items []Type) *MemoryStore {
	return &MemoryStore{items: append([]Type(nil), items...)}
}

// List returns the catalogue in seed order.
func (s *MemoryStore) List() []Type {
	return append([]Type(nil), s.items...)
}

// FindByCode looks up a type by its four-letter code, ignoring case.
func (s *MemoryStore) FindByCode(code string) (Type, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, item := range s.items {
		if item.Code == code {
			return item, true
		}
	}
	return Type{}, false
}

// Codes returns the four-letter codes held by the store.
func (s *MemoryStore) Codes() []string {
	codes := make([]string, 0, len(s.items))
	for _, item := range s.items {
		codes = append(codes, item.Code)
	}
	return codes
}
