package collection

import (
	"maps"
	"slices"
)

// Selection is a set of record ids spanning the whole collection, not just
// the visible page.
type Selection struct {
	ids map[string]struct{}
}

func NewSelection(ids ...string) *Selection {
	s := &Selection{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *Selection) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Add(ids ...string) {
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *Selection) Remove(ids ...string) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Toggle flips membership of id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	if s.Has(id) {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// ContainsAll reports whether every id is selected. It is false for no ids.
func (s *Selection) ContainsAll(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Count returns how many of ids are selected.
func (s *Selection) Count(ids []string) int {
	n := 0
	for _, id := range ids {
		if s.Has(id) {
			n++
		}
	}
	return n
}

func (s *Selection) Len() int {
	return len(s.ids)
}

func (s *Selection) Clear() {
	clear(s.ids)
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []string {
	return slices.Sorted(maps.Keys(s.ids))
}
