package draw

import "github.com/hashicorp/golang-lru/v2/simplelru"

// seenSet remembers the most recent raw payloads, evicting the oldest first.
// Lookups use Contains so a repeated payload does not refresh its position.
type seenSet struct {
	lru *simplelru.LRU[string, struct{}]
}

func newSeenSet(limit int) *seenSet {
	if limit <= 0 {
		limit = 1
	}
	// NewLRU only fails for a non-positive size.
	lru, _ := simplelru.NewLRU[string, struct{}](limit, nil)
	return &seenSet{lru: lru}
}

func (s *seenSet) Has(payload string) bool {
	return s.lru.Contains(payload)
}

// Add records payload and reports whether it was new.
func (s *seenSet) Add(payload string) bool {
	if s.lru.Contains(payload) {
		return false
	}
	s.lru.Add(payload, struct{}{})
	return true
}

func (s *seenSet) Len() int { return s.lru.Len() }
