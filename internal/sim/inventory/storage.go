package inventory

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
)

var (
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrUnknownItem           = errors.New("unknown item")
)

// Storage holds an integer amount for every item kind in the catalog.
// Amounts never go negative: removals that would underflow are rejected.
type Storage struct {
	items   *catalogs.ItemCatalog
	amounts map[string]int
	max     float64
}

func New(items *catalogs.ItemCatalog, max float64) *Storage {
	s := &Storage{items: items, amounts: make(map[string]int, len(items.IDs)), max: max}
	for _, id := range items.IDs {
		s.amounts[id] = 0
	}
	return s
}

func (s *Storage) Max() float64 { return s.max }

func (s *Storage) SetMax(max float64) { s.max = max }

func (s *Storage) Count(item string) int { return s.amounts[item] }

// Known reports whether item is part of the catalog item set.
func (s *Storage) Known(item string) bool {
	_, ok := s.amounts[item]
	return ok
}

func (s *Storage) Add(item string, n int) error {
	if !s.Known(item) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, item)
	}
	if n < 0 {
		return s.Remove(item, -n)
	}
	s.amounts[item] += n
	return nil
}

func (s *Storage) Remove(item string, n int) error {
	if !s.Known(item) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, item)
	}
	if n < 0 {
		return s.Add(item, -n)
	}
	if s.amounts[item] < n {
		return fmt.Errorf("%w: %s have %d need %d", ErrInsufficientResources, item, s.amounts[item], n)
	}
	s.amounts[item] -= n
	return nil
}

func (s *Storage) Has(items map[string]int) bool {
	for id, n := range items {
		if n <= 0 {
			continue
		}
		if s.amounts[id] < n {
			return false
		}
	}
	return true
}

// AddItems adds every entry; unknown ids fail before anything changes.
func (s *Storage) AddItems(items map[string]int) error {
	for id := range items {
		if !s.Known(id) {
			return fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
	}
	for id, n := range items {
		if n > 0 {
			s.amounts[id] += n
		}
	}
	return nil
}

// RemoveItems removes all entries or none.
func (s *Storage) RemoveItems(items map[string]int) error {
	for _, id := range sortedIDs(items) {
		if !s.Known(id) {
			return fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
		if n := items[id]; n > 0 && s.amounts[id] < n {
			return fmt.Errorf("%w: %s have %d need %d", ErrInsufficientResources, id, s.amounts[id], n)
		}
	}
	for id, n := range items {
		if n > 0 {
			s.amounts[id] -= n
		}
	}
	return nil
}

func (s *Storage) weight(id string) float64 { return s.items.Defs[id].Weight }

// Total is the weighted sum of everything held.
func (s *Storage) Total() float64 {
	var t float64
	for _, id := range s.items.IDs {
		t += float64(s.amounts[id]) * s.weight(id)
	}
	return t
}

// WeightOf is the weighted sum of items, whether held or not.
func (s *Storage) WeightOf(items map[string]int) float64 {
	var t float64
	for id, n := range items {
		t += float64(n) * s.weight(id)
	}
	return t
}

// Fits reports whether adding extra keeps Total within Max. A non-positive
// Max means unbounded.
func (s *Storage) Fits(extra map[string]int) bool {
	if s.max <= 0 {
		return true
	}
	return s.Total()+s.WeightOf(extra) <= s.max+1e-9
}

// Empty zeroes items matching filter, or every item when filter is nil.
func (s *Storage) Empty(filter func(item string) bool) {
	for id := range s.amounts {
		if filter == nil || filter(id) {
			s.amounts[id] = 0
		}
	}
}

// Items returns the non-zero entries.
func (s *Storage) Items() map[string]int {
	out := map[string]int{}
	for id, n := range s.amounts {
		if n != 0 {
			out[id] = n
		}
	}
	return out
}

// Load replaces the contents. Unknown ids are dropped so saves survive
// catalog edits.
func (s *Storage) Load(items map[string]int) {
	s.Empty(nil)
	for id, n := range items {
		if s.Known(id) && n > 0 {
			s.amounts[id] = n
		}
	}
}

func (s *Storage) Clone() *Storage {
	c := New(s.items, s.max)
	for id, n := range s.amounts {
		c.amounts[id] = n
	}
	return c
}

// Scaled multiplies every amount by f, rounding up.
func Scaled(items map[string]int, f float64) map[string]int {
	out := make(map[string]int, len(items))
	for id, n := range items {
		out[id] = int(math.Ceil(float64(n) * f))
	}
	return out
}

func sortedIDs(m map[string]int) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
