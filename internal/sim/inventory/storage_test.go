package inventory

import (
	"errors"
	"testing"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
)

func testItems(t *testing.T) *catalogs.ItemCatalog {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return &cats.Items
}

func TestStorage_AddRemove(t *testing.T) {
	s := New(testItems(t), 0)
	if err := s.Add("metal", 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Remove("metal", 4); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := s.Count("metal"); got != 6 {
		t.Fatalf("metal=%d want 6", got)
	}
	err := s.Remove("metal", 7)
	if !errors.Is(err, ErrInsufficientResources) {
		t.Fatalf("expected ErrInsufficientResources, got %v", err)
	}
	if got := s.Count("metal"); got != 6 {
		t.Fatalf("failed remove changed storage: metal=%d", got)
	}
	if err := s.Add("unobtainium", 1); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
}

func TestStorage_RemoveItemsAtomic(t *testing.T) {
	s := New(testItems(t), 0)
	_ = s.AddItems(map[string]int{"metal": 5, "fuel": 1})
	err := s.RemoveItems(map[string]int{"metal": 5, "fuel": 2})
	if !errors.Is(err, ErrInsufficientResources) {
		t.Fatalf("expected ErrInsufficientResources, got %v", err)
	}
	if s.Count("metal") != 5 || s.Count("fuel") != 1 {
		t.Fatalf("partial removal: %v", s.Items())
	}
	if err := s.RemoveItems(map[string]int{"metal": 5, "fuel": 1}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(s.Items()) != 0 {
		t.Fatalf("expected empty, got %v", s.Items())
	}
}

func TestStorage_TotalAndFits(t *testing.T) {
	s := New(testItems(t), 20)
	_ = s.AddItems(map[string]int{"metal": 4, "fuel": 4, "hull_plating": 2})
	// 4*1 + 4*0.5 + 2*5
	if got := s.Total(); got != 16 {
		t.Fatalf("total=%v want 16", got)
	}
	if !s.Fits(map[string]int{"metal": 4}) {
		t.Fatalf("4 metal should fit")
	}
	if s.Fits(map[string]int{"hull_plating": 1}) {
		t.Fatalf("hull plating should not fit")
	}
}

func TestStorage_EmptyFilter(t *testing.T) {
	s := New(testItems(t), 0)
	_ = s.AddItems(map[string]int{"metal": 3, "fuel": 3})
	s.Empty(func(id string) bool { return id == "fuel" })
	if s.Count("fuel") != 0 || s.Count("metal") != 3 {
		t.Fatalf("filtered empty: %v", s.Items())
	}
	s.Empty(nil)
	if s.Total() != 0 {
		t.Fatalf("expected empty")
	}
}

func TestScaled(t *testing.T) {
	got := Scaled(map[string]int{"metal": 3}, 1.5)
	if got["metal"] != 5 {
		t.Fatalf("scaled=%v want metal:5", got)
	}
}
