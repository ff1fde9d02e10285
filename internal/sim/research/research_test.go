package research

import (
	"testing"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return cats
}

func TestCostAt_Monotonic(t *testing.T) {
	def := loadCats(t).Research.Defs["laser"]
	prev := CostAt(def, 0)
	for lvl := 1; lvl < def.Max; lvl++ {
		cur := CostAt(def, lvl)
		for id, n := range prev {
			if cur[id] <= n {
				t.Fatalf("cost of %s not increasing at level %d: %d -> %d", id, lvl, n, cur[id])
			}
		}
		prev = cur
	}
}

func TestDo_LevelsAndMax(t *testing.T) {
	cats := loadCats(t)
	def := cats.Research.Defs["laser"]
	store := inventory.New(&cats.Items, 0)
	_ = store.AddItems(map[string]int{"metal": 100000, "minerals": 100000})
	levels := Levels{}

	for i := 0; i < def.Max; i++ {
		want := CostAt(def, levels[def.ID])
		before := store.Count("metal")
		if !Do(def, levels, 0, store) {
			t.Fatalf("research step %d rejected", i)
		}
		if got := before - store.Count("metal"); got != want["metal"] {
			t.Fatalf("step %d paid %d metal, want %d", i, got, want["metal"])
		}
		if levels[def.ID] != i+1 {
			t.Fatalf("level=%d want %d", levels[def.ID], i+1)
		}
	}
	metal := store.Count("metal")
	if Do(def, levels, 0, store) {
		t.Fatalf("research past max accepted")
	}
	if levels[def.ID] != def.Max || store.Count("metal") != metal {
		t.Fatalf("rejected research changed state")
	}
}

func TestDo_LockedAndUnaffordable(t *testing.T) {
	cats := loadCats(t)
	store := inventory.New(&cats.Items, 0)
	_ = store.AddItems(map[string]int{"minerals": 1000, "fuel": 1000})
	levels := Levels{}

	reactor := cats.Research.Defs["reactor"]
	if !Locked(reactor, levels, 0) {
		t.Fatalf("reactor should require laser")
	}
	if Do(reactor, levels, 0, store) {
		t.Fatalf("locked research accepted")
	}
	levels["laser"] = 1
	if !Do(reactor, levels, 0, store) {
		t.Fatalf("unlocked research rejected")
	}

	armor := cats.Research.Defs["armor"]
	if Do(armor, levels, 0, store) {
		t.Fatalf("unaffordable research accepted")
	}
	if levels["armor"] != 0 {
		t.Fatalf("armor level changed")
	}
}
