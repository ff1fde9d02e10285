package research

import (
	"math"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
)

// Levels maps research id to the level reached.
type Levels map[string]int

func (l Levels) Clone() Levels {
	out := make(Levels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// CostAt is the price of advancing from level to level+1.
func CostAt(def catalogs.ResearchDef, level int) map[string]int {
	f := math.Pow(def.Scale, float64(level))
	out := make(map[string]int, len(def.Cost))
	for id, n := range def.Cost {
		out[id] = int(math.Ceil(float64(n) * f))
	}
	return out
}

// Locked reports whether requirements on other research or on the player's
// xp level are unmet.
func Locked(def catalogs.ResearchDef, levels Levels, xpLevel int) bool {
	if xpLevel < def.MinXPLevel {
		return true
	}
	for id, min := range def.Requires {
		if levels[id] < min {
			return true
		}
	}
	return false
}

// Do advances def by one level, paying from store. It returns false and
// changes nothing when the research is maxed, locked, or unaffordable.
func Do(def catalogs.ResearchDef, levels Levels, xpLevel int, store *inventory.Storage) bool {
	cur := levels[def.ID]
	if cur >= def.Max {
		return false
	}
	if Locked(def, levels, xpLevel) {
		return false
	}
	if err := store.RemoveItems(CostAt(def, cur)); err != nil {
		return false
	}
	levels[def.ID] = cur + 1
	return true
}
