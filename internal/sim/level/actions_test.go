package level

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
)

func TestCreateItem_ConsumesRecipe(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 10})

	ok, err := l.TryAction(p.ID, CreateItem{Item: "hull_plating"})
	if err != nil || !ok {
		t.Fatalf("create_item: ok=%v err=%v", ok, err)
	}
	if p.Storage.Count("metal") != 0 || p.Storage.Count("hull_plating") != 1 {
		t.Fatalf("storage after craft: %v", p.Storage.Items())
	}

	ok, err = l.TryAction(p.ID, CreateItem{Item: "hull_plating"})
	if err != nil || ok {
		t.Fatalf("second create_item: ok=%v err=%v", ok, err)
	}
	if p.Storage.Count("metal") != 0 || p.Storage.Count("hull_plating") != 1 {
		t.Fatalf("rejected craft changed storage: %v", p.Storage.Items())
	}
}

func TestCreateItem_RejectsFreeRecipes(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 10})

	for _, a := range []CreateItem{
		{Item: "ancients", Recipe: map[string]int{"metal": 0}},
		{Item: "ancients", Recipe: map[string]int{"metal": 1}},
		{Item: "fuel", Recipe: map[string]int{"metal": -5}},
		{Item: "hull_plating", Recipe: map[string]int{"metal": 0}},
		{Item: "hull_plating", Recipe: map[string]int{"metal": 10, "fuel": -1}},
		{Item: "hull_plating", Recipe: map[string]int{"metal": 9}},
	} {
		ok, err := l.TryAction(p.ID, a)
		if err != nil || ok {
			t.Fatalf("%s %v: ok=%v err=%v", a.Item, a.Recipe, ok, err)
		}
	}
	if p.Storage.Count("metal") != 10 || p.Storage.Count("ancients") != 0 ||
		p.Storage.Count("fuel") != 0 || p.Storage.Count("hull_plating") != 0 {
		t.Fatalf("rejected crafts changed storage: %v", p.Storage.Items())
	}

	// a sent recipe covering the catalog cost is paid in full
	ok, err := l.TryAction(p.ID, CreateItem{Item: "hull_plating", Recipe: map[string]int{"metal": 10}})
	if err != nil || !ok || p.Storage.Count("metal") != 0 || p.Storage.Count("hull_plating") != 1 {
		t.Fatalf("covering recipe: ok=%v err=%v storage=%v", ok, err, p.Storage.Items())
	}
}

func TestCreateItem_StorageWithoutProductFails(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, nil)
	// a storage over a narrower item set than the level's catalog
	rawOnly := &catalogs.ItemCatalog{
		IDs:  []string{"metal"},
		Defs: map[string]catalogs.ItemDef{"metal": l.Catalogs().Items.Defs["metal"]},
	}
	p.Storage = inventory.New(rawOnly, 0)
	_ = p.Storage.Add("metal", 10)

	ok, err := l.TryAction(p.ID, CreateItem{Item: "hull_plating"})
	if ok || !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if p.Storage.Count("metal") != 10 {
		t.Fatalf("recipe spent on a failed craft: %v", p.Storage.Items())
	}
}

func TestCreateItem_CapacityGate(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 10})
	// ten metal (weight 10) become one plate (weight 5)
	p.Storage.SetMax(5)
	ok, err := l.TryAction(p.ID, CreateItem{Item: "hull_plating"})
	if err != nil || !ok {
		t.Fatalf("craft reducing weight should pass: ok=%v err=%v", ok, err)
	}

	_ = p.Storage.AddItems(map[string]int{"metal": 5, "fuel": 5})
	// 12.5 held, a thruster would leave 8
	ok, _ = l.TryAction(p.ID, CreateItem{Item: "thruster"})
	if ok {
		t.Fatalf("craft over capacity accepted")
	}
	if p.Storage.Count("thruster") != 0 || p.Storage.Count("metal") != 5 {
		t.Fatalf("rejected craft changed storage: %v", p.Storage.Items())
	}
}

func TestCreateShip_Scenario(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 50})
	if p.XP != 0 {
		t.Fatalf("xp=%d", p.XP)
	}

	ok, err := l.TryAction(p.ID, CreateShip{Recipe: map[string]int{"metal": 50}})
	if err != nil || !ok {
		t.Fatalf("create_ship: ok=%v err=%v", ok, err)
	}
	if got := p.Storage.Count("metal"); got != 0 {
		t.Fatalf("metal=%d want 0", got)
	}
	if len(p.Fleet) != 1 {
		t.Fatalf("fleet=%v", p.Fleet)
	}
	s, err := l.Ship(p.Fleet[0])
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if s.OwnerID != p.ID || s.ParentID != p.ID {
		t.Fatalf("ship owner=%q parent=%q", s.OwnerID, s.ParentID)
	}
	if len(s.Hardpoints) == 0 {
		t.Fatalf("ship has no hardpoints")
	}
}

func TestCreateShip_Rejections(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 49})

	if ok, err := l.TryAction(p.ID, CreateShip{}); ok || err != nil {
		t.Fatalf("short on metal: ok=%v err=%v", ok, err)
	}
	// an inline recipe cheaper than the catalog one is refused
	if ok, err := l.TryAction(p.ID, CreateShip{Recipe: map[string]int{"metal": 1}}); ok || err != nil {
		t.Fatalf("cheap recipe: ok=%v err=%v", ok, err)
	}
	if p.Storage.Count("metal") != 49 || len(p.Fleet) != 0 {
		t.Fatalf("state changed: %v fleet=%v", p.Storage.Items(), p.Fleet)
	}
	if _, err := l.TryAction(p.ID, CreateShip{Type: "dreadnought"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateShip_RejectsNonPositiveRecipe(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 50})
	ok, err := l.TryAction(p.ID, CreateShip{Recipe: map[string]int{"metal": 50, "fuel": -3}})
	if err != nil || ok {
		t.Fatalf("negative entry: ok=%v err=%v", ok, err)
	}
	if p.Storage.Count("metal") != 50 || len(p.Fleet) != 0 {
		t.Fatalf("rejected build changed state: %v fleet=%v", p.Storage.Items(), p.Fleet)
	}
}

func TestDoResearch(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 50, "minerals": 20})
	ok, err := l.TryAction(p.ID, DoResearch{Research: "laser"})
	if err != nil || !ok {
		t.Fatalf("do_research: ok=%v err=%v", ok, err)
	}
	if p.Research["laser"] != 1 || p.Storage.Total() != 0 {
		t.Fatalf("research=%v storage=%v", p.Research, p.Storage.Items())
	}
	// level 1 costs double and nothing is left
	ok, err = l.TryAction(p.ID, DoResearch{Research: "laser"})
	if err != nil || ok {
		t.Fatalf("unaffordable research: ok=%v err=%v", ok, err)
	}
	if p.Research["laser"] != 1 {
		t.Fatalf("research moved: %v", p.Research)
	}
}

func TestWarp(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"fuel": 20})
	src := l.Systems()[0]
	dst := l.AddSystem("Far", geom.Vec2{X: 100})
	s, err := l.AddShip(p.ID, "")
	if err != nil {
		t.Fatalf("add ship: %v", err)
	}
	if s.SystemID != src.ID {
		t.Fatalf("ship system=%q want %q", s.SystemID, src.ID)
	}

	ok, err := l.TryAction(p.ID, Warp{Ships: []string{s.ID}, System: dst.ID})
	if err != nil || !ok {
		t.Fatalf("warp: ok=%v err=%v", ok, err)
	}
	if s.SystemID != dst.ID {
		t.Fatalf("ship system=%q want %q", s.SystemID, dst.ID)
	}
	// 100 units at 0.1 per unit
	if got := p.Storage.Count("fuel"); got != 10 {
		t.Fatalf("fuel=%d want 10", got)
	}
	if ok, _ := l.TryAction(p.ID, Warp{Ships: []string{s.ID}, System: dst.ID}); ok {
		t.Fatalf("warp into current system accepted")
	}

	other := newTestPlayer(t, l, nil)
	if _, err := l.TryAction(other.ID, Warp{Ships: []string{s.ID}, System: src.ID}); !errors.Is(err, ErrWrongOwner) {
		t.Fatalf("expected ErrWrongOwner, got %v", err)
	}
}

func TestWarp_InsufficientFuelIsAtomic(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"fuel": 15})
	dst := l.AddSystem("Far", geom.Vec2{X: 100})
	a, _ := l.AddShip(p.ID, "")
	b, _ := l.AddShip(p.ID, "")
	src := a.SystemID

	ok, err := l.TryAction(p.ID, Warp{Ships: []string{a.ID, b.ID}, System: dst.ID})
	if err != nil || ok {
		t.Fatalf("warp: ok=%v err=%v", ok, err)
	}
	if a.SystemID != src || b.SystemID != src || p.Storage.Count("fuel") != 15 {
		t.Fatalf("partial warp applied")
	}
}

func TestMove_FollowsPathAroundPlanet(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, nil)
	sys := l.Systems()[0]
	if _, err := l.AddPlanet(sys.ID, "rock", geom.V3(50, 0, 0), "", 5); err != nil {
		t.Fatalf("planet: %v", err)
	}
	s, _ := l.AddShip(p.ID, "")
	log := watch(l)

	target := geom.V3(100, 0, 0)
	ok, err := l.TryAction(p.ID, Move{Entities: []string{s.ID}, Target: target})
	if err != nil || !ok {
		t.Fatalf("move: ok=%v err=%v", ok, err)
	}
	if s.Path == nil || len(log.kinds(EventFollowPathStart)) != 1 {
		t.Fatalf("path not started")
	}
	if s.Path.Len() < 3 {
		t.Fatalf("expected detour around planet, got %d waypoints", s.Path.Len())
	}

	stepN(l, 100)
	if s.Path != nil {
		t.Fatalf("ship still moving")
	}
	pos, _ := l.AbsolutePosition(s.ID)
	if !geom.NearlyEqual(pos, target, 1e-9) {
		t.Fatalf("ship at %v want %v", pos, target)
	}
	if len(log.kinds(EventFollowPathEnd)) != 1 {
		t.Fatalf("missing follow_path.end")
	}
}

func TestMove_IntoObstacleIsNoop(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, nil)
	sys := l.Systems()[0]
	_, _ = l.AddPlanet(sys.ID, "rock", geom.V3(50, 0, 0), "", 5)
	s, _ := l.AddShip(p.ID, "")
	ok, err := l.TryAction(p.ID, Move{Entities: []string{s.ID}, Target: geom.V3(50, 0, 1)})
	if err != nil || !ok {
		t.Fatalf("move: ok=%v err=%v", ok, err)
	}
	if s.Path != nil {
		t.Fatalf("empty route should not start a path")
	}
}

func TestReset(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 500})
	_, _ = l.AddShip(p.ID, "")
	p.Research["laser"] = 2
	log := watch(l)

	ok, err := l.TryAction(p.ID, Reset{})
	if err != nil || !ok {
		t.Fatalf("reset: ok=%v err=%v", ok, err)
	}
	if len(p.Fleet) != 0 || len(p.Research) != 0 || p.Storage.Total() != 0 {
		t.Fatalf("reset left state: fleet=%v research=%v", p.Fleet, p.Research)
	}
	if ships, _ := l.Select(".ship"); len(ships) != 0 {
		t.Fatalf("ships survived reset: %d", len(ships))
	}
	if len(log.kinds(EventPlayerReset)) != 1 {
		t.Fatalf("missing player.reset")
	}
}

func TestTryAction_Structural(t *testing.T) {
	l := newTestLevel(t)
	if _, err := l.TryAction("nobody", CreateItem{Item: "metal"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p := newTestPlayer(t, l, nil)
	if _, err := l.TryAction(p.ID, CreateItem{Item: "unobtainium"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := DecodeAction("teleport", nil); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestDecodeAction(t *testing.T) {
	act, err := DecodeAction(ActionMove, json.RawMessage(`{"entities":["ship-1"],"target":[1,2,3]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mv, ok := act.(Move)
	if !ok || mv.Target != geom.V3(1, 2, 3) || len(mv.Entities) != 1 {
		t.Fatalf("decoded %#v", act)
	}
	if _, err := DecodeAction(ActionReset, nil); err != nil {
		t.Fatalf("reset without payload: %v", err)
	}
	if _, err := DecodeAction(ActionWarp, json.RawMessage(`{"ships":"x"}`)); err == nil {
		t.Fatalf("expected payload error")
	}
}
