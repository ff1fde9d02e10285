package level

import (
	"errors"
	"testing"

	"github.com/dr-vortex/annihilation/internal/sim/geom"
)

func TestSelect(t *testing.T) {
	l := newTestLevel(t)
	sys := l.AddSystem("Sol", geom.Vec2{})
	star, _ := l.AddStar(sys.ID, "Sun", geom.Vec3{})
	p := newTestPlayer(t, l, nil)
	s, _ := l.AddShip(p.ID, "")

	all, err := l.Select("*")
	if err != nil || len(all) != l.Len() {
		t.Fatalf("select *: %d of %d, err=%v", len(all), l.Len(), err)
	}
	byName, _ := l.Select("@Sun")
	if len(byName) != 1 || Base(byName[0]).ID != star.ID {
		t.Fatalf("select @Sun: %v", byName)
	}
	byID, _ := l.Select("#" + s.ID)
	if len(byID) != 1 || byID[0].Kind() != KindShip {
		t.Fatalf("select #id: %v", byID)
	}
	ships, _ := l.Select(".SHIP")
	if len(ships) != 1 {
		t.Fatalf("select .SHIP: %d", len(ships))
	}
	bodies, _ := l.Select(".celestial")
	if len(bodies) != 1 {
		t.Fatalf("select .celestial: %d", len(bodies))
	}
	union, _ := l.Select("#"+s.ID, ".ship", "@Sun")
	if len(union) != 2 {
		t.Fatalf("union: %d", len(union))
	}

	for _, bad := range []string{"ship", "!x", "", "@", "~ship"} {
		if _, err := l.Select(bad); !errors.Is(err, ErrInvalidSelector) {
			t.Fatalf("selector %q: expected ErrInvalidSelector, got %v", bad, err)
		}
	}
}

func TestReparent_KeepsAbsolutePosition(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, nil)
	p.Position = geom.V3(10, 0, 0)
	s, _ := l.AddShip(p.ID, "")
	h, _ := Lookup[*Hardpoint](l, s.Hardpoints[0])

	before, _ := l.AbsolutePosition(h.ID)
	if err := l.Reparent(h.ID, ""); err != nil {
		t.Fatalf("reparent to root: %v", err)
	}
	after, _ := l.AbsolutePosition(h.ID)
	if !geom.NearlyEqual(before, after, 1e-12) {
		t.Fatalf("absolute moved: %v -> %v", before, after)
	}
	if h.Position != before {
		t.Fatalf("root local=%v want %v", h.Position, before)
	}
}

func TestReparent_RejectsCycles(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, nil)
	s, _ := l.AddShip(p.ID, "")
	h := s.Hardpoints[0]

	if err := l.Reparent(s.ID, s.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("self: expected ErrInvalidOperation, got %v", err)
	}
	if err := l.Reparent(p.ID, h); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("descendant: expected ErrInvalidOperation, got %v", err)
	}
	if s.ParentID != p.ID || p.ParentID != "" {
		t.Fatalf("failed reparent changed parents")
	}
	if err := l.Reparent(s.ID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing parent: expected ErrNotFound, got %v", err)
	}
}

func TestStationParts_ConnectAndRemove(t *testing.T) {
	l := newTestLevel(t)
	sys := l.AddSystem("Sol", geom.Vec2{})
	st, _ := l.AddStation(sys.ID, "outpost", geom.Vec3{})
	core, _ := l.AddStationPart(st.ID, "core")
	arm, _ := l.AddStationPart(st.ID, "connecter_i")
	mount, _ := l.AddStationPart(st.ID, "laser_mount")

	if len(core.Connections) != 4 || len(mount.Connections) != 1 {
		t.Fatalf("connection slots: core=%d mount=%d", len(core.Connections), len(mount.Connections))
	}
	if err := l.Connect(core.ID, 0, arm.ID, 1); err != nil {
		t.Fatalf("connect core-arm: %v", err)
	}
	if err := l.Connect(arm.ID, 0, mount.ID, 0); err != nil {
		t.Fatalf("connect arm-mount: %v", err)
	}
	// core +z connecter at 1, arm -z connecter at -0.5
	if !geom.NearlyEqual(arm.Position, geom.V3(0, 0, 1.5), 1e-12) {
		t.Fatalf("arm position %v", arm.Position)
	}
	if err := l.Connect(core.ID, 0, mount.ID, 0); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("reused connecter: expected ErrInvalidOperation, got %v", err)
	}
	if err := l.Connect(core.ID, 9, mount.ID, 0); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("bad connecter: expected ErrInvalidOperation, got %v", err)
	}

	log := watch(l)
	if err := l.Remove(arm.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if core.Connections[0] != "" || mount.Connections[0] != "" {
		t.Fatalf("neighbours still connected: core=%v mount=%v", core.Connections, mount.Connections)
	}
	if len(st.Parts) != 2 {
		t.Fatalf("station parts=%v", st.Parts)
	}
	if got := log.kinds(EventBodyRemoved); len(got) != 1 || got[0].EmitterID != arm.ID {
		t.Fatalf("removal events: %+v", got)
	}

	if err := l.Remove(st.ID); err != nil {
		t.Fatalf("remove station: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("station parts outlived station: %v", l.IDs())
	}
	if len(sys.BodyIDs) != 0 {
		t.Fatalf("system still lists %v", sys.BodyIDs)
	}
}

func TestRemove_EventBeforeRelease(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, nil)
	s, _ := l.AddShip(p.ID, "")
	seen := false
	l.Subscribe(func(ev Event) {
		if ev.Kind == EventEntityRemoved && ev.EmitterID == s.ID {
			_, seen = l.Get(s.ID)
		}
	})
	if err := l.Remove(s.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !seen {
		t.Fatalf("ship was gone when its removal event fired")
	}
	if len(p.Fleet) != 0 {
		t.Fatalf("fleet=%v", p.Fleet)
	}
	if err := l.Remove(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove: expected ErrNotFound, got %v", err)
	}
}

func TestGenerateSystem_Deterministic(t *testing.T) {
	build := func() *Level {
		l := newTestLevel(t)
		if _, err := l.GenerateSystem("Vega", geom.Vec2{X: 300, Y: 400}); err != nil {
			t.Fatalf("generate: %v", err)
		}
		return l
	}
	a, b := build(), build()
	if a.Len() != b.Len() {
		t.Fatalf("entity count %d vs %d", a.Len(), b.Len())
	}
	for _, id := range a.IDs() {
		ea, _ := a.Get(id)
		eb, ok := b.Get(id)
		if !ok || Base(ea).Position != Base(eb).Position {
			t.Fatalf("entity %s differs", id)
		}
	}
	sys := a.Systems()[0]
	// distance 500: log10(500)-1
	if sys.Difficulty < 1.69 || sys.Difficulty > 1.7 {
		t.Fatalf("difficulty=%v", sys.Difficulty)
	}
	stars, _ := a.Select(".star")
	planets, _ := a.Select(".planet")
	if len(stars) != 1 || len(planets) < 1 {
		t.Fatalf("stars=%d planets=%d", len(stars), len(planets))
	}
}

func TestSystemDifficulty_Floor(t *testing.T) {
	l := newTestLevel(t)
	if got := l.SystemDifficulty(geom.Vec2{X: 5}); got != 0.25 {
		t.Fatalf("near origin difficulty=%v want 0.25", got)
	}
}

func TestStep_UpdateEvents(t *testing.T) {
	l := newTestLevel(t)
	log := watch(l)
	stepN(l, 3)
	if got := log.kinds(EventUpdate); len(got) != 3 || got[2].Tick != 3 {
		t.Fatalf("update events: %+v", got)
	}
}

func TestNoteID_IgnoresHugeSuffix(t *testing.T) {
	l := newTestLevel(t)
	l.AddSystem("Sol", geom.Vec2{})
	if _, err := l.AddShip("", ""); err != nil {
		t.Fatalf("ship: %v", err)
	}
	huge, err := l.AddPlayer("ship-18446744073709551615", "wrap")
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	ids := map[string]bool{huge.ID: true}
	// a wrapped counter would hand out ship-2 again here
	for i := 0; i < 3; i++ {
		s, err := l.AddShip(huge.ID, "")
		if err != nil {
			t.Fatalf("ship %d: %v", i, err)
		}
		if ids[s.ID] {
			t.Fatalf("duplicate id %s", s.ID)
		}
		ids[s.ID] = true
	}
	if l.nextID >= maxNotedID {
		t.Fatalf("nextID=%d pushed by a foreign id", l.nextID)
	}

	if _, err := l.AddPlayer("player-77", "seventy"); err != nil {
		t.Fatalf("player: %v", err)
	}
	if s, _ := l.AddShip("", ""); s.ID != "ship-78" {
		t.Fatalf("next id %s, want ship-78", s.ID)
	}
}
