package snapshot

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dr-vortex/annihilation/internal/sim/geom"
)

func sample() *Level {
	return &Level{
		Version:    Version,
		ID:         "L1",
		Name:       "test",
		Date:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Difficulty: 1,
		Tick:       42,
		Systems: []System{{
			ID: "sys-1", Name: "Sol", Position: geom.Vec2{X: 3, Y: 4}, BodyIDs: []string{"star-1"},
		}},
		Entities: []Entity{
			{EntityType: TypeStar, ID: "star-1", Position: geom.V3(0, 0, 0), Radius: 10, System: "sys-1"},
			{EntityType: TypeShip, ID: "ship-2", Position: geom.V3(1, 2, 3), HP: 10, MaxHP: 10, Type: "mosquito", IsTargetable: true},
		},
	}
}

func TestWriteReadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "saves", FileName(42))
	in := sample()
	if err := WriteFile(p, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, err := ReadHeader(p)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Version != Version || h.LevelID != "L1" || h.Tick != 42 {
		t.Fatalf("header: %+v", h)
	}
	out, err := ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Version != in.Version || len(out.Entities) != 2 || !out.Date.Equal(in.Date) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.Entities[1].Position != geom.V3(1, 2, 3) || out.Systems[0].Position != (geom.Vec2{X: 3, Y: 4}) {
		t.Fatalf("positions lost: %+v", out.Entities[1])
	}
}

func TestCheckAndUpgrade(t *testing.T) {
	s := sample()
	if err := Check(s); err != nil {
		t.Fatalf("check current: %v", err)
	}
	s.Version = "0.9"
	if err := Check(s); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := Upgrade(s); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

type recorder struct {
	added, removed, updated []string
}

func (r *recorder) Add(e Entity)     { r.added = append(r.added, e.ID) }
func (r *recorder) Remove(id string) { r.removed = append(r.removed, id) }
func (r *recorder) Update(e Entity)  { r.updated = append(r.updated, e.ID) }

func TestApply(t *testing.T) {
	prev := sample()
	cur := sample()
	cur.Entities = []Entity{
		cur.Entities[1],
		{EntityType: TypePlayer, ID: "player-3"},
	}
	var r recorder
	Apply(prev, cur, &r)
	if len(r.removed) != 1 || r.removed[0] != "star-1" {
		t.Fatalf("removed=%v", r.removed)
	}
	if len(r.added) != 1 || r.added[0] != "player-3" {
		t.Fatalf("added=%v", r.added)
	}
	if len(r.updated) != 1 || r.updated[0] != "ship-2" {
		t.Fatalf("updated=%v", r.updated)
	}

	c := Diff(nil, cur)
	if len(c.Added) != 2 || len(c.Removed) != 0 || len(c.Updated) != 0 {
		t.Fatalf("diff from nil: %+v", c)
	}
}
