package level

import (
	"fmt"
	"log/slog"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/combat"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
	"github.com/dr-vortex/annihilation/internal/sim/path"
	"github.com/dr-vortex/annihilation/internal/sim/research"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

type restorer func(l *Level, rec snapshot.Entity) error

// restorers is closed over the entity kinds; init checks it covers every tag.
var restorers = map[string]restorer{
	snapshot.TypeStar:        restoreStar,
	snapshot.TypePlanet:      restorePlanet,
	snapshot.TypeStation:     restoreStation,
	snapshot.TypeStationPart: restoreStationPart,
	snapshot.TypeShip:        restoreShip,
	snapshot.TypeHardpoint:   restoreHardpoint,
	snapshot.TypePlayer:      restorePlayer,
}

func init() {
	if len(restorers) != len(snapshot.Types) || len(kindTags) != len(snapshot.Types) {
		panic("level: entity restorers out of sync with snapshot types")
	}
	for _, t := range snapshot.Types {
		if restorers[t] == nil {
			panic("level: no restorer for " + t)
		}
	}
	for k, t := range kindTags {
		if restorers[t] == nil {
			panic(fmt.Sprintf("level: kind %d has no restorer", k))
		}
	}
}

// Snapshot captures the full level state.
func (l *Level) Snapshot() *snapshot.Level {
	snap := &snapshot.Level{
		Version:    l.Version,
		ID:         l.ID,
		Name:       l.Name,
		Date:       l.Date,
		Difficulty: l.Difficulty,
		Seed:       l.Seed,
		Tick:       l.tick,
		Systems:    []snapshot.System{},
		Entities:   make([]snapshot.Entity, 0, len(l.nodes)),
		Pending:    pendingRecords(l.queue.Pending()),
		RNG:        l.rngState(),
	}
	for _, s := range l.Systems() {
		snap.Systems = append(snap.Systems, snapshot.System{
			ID:         s.ID,
			Name:       s.Name,
			Position:   s.Position,
			Difficulty: s.Difficulty,
			BodyIDs:    append([]string{}, s.BodyIDs...),
		})
	}
	for _, id := range l.IDs() {
		snap.Entities = append(snap.Entities, l.record(l.nodes[id]))
	}
	return snap
}

func (l *Level) record(e Entity) snapshot.Entity {
	n := e.node()
	rec := snapshot.Entity{
		EntityType:   e.Kind().String(),
		ID:           n.ID,
		Name:         n.Name,
		Position:     n.Position,
		Rotation:     n.Rotation,
		Parent:       n.ParentID,
		Owner:        n.OwnerID,
		System:       n.SystemID,
		Selected:     n.Selected,
		IsTargetable: n.Targetable,
	}
	body := func(b *Body) {
		rec.Radius = b.Radius
		if b.Rewards != nil {
			rec.Rewards = nilIfEmpty(b.Rewards.Items())
		}
	}
	switch v := e.(type) {
	case *Star:
		body(&v.Body)
	case *Planet:
		body(&v.Body)
		rec.Biome = v.Biome
	case *Station:
		body(&v.Body)
		rec.Parts = append([]string(nil), v.Parts...)
	case *StationPart:
		body(&v.Body)
		rec.Type = v.Type
		rec.HP = v.HP
		rec.MaxHP = v.MaxHP
		rec.Station = v.StationID
		rec.Connections = append([]string(nil), v.Connections...)
	case *Ship:
		rec.Type = v.Type
		rec.HP = v.HP
		rec.MaxHP = v.MaxHP
		rec.Speed = v.Speed
		rec.Hardpoints = append([]string(nil), v.Hardpoints...)
		rec.Storage = nilIfEmpty(v.Cargo.Items())
		rec.Recipe = copyItems(v.Recipe)
		rec.XPValue = v.XPValue
		if v.Path != nil {
			rec.Path = &snapshot.Path{Waypoints: v.Path.Waypoints(), Cursor: v.Path.Cursor()}
		}
	case *Hardpoint:
		rec.Type = v.Hardpoint.Type
		rec.Reload = v.Reload
	case *Player:
		rec.Research = map[string]int(v.Research.Clone())
		rec.Fleet = append([]string(nil), v.Fleet...)
		rec.Storage = nilIfEmpty(v.Storage.Items())
		rec.XP = v.XP
		rec.XPPoints = v.XPPoints
	}
	return rec
}

func nilIfEmpty(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	return m
}

// Restore rebuilds a level from snap. The snapshot version must match the
// running version. Entities are restored bodies first, then ships,
// hardpoints and players.
func Restore(snap *snapshot.Level, cats *catalogs.Catalogs, tune tuning.Tuning, logger *slog.Logger) (*Level, error) {
	if err := snapshot.Check(snap); err != nil {
		return nil, err
	}
	l := New(Config{
		ID:         snap.ID,
		Name:       snap.Name,
		Difficulty: snap.Difficulty,
		Seed:       snap.Seed,
		Date:       snap.Date,
		Logger:     logger,
	}, cats, tune)
	l.Version = snap.Version
	l.Difficulty = snap.Difficulty
	l.tick = snap.Tick
	if snap.RNG != nil {
		if err := l.setRNGState(snap.RNG); err != nil {
			return nil, err
		}
	} else {
		// saves written without generator state
		l.reseed(snap.Seed ^ snap.Tick)
	}

	for _, s := range snap.Systems {
		if _, dup := l.systems[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate system %s", ErrInvalidOperation, s.ID)
		}
		l.systems[s.ID] = &System{
			ID:         s.ID,
			Name:       s.Name,
			Position:   s.Position,
			Difficulty: s.Difficulty,
			BodyIDs:    append([]string(nil), s.BodyIDs...),
		}
		l.noteID(s.ID)
	}

	byType := map[string][]snapshot.Entity{}
	for _, rec := range snap.Entities {
		if restorers[rec.EntityType] == nil {
			return nil, fmt.Errorf("%w: entity %s has unknown type %q", ErrInvalidOperation, rec.ID, rec.EntityType)
		}
		byType[rec.EntityType] = append(byType[rec.EntityType], rec)
	}
	for _, t := range snapshot.Types {
		for _, rec := range byType[t] {
			if err := restorers[t](l, rec); err != nil {
				return nil, fmt.Errorf("restore %s %s: %w", t, rec.ID, err)
			}
		}
	}

	pending := make([]combat.Resolution, 0, len(snap.Pending))
	for _, p := range snap.Pending {
		pending = append(pending, combat.Resolution(p))
	}
	l.queue.Restore(pending)
	return l, nil
}

func restoreNode(rec snapshot.Entity) Node {
	return Node{
		ID:         rec.ID,
		Name:       rec.Name,
		Position:   rec.Position,
		Rotation:   rec.Rotation,
		ParentID:   rec.Parent,
		OwnerID:    rec.Owner,
		SystemID:   rec.System,
		Selected:   rec.Selected,
		Targetable: rec.IsTargetable,
	}
}

func (l *Level) restoreBody(rec snapshot.Entity) Body {
	b := Body{Node: restoreNode(rec), Radius: rec.Radius, Rewards: inventory.New(&l.cats.Items, 0)}
	b.Rewards.Load(rec.Rewards)
	return b
}

func restoreStar(l *Level, rec snapshot.Entity) error {
	return l.add(&Star{Body: l.restoreBody(rec)})
}

func restorePlanet(l *Level, rec snapshot.Entity) error {
	return l.add(&Planet{Body: l.restoreBody(rec), Biome: rec.Biome})
}

func restoreStation(l *Level, rec snapshot.Entity) error {
	return l.add(&Station{Body: l.restoreBody(rec), Parts: append([]string(nil), rec.Parts...)})
}

func restoreStationPart(l *Level, rec snapshot.Entity) error {
	if _, err := Lookup[*Station](l, rec.Station); err != nil {
		return err
	}
	conns := make([]string, len(l.cats.StationParts.Defs[rec.Type].Connecters))
	copy(conns, rec.Connections)
	return l.add(&StationPart{
		Body:        l.restoreBody(rec),
		Type:        rec.Type,
		HP:          rec.HP,
		MaxHP:       rec.MaxHP,
		StationID:   rec.Station,
		Connections: conns,
	})
}

func restoreShip(l *Level, rec snapshot.Entity) error {
	cargo := 0.0
	if def, ok := l.cats.Ships.Defs[rec.Type]; ok {
		cargo = def.Cargo
	}
	s := &Ship{
		Node:       restoreNode(rec),
		Type:       rec.Type,
		HP:         rec.HP,
		MaxHP:      rec.MaxHP,
		Speed:      rec.Speed,
		Hardpoints: append([]string(nil), rec.Hardpoints...),
		Cargo:      inventory.New(&l.cats.Items, cargo),
		Recipe:     copyItems(rec.Recipe),
		XPValue:    rec.XPValue,
	}
	s.Cargo.Load(rec.Storage)
	if rec.Path != nil {
		s.Path = path.Restore(rec.Path.Waypoints, rec.Path.Cursor)
	}
	return l.add(s)
}

func restoreHardpoint(l *Level, rec snapshot.Entity) error {
	if _, ok := l.nodes[rec.Parent]; !ok {
		return fmt.Errorf("%w: parent %s", ErrNotFound, rec.Parent)
	}
	def, ok := l.cats.Hardpoints.Defs[rec.Type]
	if !ok {
		return fmt.Errorf("%w: hardpoint type %s", ErrNotFound, rec.Type)
	}
	h := &Hardpoint{Node: restoreNode(rec), Hardpoint: combat.NewHardpoint(def)}
	h.Reload = rec.Reload
	return l.add(h)
}

func restorePlayer(l *Level, rec snapshot.Entity) error {
	for _, id := range rec.Fleet {
		if _, err := l.Ship(id); err != nil {
			return err
		}
	}
	p := &Player{
		Node:     restoreNode(rec),
		Research: research.Levels(rec.Research).Clone(),
		Fleet:    append([]string(nil), rec.Fleet...),
		XP:       rec.XP,
		XPPoints: rec.XPPoints,
		Storage:  inventory.New(&l.cats.Items, l.tune.StorageCapacity),
	}
	p.Storage.Load(rec.Storage)
	return l.add(p)
}
