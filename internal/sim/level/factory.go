package level

import (
	"fmt"
	"math"
	"sort"

	"github.com/dr-vortex/annihilation/internal/sim/combat"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
	"github.com/dr-vortex/annihilation/internal/sim/research"
)

type System struct {
	ID         string
	Name       string
	Position   geom.Vec2
	Difficulty float64
	BodyIDs    []string
}

func (l *Level) System(id string) (*System, error) {
	s, ok := l.systems[id]
	if !ok {
		return nil, fmt.Errorf("%w: system %s", ErrNotFound, id)
	}
	return s, nil
}

// Systems returns all systems ordered by id.
func (l *Level) Systems() []*System {
	out := make([]*System, 0, len(l.systems))
	for _, s := range l.systems {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SystemDifficulty grows with distance from the galaxy origin.
func (l *Level) SystemDifficulty(pos geom.Vec2) float64 {
	d := geom.Distance2(geom.Vec2{}, pos)
	base := l.tune.SystemGen.BaseDifficulty
	if d <= 0 {
		return base
	}
	return math.Max(math.Log10(d)-1, base)
}

func (l *Level) AddSystem(name string, pos geom.Vec2) *System {
	s := &System{
		ID:         l.newID("system"),
		Name:       name,
		Position:   pos,
		Difficulty: l.SystemDifficulty(pos),
	}
	l.systems[s.ID] = s
	l.emit(EventSystemCreated, s.ID, map[string]any{"name": name})
	return s
}

func (l *Level) newBody(systemID, name string, pos geom.Vec3, radius float64) (Body, *System, error) {
	sys, err := l.System(systemID)
	if err != nil {
		return Body{}, nil, err
	}
	return Body{
		Node: Node{
			Name:     name,
			Position: pos,
			SystemID: systemID,
		},
		Radius:  radius,
		Rewards: inventory.New(&l.cats.Items, 0),
	}, sys, nil
}

func (l *Level) registerBody(e Entity, sys *System) error {
	if err := l.add(e); err != nil {
		return err
	}
	if sys != nil {
		sys.BodyIDs = append(sys.BodyIDs, e.node().ID)
	}
	l.emit(EventBodyCreated, e.node().ID, map[string]any{"type": e.Kind().String()})
	return nil
}

func (l *Level) AddStar(systemID, name string, pos geom.Vec3) (*Star, error) {
	b, sys, err := l.newBody(systemID, name, pos, l.cats.Bodies.Defs["star"].Radius)
	if err != nil {
		return nil, err
	}
	s := &Star{Body: b}
	s.ID = l.newID("star")
	return s, l.registerBody(s, sys)
}

func (l *Level) AddPlanet(systemID, name string, pos geom.Vec3, biome string, radius float64) (*Planet, error) {
	if radius <= 0 {
		radius = l.cats.Bodies.Defs["planet"].Radius
	}
	b, sys, err := l.newBody(systemID, name, pos, radius)
	if err != nil {
		return nil, err
	}
	p := &Planet{Body: b, Biome: biome}
	p.ID = l.newID("planet")
	return p, l.registerBody(p, sys)
}

func (l *Level) AddStation(systemID, name string, pos geom.Vec3) (*Station, error) {
	b, sys, err := l.newBody(systemID, name, pos, l.cats.Bodies.Defs["station"].Radius)
	if err != nil {
		return nil, err
	}
	s := &Station{Body: b}
	s.ID = l.newID("station")
	return s, l.registerBody(s, sys)
}

// AddStationPart creates an unconnected part of partType on a station.
func (l *Level) AddStationPart(stationID, partType string) (*StationPart, error) {
	st, err := Lookup[*Station](l, stationID)
	if err != nil {
		return nil, err
	}
	def, ok := l.cats.StationParts.Defs[partType]
	if !ok {
		return nil, fmt.Errorf("%w: station part type %s", ErrNotFound, partType)
	}
	p := &StationPart{
		Body: Body{
			Node: Node{
				ID:         l.newID("part"),
				Name:       partType,
				ParentID:   st.ID,
				OwnerID:    st.ID,
				SystemID:   st.SystemID,
				Targetable: true,
			},
			Radius:  l.cats.Bodies.Defs["station_part"].Radius,
			Rewards: inventory.New(&l.cats.Items, 0),
		},
		Type:        partType,
		HP:          def.HP,
		MaxHP:       def.HP,
		StationID:   st.ID,
		Connections: make([]string, len(def.Connecters)),
	}
	if err := l.registerBody(p, nil); err != nil {
		return nil, err
	}
	st.Parts = append(st.Parts, p.ID)
	return p, nil
}

// Connect joins connecter thisConn of partID to connecter otherConn of
// otherID and positions the other part so the two connecters meet.
func (l *Level) Connect(partID string, thisConn int, otherID string, otherConn int) error {
	a, err := Lookup[*StationPart](l, partID)
	if err != nil {
		return err
	}
	b, err := Lookup[*StationPart](l, otherID)
	if err != nil {
		return err
	}
	if a.ID == b.ID || a.StationID != b.StationID {
		return fmt.Errorf("%w: parts %s and %s cannot connect", ErrInvalidOperation, a.ID, b.ID)
	}
	if thisConn < 0 || thisConn >= len(a.Connections) {
		return fmt.Errorf("%w: %s has no connecter %d", ErrInvalidOperation, a.ID, thisConn)
	}
	if otherConn < 0 || otherConn >= len(b.Connections) {
		return fmt.Errorf("%w: %s has no connecter %d", ErrInvalidOperation, b.ID, otherConn)
	}
	if a.Connections[thisConn] != "" || b.Connections[otherConn] != "" {
		return fmt.Errorf("%w: connecter in use", ErrInvalidOperation)
	}
	a.Connections[thisConn] = b.ID
	b.Connections[otherConn] = a.ID

	ca := l.cats.StationParts.Defs[a.Type].Connecters[thisConn]
	cb := l.cats.StationParts.Defs[b.Type].Connecters[otherConn]
	b.Position = a.Position.Add(geom.FromArray(ca.Position)).Sub(geom.FromArray(cb.Position))
	return nil
}

// AddShip builds a ship of shipType ("" for the catalog default). A non-empty
// ownerID must name a player; the ship joins its fleet at its position.
func (l *Level) AddShip(ownerID, shipType string) (*Ship, error) {
	if shipType == "" {
		shipType = l.cats.Ships.Default
	}
	def, ok := l.cats.Ships.Defs[shipType]
	if !ok {
		return nil, fmt.Errorf("%w: ship type %s", ErrNotFound, shipType)
	}
	var owner *Player
	if ownerID != "" {
		p, err := l.Player(ownerID)
		if err != nil {
			return nil, err
		}
		owner = p
	}
	s := &Ship{
		Node: Node{
			ID:         l.newID("ship"),
			Name:       def.ID,
			Targetable: true,
		},
		Type:    def.ID,
		HP:      def.HP,
		MaxHP:   def.HP,
		Speed:   def.Speed,
		Cargo:   inventory.New(&l.cats.Items, def.Cargo),
		Recipe:  copyItems(def.Recipe),
		XPValue: def.XP,
	}
	if owner != nil {
		s.ParentID = owner.ID
		s.OwnerID = owner.ID
		s.SystemID = owner.SystemID
	}
	if err := l.add(s); err != nil {
		return nil, err
	}
	if owner != nil {
		owner.Fleet = append(owner.Fleet, s.ID)
	}
	for _, slot := range def.Hardpoints {
		if _, err := l.AddHardpoint(s.ID, slot.Type, geom.FromArray(slot.Position)); err != nil {
			return nil, err
		}
	}
	l.emit(EventEntityCreated, s.ID, map[string]any{"type": KindShip.String()})
	l.emit(EventShipCreated, s.ID, map[string]any{"owner": ownerID, "ship_type": def.ID})
	return s, nil
}

// AddHardpoint mounts a weapon on a ship or station part.
func (l *Level) AddHardpoint(parentID, hpType string, pos geom.Vec3) (*Hardpoint, error) {
	parent, ok := l.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	if k := parent.Kind(); k != KindShip && k != KindStationPart {
		return nil, fmt.Errorf("%w: cannot mount hardpoint on %s", ErrInvalidOperation, k)
	}
	def, ok := l.cats.Hardpoints.Defs[hpType]
	if !ok {
		return nil, fmt.Errorf("%w: hardpoint type %s", ErrNotFound, hpType)
	}
	h := &Hardpoint{
		Node: Node{
			ID:         l.newID("hardpoint"),
			Name:       def.ID,
			Position:   pos,
			ParentID:   parentID,
			OwnerID:    parentID,
			SystemID:   parent.node().SystemID,
			Targetable: true,
		},
		Hardpoint: combat.NewHardpoint(def),
	}
	if err := l.add(h); err != nil {
		return nil, err
	}
	if s, ok := parent.(*Ship); ok {
		s.Hardpoints = append(s.Hardpoints, h.ID)
	}
	return h, nil
}

// AddPlayer registers a player. An empty id is generated.
func (l *Level) AddPlayer(id, name string) (*Player, error) {
	if id == "" {
		id = l.newID("player")
	}
	p := &Player{
		Node:     Node{ID: id, Name: name},
		Research: research.Levels{},
		Storage:  inventory.New(&l.cats.Items, l.tune.StorageCapacity),
	}
	if sys := l.Systems(); len(sys) > 0 {
		p.SystemID = sys[0].ID
	}
	if err := l.add(p); err != nil {
		return nil, err
	}
	l.emit(EventPlayerCreated, p.ID, map[string]any{"name": name})
	return p, nil
}

// GrantStarterKit gives a new player the configured items and ships.
func (l *Level) GrantStarterKit(playerID string) error {
	p, err := l.Player(playerID)
	if err != nil {
		return err
	}
	if err := p.Storage.AddItems(l.tune.StarterItems); err != nil {
		return err
	}
	for _, t := range l.tune.StarterShips {
		if _, err := l.AddShip(p.ID, t); err != nil {
			return err
		}
	}
	return nil
}

// Capacity is the player's storage ceiling plus the cargo of their fleet.
// Zero means unbounded.
func (l *Level) Capacity(p *Player) float64 {
	if p.Storage.Max() <= 0 {
		return 0
	}
	c := p.Storage.Max()
	for _, id := range p.Fleet {
		if s, ok := l.nodes[id].(*Ship); ok {
			c += s.Cargo.Max()
		}
	}
	return c
}

// ResetPlayer clears storage and research and scraps the fleet.
func (l *Level) ResetPlayer(playerID string) error {
	p, err := l.Player(playerID)
	if err != nil {
		return err
	}
	p.Storage.Empty(nil)
	p.Research = research.Levels{}
	for _, id := range append([]string(nil), p.Fleet...) {
		if err := l.Remove(id); err != nil {
			return err
		}
	}
	p.Fleet = nil
	l.emit(EventPlayerReset, p.ID, nil)
	return nil
}

// GenerateSystem builds a star, planets and possibly a defended station from
// the level's seeded generator.
func (l *Level) GenerateSystem(name string, pos geom.Vec2) (*System, error) {
	g := l.tune.SystemGen
	sys := l.AddSystem(name, pos)
	if _, err := l.AddStar(sys.ID, name, geom.Vec3{}); err != nil {
		return nil, err
	}

	biomes := l.cats.Bodies.Defs["planet"].Biomes
	baseR := l.cats.Bodies.Defs["planet"].Radius
	n := g.MinPlanets
	if g.MaxPlanets > g.MinPlanets {
		n += l.rng.IntN(g.MaxPlanets - g.MinPlanets + 1)
	}
	var last *Planet
	for i := 0; i < n; i++ {
		orbit := g.FirstOrbit + float64(i)*g.OrbitSpacing
		ang := l.rng.Float64() * 2 * math.Pi
		biome := ""
		if len(biomes) > 0 {
			biome = biomes[l.rng.IntN(len(biomes))]
		}
		p, err := l.AddPlanet(sys.ID, fmt.Sprintf("%s %c", name, 'b'+rune(i)),
			geom.V3(math.Cos(ang)*orbit, 0, math.Sin(ang)*orbit), biome, baseR*(0.5+l.rng.Float64()))
		if err != nil {
			return nil, err
		}
		last = p
	}

	if last != nil && l.rng.Float64() < g.StationChance {
		if err := l.buildOutpost(sys, last); err != nil {
			return nil, err
		}
	}
	return sys, nil
}

func (l *Level) buildOutpost(sys *System, near *Planet) error {
	st, err := l.AddStation(sys.ID, near.Name+" outpost", near.Position.Add(geom.V3(near.Radius*3, 0, 0)))
	if err != nil {
		return err
	}
	core, err := l.AddStationPart(st.ID, "core")
	if err != nil {
		return err
	}
	mount, err := l.AddStationPart(st.ID, "laser_mount")
	if err != nil {
		return err
	}
	if err := l.Connect(core.ID, 0, mount.ID, 0); err != nil {
		return err
	}
	_, err = l.AddHardpoint(mount.ID, "laser", geom.Vec3{})
	return err
}

func copyItems(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
