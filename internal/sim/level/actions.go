package level

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
	"github.com/dr-vortex/annihilation/internal/sim/path"
	"github.com/dr-vortex/annihilation/internal/sim/research"
)

// Action kinds accepted by TryAction.
const (
	ActionCreateItem = "create_item"
	ActionCreateShip = "create_ship"
	ActionDoResearch = "do_research"
	ActionWarp       = "warp"
	ActionMove       = "move"
	ActionFire       = "fire"
	ActionReset      = "reset"
)

type Action interface {
	Kind() string
}

type CreateItem struct {
	Item string `json:"item"`
	// Recipe is only honoured for items the catalog gives no recipe.
	Recipe map[string]int `json:"recipe,omitempty"`
}

type CreateShip struct {
	Type string `json:"type,omitempty"`
	// Recipe may replace the catalog recipe but must cover it.
	Recipe map[string]int `json:"recipe,omitempty"`
}

type DoResearch struct {
	Research string `json:"research"`
}

type Warp struct {
	Ships  []string `json:"ships"`
	System string   `json:"system"`
}

type Move struct {
	Entities []string  `json:"entities"`
	Target   geom.Vec3 `json:"target"`
}

type Fire struct {
	Hardpoint string `json:"hardpoint"`
	Target    string `json:"target"`
}

type Reset struct{}

func (CreateItem) Kind() string { return ActionCreateItem }
func (CreateShip) Kind() string { return ActionCreateShip }
func (DoResearch) Kind() string { return ActionDoResearch }
func (Warp) Kind() string       { return ActionWarp }
func (Move) Kind() string       { return ActionMove }
func (Fire) Kind() string       { return ActionFire }
func (Reset) Kind() string      { return ActionReset }

var actionDecoders = map[string]func(json.RawMessage) (Action, error){
	ActionCreateItem: decodeInto[CreateItem],
	ActionCreateShip: decodeInto[CreateShip],
	ActionDoResearch: decodeInto[DoResearch],
	ActionWarp:       decodeInto[Warp],
	ActionMove:       decodeInto[Move],
	ActionFire:       decodeInto[Fire],
	ActionReset:      decodeInto[Reset],
}

func decodeInto[T Action](raw json.RawMessage) (Action, error) {
	var a T
	if len(raw) == 0 || string(raw) == "null" {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return a, nil
}

// DecodeAction builds a typed action from its kind and JSON payload.
func DecodeAction(kind string, raw json.RawMessage) (Action, error) {
	dec, ok := actionDecoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
	a, err := dec(raw)
	if err != nil {
		return nil, fmt.Errorf("%s payload: %w", kind, err)
	}
	return a, nil
}

// ActionKinds lists the accepted kinds.
func ActionKinds() []string {
	return []string{ActionCreateItem, ActionCreateShip, ActionDoResearch, ActionWarp, ActionMove, ActionFire, ActionReset}
}

// TryAction is the single mutation entry point for players. Unmet game rules
// return false with nothing changed; a missing player or referenced entity,
// an entity owned by someone else, or an unknown action is an error.
func (l *Level) TryAction(playerID string, act Action) (bool, error) {
	p, err := l.Player(playerID)
	if err != nil {
		return false, err
	}
	switch a := act.(type) {
	case CreateItem:
		return l.createItem(p, a)
	case CreateShip:
		return l.createShip(p, a)
	case DoResearch:
		return l.doResearch(p, a)
	case Warp:
		return l.warp(p, a)
	case Move:
		return l.move(p, a)
	case Fire:
		return l.fire(p, a)
	case Reset:
		return true, l.ResetPlayer(p.ID)
	case nil:
		return false, fmt.Errorf("%w: nil", ErrUnknownAction)
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownAction, act.Kind())
}

func (l *Level) createItem(p *Player, a CreateItem) (bool, error) {
	def, ok := l.cats.Items.Defs[a.Item]
	if !ok {
		return false, fmt.Errorf("%w: item %s", ErrNotFound, a.Item)
	}
	// Raw materials have no recipe and cannot be crafted.
	if len(def.Recipe) == 0 {
		return false, nil
	}
	recipe, ok := clientRecipe(def.Recipe, a.Recipe)
	if !ok {
		return false, nil
	}
	for id := range recipe {
		if !p.Storage.Known(id) {
			return false, fmt.Errorf("%w: item %s", ErrNotFound, id)
		}
	}
	if !p.Storage.Known(def.ID) {
		return false, fmt.Errorf("%w: storage cannot hold %s", ErrInvalidOperation, def.ID)
	}
	if !p.Storage.Has(recipe) {
		return false, nil
	}
	if c := l.Capacity(p); c > 0 {
		after := p.Storage.Total() - p.Storage.WeightOf(recipe) + def.Weight
		if after > c+1e-9 {
			return false, nil
		}
	}
	if err := p.Storage.RemoveItems(recipe); err != nil {
		return false, nil
	}
	if err := p.Storage.Add(def.ID, 1); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	l.emit(EventItemCreated, p.ID, map[string]any{"item": def.ID})
	return true, nil
}

func (l *Level) createShip(p *Player, a CreateShip) (bool, error) {
	t := a.Type
	if t == "" {
		t = l.cats.Ships.Default
	}
	def, ok := l.cats.Ships.Defs[t]
	if !ok {
		return false, fmt.Errorf("%w: ship type %s", ErrNotFound, t)
	}
	recipe, ok := clientRecipe(def.Recipe, a.Recipe)
	if !ok {
		return false, nil
	}
	if err := p.Storage.RemoveItems(recipe); err != nil {
		if errors.Is(err, inventory.ErrUnknownItem) {
			return false, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return false, nil
	}
	s, err := l.AddShip(p.ID, def.ID)
	if err != nil {
		_ = p.Storage.AddItems(recipe)
		return false, err
	}
	s.Recipe = copyItems(recipe)
	return true, nil
}

// clientRecipe picks the recipe an action pays. A recipe sent by the client
// replaces the catalog one only if every entry is positive and it covers the
// catalog cost.
func clientRecipe(catalog, sent map[string]int) (map[string]int, bool) {
	if len(sent) == 0 {
		return catalog, true
	}
	for _, n := range sent {
		if n <= 0 {
			return nil, false
		}
	}
	for id, n := range catalog {
		if sent[id] < n {
			return nil, false
		}
	}
	return sent, true
}

func (l *Level) doResearch(p *Player, a DoResearch) (bool, error) {
	def, ok := l.cats.Research.Defs[a.Research]
	if !ok {
		return false, fmt.Errorf("%w: research %s", ErrNotFound, a.Research)
	}
	if !research.Do(def, p.Research, l.XPLevel(p.XP), p.Storage) {
		return false, nil
	}
	l.emit(EventResearch, p.ID, map[string]any{"research": def.ID, "level": p.Research[def.ID]})
	return true, nil
}

// ownedShips resolves ids to ships owned by p.
func (l *Level) ownedShips(p *Player, ids []string) ([]*Ship, error) {
	out := make([]*Ship, 0, len(ids))
	for _, id := range ids {
		s, err := l.Ship(id)
		if err != nil {
			return nil, err
		}
		if s.OwnerID != p.ID {
			return nil, fmt.Errorf("%w: %s", ErrWrongOwner, id)
		}
		out = append(out, s)
	}
	return out, nil
}

// WarpCost is the warp item amount needed to move one ship between systems.
func (l *Level) WarpCost(from, to *System) int {
	if from == nil || to == nil {
		return 0
	}
	return int(math.Ceil(geom.Distance2(from.Position, to.Position) * l.tune.WarpCostPerUnit))
}

func (l *Level) warp(p *Player, a Warp) (bool, error) {
	dst, err := l.System(a.System)
	if err != nil {
		return false, err
	}
	ships, err := l.ownedShips(p, a.Ships)
	if err != nil {
		return false, err
	}
	if len(ships) == 0 {
		return false, nil
	}
	total := 0
	for _, s := range ships {
		if s.SystemID == dst.ID {
			return false, nil
		}
		total += l.WarpCost(l.systems[s.SystemID], dst)
	}
	if total > 0 {
		if err := p.Storage.Remove(l.tune.WarpItem, total); err != nil {
			return false, nil
		}
	}
	arrival := geom.V3(0, 0, -l.tune.SystemGen.FirstOrbit/2)
	for i, s := range ships {
		from := s.SystemID
		s.SystemID = dst.ID
		s.Path = nil
		for _, hid := range s.Hardpoints {
			if h, ok := l.nodes[hid]; ok {
				h.node().SystemID = dst.ID
			}
		}
		_ = l.SetAbsolutePosition(s.ID, arrival.Add(geom.V3(float64(i)*2, 0, 0)))
		l.emit(EventEntityWarp, s.ID, map[string]any{"from": from, "to": dst.ID})
	}
	return true, nil
}

// Obstacles are the bodies of a system with the configured path margin.
func (l *Level) Obstacles(systemID string) path.Static {
	var out path.Static
	sys, ok := l.systems[systemID]
	if !ok {
		return out
	}
	for _, id := range sys.BodyIDs {
		e, ok := l.nodes[id]
		if !ok {
			continue
		}
		var r float64
		switch b := e.(type) {
		case *Star:
			r = b.Radius
		case *Planet:
			r = b.Radius
		case *Station:
			r = b.Radius
		}
		if r <= 0 {
			continue
		}
		out = append(out, path.Obstacle{ID: id, Center: l.mustAbs(id), Radius: r * l.tune.PathMargin})
	}
	return out
}

func (l *Level) move(p *Player, a Move) (bool, error) {
	ships, err := l.ownedShips(p, a.Entities)
	if err != nil {
		return false, err
	}
	for _, s := range ships {
		start := l.mustAbs(s.ID)
		route := path.Find(start, a.Target, l.Obstacles(s.SystemID))
		if route.Empty() {
			continue
		}
		route.Next()
		s.Path = route
		l.emit(EventFollowPathStart, s.ID, map[string]any{
			"waypoints": route.Waypoints(),
			"target":    a.Target.Array(),
		})
	}
	return true, nil
}

func (l *Level) fire(p *Player, a Fire) (bool, error) {
	h, err := Lookup[*Hardpoint](l, a.Hardpoint)
	if err != nil {
		return false, err
	}
	s, ok := l.nodes[h.ParentID].(*Ship)
	if !ok || s.OwnerID != p.ID {
		return false, fmt.Errorf("%w: %s", ErrWrongOwner, h.ID)
	}
	if _, ok := l.nodes[a.Target]; !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, a.Target)
	}
	if !l.InRange(h, a.Target) {
		return false, nil
	}
	return l.Fire(h.ID, a.Target)
}
