package level

import (
	"errors"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/sim/combat"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
	"github.com/dr-vortex/annihilation/internal/sim/path"
	"github.com/dr-vortex/annihilation/internal/sim/research"
)

var (
	ErrInvalidSelector  = errors.New("invalid selector")
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrWrongOwner       = errors.New("not owned by player")
	ErrUnknownAction    = errors.New("unknown action")
)

type Kind uint8

const (
	KindStar Kind = iota + 1
	KindPlanet
	KindStation
	KindStationPart
	KindShip
	KindHardpoint
	KindPlayer
)

var kindTags = map[Kind]string{
	KindStar:        snapshot.TypeStar,
	KindPlanet:      snapshot.TypePlanet,
	KindStation:     snapshot.TypeStation,
	KindStationPart: snapshot.TypeStationPart,
	KindShip:        snapshot.TypeShip,
	KindHardpoint:   snapshot.TypeHardpoint,
	KindPlayer:      snapshot.TypePlayer,
}

// String is the entity type tag used on the wire.
func (k Kind) String() string { return kindTags[k] }

// Tags lists the type names an entity answers to, most general first.
func (k Kind) Tags() []string {
	switch k {
	case KindStar, KindPlanet, KindStation, KindStationPart:
		return []string{"Node", "CelestialBody", k.String()}
	case KindShip, KindPlayer:
		return []string{"Node", "Entity", k.String()}
	case KindHardpoint:
		return []string{"Node", "Hardpoint"}
	}
	return []string{"Node"}
}

func (k Kind) Celestial() bool {
	return k == KindStar || k == KindPlanet || k == KindStation || k == KindStationPart
}

// Node is the positional base of everything in a level. Parent and owner are
// ids into the level's node table.
type Node struct {
	ID         string
	Name       string
	Position   geom.Vec3 // relative to Parent
	Rotation   geom.Vec3
	ParentID   string
	OwnerID    string
	SystemID   string
	Selected   bool
	Targetable bool
}

func (n *Node) node() *Node          { return n }
func (n *Node) Owner() string        { return n.OwnerID }
func (n *Node) IsTargetable() bool   { return n.Targetable }
func (n *Node) Local() geom.Vec3     { return n.Position }
func (n *Node) SetLocal(p geom.Vec3) { n.Position = p }

// Entity is any node stored in a Level.
type Entity interface {
	node() *Node
	Kind() Kind
}

// Capabilities.
type (
	Targetable interface {
		Entity
		IsTargetable() bool
	}
	Ownable interface {
		Entity
		Owner() string
	}
	Positioned interface {
		Entity
		Local() geom.Vec3
		SetLocal(geom.Vec3)
	}
)

// Base exposes the shared node fields of e.
func Base(e Entity) *Node { return e.node() }

// Body holds what all celestial bodies share.
type Body struct {
	Node
	Radius  float64
	Rewards *inventory.Storage
}

type Star struct{ Body }

func (*Star) Kind() Kind { return KindStar }

type Planet struct {
	Body
	Biome string
}

func (*Planet) Kind() Kind { return KindPlanet }

type Station struct {
	Body
	Parts []string
}

func (*Station) Kind() Kind { return KindStation }

type StationPart struct {
	Body
	Type      string
	HP        float64
	MaxHP     float64
	StationID string
	// Connections has one slot per connecter; empty slots are "".
	Connections []string
}

func (*StationPart) Kind() Kind { return KindStationPart }

type Ship struct {
	Node
	Type       string
	HP         float64
	MaxHP      float64
	Speed      float64
	Hardpoints []string
	Cargo      *inventory.Storage
	Recipe     map[string]int
	XPValue    int
	// Path is the active follow_path continuation, nil when idle.
	Path *path.Path
}

func (*Ship) Kind() Kind { return KindShip }

type Hardpoint struct {
	Node
	combat.Hardpoint
}

func (*Hardpoint) Kind() Kind { return KindHardpoint }

type Player struct {
	Node
	Research research.Levels
	Fleet    []string
	XP       int
	XPPoints int
	Storage  *inventory.Storage
}

func (*Player) Kind() Kind { return KindPlayer }

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
