package level

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/combat"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

type Config struct {
	ID         string
	Name       string
	Difficulty float64
	Seed       uint64
	Date       time.Time
	Logger     *slog.Logger
}

// Level is the root container of one game session. It is not safe for
// concurrent use; Loop serialises access.
type Level struct {
	ID         string
	Name       string
	Version    string
	Date       time.Time
	Difficulty float64
	Seed       uint64

	cats *catalogs.Catalogs
	tune tuning.Tuning
	log  *slog.Logger

	tick    uint64
	nextID  uint64
	nodes   map[string]Entity
	systems map[string]*System
	queue   combat.Queue

	pcg     *rand.PCG
	chacha  *rand.ChaCha8
	rng     *rand.Rand
	entropy io.Reader

	subs    []subscriber
	nextSub int

	perf perfCounter
}

func New(cfg Config, cats *catalogs.Catalogs, tune tuning.Tuning) *Level {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Date.IsZero() {
		cfg.Date = time.Now().UTC()
	}
	if cfg.Difficulty == 0 {
		cfg.Difficulty = tune.Difficulty
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Level{
		ID:         cfg.ID,
		Name:       cfg.Name,
		Version:    snapshot.Version,
		Date:       cfg.Date,
		Difficulty: cfg.Difficulty,
		Seed:       cfg.Seed,
		cats:       cats,
		tune:       tune,
		log:        cfg.Logger.With("component", "level", "level_id", cfg.ID),
		nodes:      map[string]Entity{},
		systems:    map[string]*System{},
	}
	l.reseed(cfg.Seed)
	return l
}

func (l *Level) reseed(seed uint64) {
	l.pcg = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	l.rng = rand.New(l.pcg)
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	l.chacha = rand.NewChaCha8(key)
	l.entropy = ulid.Monotonic(l.chacha, 0)
}

func (l *Level) rngState() *snapshot.RNG {
	rolls, err := l.pcg.MarshalBinary()
	if err != nil {
		return nil
	}
	ids, _ := l.chacha.MarshalBinary()
	return &snapshot.RNG{Rolls: rolls, IDs: ids}
}

// setRNGState continues the generators exactly where a snapshot left them.
func (l *Level) setRNGState(s *snapshot.RNG) error {
	if err := l.pcg.UnmarshalBinary(s.Rolls); err != nil {
		return fmt.Errorf("%w: rng rolls: %v", ErrInvalidOperation, err)
	}
	if len(s.IDs) > 0 {
		if err := l.chacha.UnmarshalBinary(s.IDs); err != nil {
			return fmt.Errorf("%w: rng ids: %v", ErrInvalidOperation, err)
		}
	}
	return nil
}

func (l *Level) Tick() uint64                 { return l.tick }
func (l *Level) Catalogs() *catalogs.Catalogs { return l.cats }
func (l *Level) Tuning() tuning.Tuning        { return l.tune }

func (l *Level) newID(prefix string) string {
	l.nextID++
	return fmt.Sprintf("%s-%d", prefix, l.nextID)
}

// maxNotedID caps how far a foreign id can push the generator. Larger
// suffixes cannot collide with generated ids in practice and would otherwise
// let nextID wrap.
const maxNotedID = 1 << 53

// noteID keeps generated ids clear of an id loaded from a save.
func (l *Level) noteID(id string) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 {
		return
	}
	if n, err := strconv.ParseUint(id[i+1:], 10, 64); err == nil && n > l.nextID && n < maxNotedID {
		l.nextID = n
	}
}

func (l *Level) add(e Entity) error {
	n := e.node()
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOperation)
	}
	if _, dup := l.nodes[n.ID]; dup {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidOperation, n.ID)
	}
	l.nodes[n.ID] = e
	l.noteID(n.ID)
	return nil
}

func (l *Level) Get(id string) (Entity, bool) {
	e, ok := l.nodes[id]
	return e, ok
}

// Lookup returns the entity with id as T, failing with ErrNotFound when it is
// missing or of another kind.
func Lookup[T Entity](l *Level, id string) (T, error) {
	var zero T
	e, ok := l.nodes[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %s", ErrNotFound, id, e.Kind())
	}
	return t, nil
}

func (l *Level) Player(id string) (*Player, error) { return Lookup[*Player](l, id) }
func (l *Level) Ship(id string) (*Ship, error)     { return Lookup[*Ship](l, id) }

// IDs returns every node id in sorted order.
func (l *Level) IDs() []string {
	ids := make([]string, 0, len(l.nodes))
	for id := range l.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Level) Len() int { return len(l.nodes) }

// AbsolutePosition sums local positions up the parent chain.
func (l *Level) AbsolutePosition(id string) (geom.Vec3, error) {
	var p geom.Vec3
	seen := 0
	for id != "" {
		e, ok := l.nodes[id]
		if !ok {
			return p, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		n := e.node()
		p = p.Add(n.Position)
		id = n.ParentID
		if seen++; seen > len(l.nodes) {
			return p, fmt.Errorf("%w: parent cycle at %s", ErrInvalidOperation, id)
		}
	}
	return p, nil
}

func (l *Level) mustAbs(id string) geom.Vec3 {
	p, _ := l.AbsolutePosition(id)
	return p
}

// SetAbsolutePosition moves id so its absolute position is p.
func (l *Level) SetAbsolutePosition(id string, p geom.Vec3) error {
	e, ok := l.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n := e.node()
	var base geom.Vec3
	if n.ParentID != "" {
		b, err := l.AbsolutePosition(n.ParentID)
		if err != nil {
			return err
		}
		base = b
	}
	n.Position = p.Sub(base)
	return nil
}

// Reparent moves id under newParent ("" for the root) keeping its absolute
// position. Parenting to itself or a descendant fails.
func (l *Level) Reparent(id, newParent string) error {
	e, ok := l.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if newParent != "" {
		if _, ok := l.nodes[newParent]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, newParent)
		}
		for cur := newParent; cur != ""; cur = l.nodes[cur].node().ParentID {
			if cur == id {
				return fmt.Errorf("%w: %s cannot be parented under %s", ErrInvalidOperation, id, newParent)
			}
		}
	}
	abs, err := l.AbsolutePosition(id)
	if err != nil {
		return err
	}
	e.node().ParentID = newParent
	return l.SetAbsolutePosition(id, abs)
}

// Children returns ids whose parent is id, sorted.
func (l *Level) Children(id string) []string {
	var out []string
	for cid, e := range l.nodes {
		if e.node().ParentID == id {
			out = append(out, cid)
		}
	}
	sort.Strings(out)
	return out
}

// Remove deletes id and everything parented to it. The removal event is
// emitted before the id is released.
func (l *Level) Remove(id string) error {
	e, ok := l.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n := e.node()

	switch {
	case e.Kind().Celestial():
		l.emit(EventBodyRemoved, id, map[string]any{"type": e.Kind().String()})
	case e.Kind() == KindPlayer:
		l.emit(EventPlayerRemoved, id, nil)
	default:
		l.emit(EventEntityRemoved, id, map[string]any{"type": e.Kind().String()})
	}

	for _, cid := range l.Children(id) {
		if _, still := l.nodes[cid]; still {
			if err := l.Remove(cid); err != nil {
				return err
			}
		}
	}

	switch v := e.(type) {
	case *Ship:
		if p, ok := l.nodes[v.OwnerID].(*Player); ok {
			p.Fleet = removeID(p.Fleet, id)
		}
	case *Hardpoint:
		if s, ok := l.nodes[v.ParentID].(*Ship); ok {
			s.Hardpoints = removeID(s.Hardpoints, id)
		}
	case *StationPart:
		for _, other := range v.Connections {
			if op, ok := l.nodes[other].(*StationPart); ok {
				for i, c := range op.Connections {
					if c == id {
						op.Connections[i] = ""
					}
				}
			}
		}
		if st, ok := l.nodes[v.StationID].(*Station); ok {
			st.Parts = removeID(st.Parts, id)
		}
	}
	if sys, ok := l.systems[n.SystemID]; ok {
		sys.BodyIDs = removeID(sys.BodyIDs, id)
	}

	if c := l.queue.Cancel(id); c > 0 {
		l.log.Debug("cancelled pending resolutions", "id", id, "count", c)
	}
	delete(l.nodes, id)
	return nil
}
