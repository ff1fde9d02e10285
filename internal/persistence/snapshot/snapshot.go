package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/path"
)

// Version is the save/wire format the running build reads and writes.
const Version = "1.0"

var (
	ErrVersionMismatch = errors.New("snapshot version mismatch")
	ErrNotSupported    = errors.New("snapshot upgrade not supported")
)

// Entity type tags.
const (
	TypeStar        = "Star"
	TypePlanet      = "Planet"
	TypeStation     = "Station"
	TypeStationPart = "StationPart"
	TypeShip        = "Ship"
	TypeHardpoint   = "Hardpoint"
	TypePlayer      = "Player"
)

// Types lists every tag in restore order: bodies, ships, hardpoints, players.
var Types = []string{TypeStar, TypePlanet, TypeStation, TypeStationPart, TypeShip, TypeHardpoint, TypePlayer}

// Header is the first line of a save file so tools can list saves without
// decoding entities.
type Header struct {
	Version string `json:"version"`
	LevelID string `json:"level_id"`
	Tick    uint64 `json:"tick"`
}

type Level struct {
	Version    string    `json:"version"`
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Date       time.Time `json:"date"`
	Difficulty float64   `json:"difficulty"`
	Seed       uint64    `json:"seed,omitempty"`
	Tick       uint64    `json:"tick"`

	Systems  []System  `json:"systems"`
	Entities []Entity  `json:"entities"`
	Pending  []Pending `json:"pending,omitempty"`

	// RNG is the generator state at Tick. It is absent from copies sent to
	// players.
	RNG *RNG `json:"rng,omitempty"`
}

// RNG holds the binary-marshalled generator states of a level.
type RNG struct {
	Rolls []byte `json:"rolls"`
	IDs   []byte `json:"ids,omitempty"`
}

type System struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Position   geom.Vec2 `json:"position"`
	Difficulty float64   `json:"difficulty"`
	BodyIDs    []string  `json:"bodyIds"`
}

// Entity is a tagged union on EntityType. Variant fields are omitted when
// they do not apply.
type Entity struct {
	EntityType   string    `json:"entityType"`
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Position     geom.Vec3 `json:"position"`
	Rotation     geom.Vec3 `json:"rotation"`
	Parent       string    `json:"parent,omitempty"`
	Owner        string    `json:"owner,omitempty"`
	System       string    `json:"system,omitempty"`
	Selected     bool      `json:"selected,omitempty"`
	IsTargetable bool      `json:"isTargetable"`

	// celestial bodies
	Biome   string         `json:"biome,omitempty"`
	Radius  float64        `json:"radius,omitempty"`
	Rewards map[string]int `json:"rewards,omitempty"`
	Parts   []string       `json:"parts,omitempty"`

	// station parts, ships, hardpoints
	Type        string   `json:"type,omitempty"`
	HP          float64  `json:"hp,omitempty"`
	MaxHP       float64  `json:"maxHp,omitempty"`
	Connections []string `json:"connections,omitempty"`
	Station     string   `json:"station,omitempty"`

	// ships
	Hardpoints []string       `json:"hardpoints,omitempty"`
	Storage    map[string]int `json:"storage,omitempty"`
	Recipe     map[string]int `json:"recipe,omitempty"`
	XPValue    int            `json:"xpValue,omitempty"`
	Speed      float64        `json:"speed,omitempty"`
	Path       *Path          `json:"path,omitempty"`

	// hardpoints
	Reload int `json:"reload,omitempty"`

	// players
	Research map[string]int `json:"research,omitempty"`
	Fleet    []string       `json:"fleet,omitempty"`
	XP       int            `json:"xp,omitempty"`
	XPPoints int            `json:"xpPoints,omitempty"`
}

type Path struct {
	Waypoints []path.Waypoint `json:"waypoints"`
	Cursor    int             `json:"cursor"`
}

// Pending is an in-flight projectile.
type Pending struct {
	Due        uint64  `json:"due"`
	Seq        uint64  `json:"seq"`
	Firer      string  `json:"firer"`
	Target     string  `json:"target"`
	Damage     float64 `json:"damage"`
	CritChance float64 `json:"critChance"`
	CritFactor float64 `json:"critFactor"`
}

// Public returns a shallow copy without generator state, for clients.
func (l *Level) Public() *Level {
	if l == nil || l.RNG == nil {
		return l
	}
	c := *l
	c.RNG = nil
	return &c
}

func (l *Level) Header() Header {
	return Header{Version: l.Version, LevelID: l.ID, Tick: l.Tick}
}

// Check fails with ErrVersionMismatch unless snap was written by this
// format version.
func Check(snap *Level) error {
	if snap.Version != Version {
		return fmt.Errorf("%w: save %q, running %q", ErrVersionMismatch, snap.Version, Version)
	}
	return nil
}

// Upgrade migrates an older snapshot to Version. No migrations exist yet.
func Upgrade(snap *Level) (*Level, error) {
	if snap.Version == Version {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: from %q", ErrNotSupported, snap.Version)
}

func Marshal(snap *Level) ([]byte, error) { return json.Marshal(snap) }

func Unmarshal(b []byte) (*Level, error) {
	var snap Level
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Encode writes the zstd-compressed save form: a JSON header line followed
// by the JSON level.
func Encode(w io.Writer, snap *Level) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header())
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func Decode(r io.Reader) (*Level, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var snap Level
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return &snap, nil
}

func EncodeBytes(snap *Level) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeBytes(b []byte) (*Level, error) { return Decode(bytes.NewReader(b)) }

// FileName is the conventional save name for a tick.
func FileName(tick uint64) string { return fmt.Sprintf("%d.snap.zst", tick) }

func WriteFile(name string, snap *Level) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	tmp := name + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, name)
}

func ReadFile(name string) (*Level, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// ReadHeader reads only the header line of a save file.
func ReadHeader(name string) (Header, error) {
	var h Header
	f, err := os.Open(name)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}
