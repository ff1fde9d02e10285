package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFS embed.FS

type Catalogs struct {
	Items        ItemCatalog
	Ships        ShipCatalog
	Hardpoints   HardpointCatalog
	Research     ResearchCatalog
	StationParts StationPartCatalog
	Bodies       BodyCatalog
}

type ItemCatalog struct {
	// IDs is sorted; it is the fixed item set every Storage carries.
	IDs    []string
	Defs   map[string]ItemDef
	Digest string
}

type ItemDef struct {
	ID     string         `yaml:"id"`
	Weight float64        `yaml:"weight"`
	Recipe map[string]int `yaml:"recipe,omitempty"`
}

type ShipCatalog struct {
	// Default is used when create_ship names no type.
	Default string
	Defs    map[string]ShipDef
	Digest  string
}

type ShipDef struct {
	ID         string          `yaml:"id"`
	HP         float64         `yaml:"hp"`
	Speed      float64         `yaml:"speed"`
	Cargo      float64         `yaml:"cargo"`
	XP         int             `yaml:"xp"`
	Recipe     map[string]int  `yaml:"recipe"`
	Hardpoints []HardpointSlot `yaml:"hardpoints,omitempty"`
}

type HardpointSlot struct {
	Type     string     `yaml:"type"`
	Position [3]float64 `yaml:"position"`
}

type HardpointCatalog struct {
	Defs   map[string]HardpointDef
	Digest string
}

type HardpointDef struct {
	ID              string  `yaml:"id"`
	Damage          float64 `yaml:"damage"`
	Reload          int     `yaml:"reload"`
	Range           float64 `yaml:"range"`
	CritChance      float64 `yaml:"crit_chance"`
	CritFactor      float64 `yaml:"crit_factor"`
	ProjectileID    string  `yaml:"projectile_id"`
	ProjectileSpeed float64 `yaml:"projectile_speed"`
}

type ResearchCatalog struct {
	IDs    []string
	Defs   map[string]ResearchDef
	Digest string
}

type ResearchDef struct {
	ID         string         `yaml:"id"`
	Max        int            `yaml:"max"`
	Scale      float64        `yaml:"scale"`
	Cost       map[string]int `yaml:"cost"`
	Requires   map[string]int `yaml:"requires,omitempty"`
	MinXPLevel int            `yaml:"min_xp_level,omitempty"`
}

type StationPartCatalog struct {
	Defs   map[string]StationPartDef
	Digest string
}

type StationPartDef struct {
	ID         string      `yaml:"id"`
	HP         float64     `yaml:"hp"`
	Connecters []Connecter `yaml:"connecters"`
}

type Connecter struct {
	Position [3]float64 `yaml:"position"`
	Rotation [3]float64 `yaml:"rotation"`
}

type BodyCatalog struct {
	Defs   map[string]BodyDef
	Digest string
}

// BodyDef carries per-variant defaults for celestial bodies (keyed by
// "star", "planet", "station", "station_part").
type BodyDef struct {
	ID     string   `yaml:"id"`
	Radius float64  `yaml:"radius"`
	Biomes []string `yaml:"biomes,omitempty"`
}

// Default returns the catalogs compiled into the binary.
func Default() (*Catalogs, error) {
	sub, err := fs.Sub(defaultFS, "defaults")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

func Load(configDir string) (*Catalogs, error) {
	return LoadFS(os.DirFS(configDir))
}

func LoadFS(fsys fs.FS) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(fsys, "items.yaml", &c.Items); err != nil {
		return nil, err
	}
	if err := loadHardpoints(fsys, "hardpoints.yaml", &c.Hardpoints); err != nil {
		return nil, err
	}
	if err := loadShips(fsys, "ships.yaml", &c.Ships); err != nil {
		return nil, err
	}
	if err := loadResearch(fsys, "research.yaml", &c.Research); err != nil {
		return nil, err
	}
	if err := loadStationParts(fsys, "station_parts.yaml", &c.StationParts); err != nil {
		return nil, err
	}
	if err := loadBodies(fsys, "bodies.yaml", &c.Bodies); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readYAML(fsys fs.FS, name string, out any) (string, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return sha256Hex(raw), nil
}

func loadItems(fsys fs.FS, name string, out *ItemCatalog) error {
	var defs []ItemDef
	digest, err := readYAML(fsys, name, &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", name)
		}
		if d.Weight < 0 {
			return fmt.Errorf("%s: %s: negative weight", name, d.ID)
		}
		out.Defs[d.ID] = d
	}
	out.IDs = sortedKeys(out.Defs)
	return nil
}

func loadHardpoints(fsys fs.FS, name string, out *HardpointCatalog) error {
	var defs []HardpointDef
	digest, err := readYAML(fsys, name, &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = map[string]HardpointDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", name)
		}
		if d.ProjectileSpeed <= 0 {
			return fmt.Errorf("%s: %s: projectile_speed must be positive", name, d.ID)
		}
		if d.CritFactor == 0 {
			d.CritFactor = 1
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadShips(fsys fs.FS, name string, out *ShipCatalog) error {
	var doc struct {
		Default string    `yaml:"default"`
		Ships   []ShipDef `yaml:"ships"`
	}
	digest, err := readYAML(fsys, name, &doc)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Default = doc.Default
	out.Defs = map[string]ShipDef{}
	for _, d := range doc.Ships {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", name)
		}
		if d.HP <= 0 {
			return fmt.Errorf("%s: %s: hp must be positive", name, d.ID)
		}
		out.Defs[d.ID] = d
	}
	if _, ok := out.Defs[out.Default]; !ok {
		return fmt.Errorf("%s: default ship %q not defined", name, out.Default)
	}
	return nil
}

func loadResearch(fsys fs.FS, name string, out *ResearchCatalog) error {
	var defs []ResearchDef
	digest, err := readYAML(fsys, name, &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = map[string]ResearchDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", name)
		}
		if d.Max <= 0 {
			return fmt.Errorf("%s: %s: max must be positive", name, d.ID)
		}
		if d.Scale < 1 {
			d.Scale = 1
		}
		out.Defs[d.ID] = d
	}
	out.IDs = sortedKeys(out.Defs)
	return nil
}

func loadStationParts(fsys fs.FS, name string, out *StationPartCatalog) error {
	var defs []StationPartDef
	digest, err := readYAML(fsys, name, &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = map[string]StationPartDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", name)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadBodies(fsys fs.FS, name string, out *BodyCatalog) error {
	var defs []BodyDef
	digest, err := readYAML(fsys, name, &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = map[string]BodyDef{}
	for _, d := range defs {
		out.Defs[d.ID] = d
	}
	return nil
}

// validate checks cross-catalog references.
func (c *Catalogs) validate() error {
	checkItems := func(where string, m map[string]int) error {
		for id := range m {
			if _, ok := c.Items.Defs[id]; !ok {
				return fmt.Errorf("%s: unknown item %q", where, id)
			}
		}
		return nil
	}
	for _, d := range c.Items.Defs {
		if err := checkItems("item "+d.ID+" recipe", d.Recipe); err != nil {
			return err
		}
	}
	for _, d := range c.Ships.Defs {
		if err := checkItems("ship "+d.ID+" recipe", d.Recipe); err != nil {
			return err
		}
		for _, hp := range d.Hardpoints {
			if _, ok := c.Hardpoints.Defs[hp.Type]; !ok {
				return fmt.Errorf("ship %s: unknown hardpoint %q", d.ID, hp.Type)
			}
		}
	}
	for _, d := range c.Research.Defs {
		if err := checkItems("research "+d.ID+" cost", d.Cost); err != nil {
			return err
		}
		for id := range d.Requires {
			if _, ok := c.Research.Defs[id]; !ok {
				return fmt.Errorf("research %s: unknown requirement %q", d.ID, id)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
