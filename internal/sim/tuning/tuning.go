package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz          int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks  int `yaml:"snapshot_every_ticks"`
	BroadcastEveryTicks int `yaml:"broadcast_every_ticks"`

	Difficulty float64 `yaml:"difficulty"`

	// Starter kit granted to players created on join.
	StarterItems    map[string]int `yaml:"starter_items"`
	StarterShips    []string       `yaml:"starter_ships"`
	StorageCapacity float64        `yaml:"storage_capacity"`

	XPPerLevel float64 `yaml:"xp_per_level"`

	// PathMargin scales body radii into exclusion radii.
	PathMargin float64 `yaml:"path_margin"`

	WarpItem        string  `yaml:"warp_item"`
	WarpCostPerUnit float64 `yaml:"warp_cost_per_unit"`

	SystemGen SystemGen `yaml:"system_generation"`
}

type SystemGen struct {
	MinPlanets     int     `yaml:"min_planets"`
	MaxPlanets     int     `yaml:"max_planets"`
	OrbitSpacing   float64 `yaml:"orbit_spacing"`
	FirstOrbit     float64 `yaml:"first_orbit"`
	StationChance  float64 `yaml:"station_chance"`
	BaseDifficulty float64 `yaml:"base_difficulty"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:          20,
		SnapshotEveryTicks:  6000,
		BroadcastEveryTicks: 5,
		Difficulty:          1,
		StarterItems:        map[string]int{"metal": 100, "minerals": 20, "fuel": 20},
		StarterShips:        []string{"mosquito"},
		StorageCapacity:     500,
		XPPerLevel:          100,
		PathMargin:          1.5,
		WarpItem:            "fuel",
		WarpCostPerUnit:     0.1,
		SystemGen: SystemGen{
			MinPlanets:     1,
			MaxPlanets:     9,
			OrbitSpacing:   25,
			FirstOrbit:     40,
			StationChance:  0.25,
			BaseDifficulty: 0.25,
		},
	}
}

// Load reads tuning.yaml over the defaults; keys missing from the file keep
// their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive")
	}
	if t.XPPerLevel <= 0 {
		return fmt.Errorf("xp_per_level must be positive")
	}
	if t.PathMargin < 1 {
		return fmt.Errorf("path_margin must be >= 1")
	}
	if t.SystemGen.MaxPlanets < t.SystemGen.MinPlanets {
		return fmt.Errorf("system_generation: max_planets < min_planets")
	}
	return nil
}
