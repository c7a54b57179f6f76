package avr

import (
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ZoneConfig is the per-zone protocol vocabulary: 3-letter command codes for
// outbound writes and full query strings for state refresh.
type ZoneConfig struct {
	Commands map[Property]string `yaml:"commands" json:"commands"`
	Queries  map[Property]string `yaml:"queries" json:"queries"`
}

// ZoneMap is the full receiver vocabulary, keyed by zone name.
type ZoneMap map[string]ZoneConfig

// LoadZones reads zone definitions from a YAML file and validates them.
func LoadZones(path string) (ZoneMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("avr: read zones: %w", err)
	}
	var zones ZoneMap
	if err := yaml.Unmarshal(data, &zones); err != nil {
		return nil, fmt.Errorf("avr: parse zones %s: %w", path, err)
	}
	if err := zones.Validate(); err != nil {
		return nil, err
	}
	return zones, nil
}

// DefaultZones covers the common two-zone layout: the main zone plus the
// Zone 2 command set most multi-zone receivers expose.
func DefaultZones() ZoneMap {
	return ZoneMap{
		"master": {
			Commands: map[Property]string{
				PropPower:  "PWR",
				PropVolume: "MVL",
				PropSource: "SLI",
				PropMute:   "AMT",
			},
			Queries: map[Property]string{
				PropPower:  "PWRQSTN",
				PropVolume: "MVLQSTN",
				PropSource: "SLIQSTN",
				PropMute:   "AMTQSTN",
			},
		},
		"zone2": {
			Commands: map[Property]string{
				PropPower:  "ZPW",
				PropVolume: "ZVL",
				PropSource: "SLZ",
				PropMute:   "ZMT",
			},
			Queries: map[Property]string{
				PropPower:  "ZPWQSTN",
				PropVolume: "ZVLQSTN",
				PropSource: "SLZQSTN",
				PropMute:   "ZMTQSTN",
			},
		},
	}
}

// Validate checks the vocabulary invariants. A command code reused inside
// one zone is an error, since decoding could never tell the properties apart.
// A code shared across zones only earns a warning: resolution stays
// deterministic (sorted zone order, first match) but it is probably a
// config mistake.
func (m ZoneMap) Validate() error {
	type owner struct{ zone, prop string }
	seen := make(map[string]owner)

	zones := make([]string, 0, len(m))
	for name := range m {
		zones = append(zones, name)
	}
	sort.Strings(zones)

	for _, zone := range zones {
		cfg := m[zone]
		props := make([]string, 0, len(cfg.Commands))
		for p := range cfg.Commands {
			props = append(props, string(p))
		}
		sort.Strings(props)

		local := make(map[string]string)
		for _, p := range props {
			code := cfg.Commands[Property(p)]
			if prev, dup := local[code]; dup {
				return fmt.Errorf("avr: zone %s reuses command code %s for %s and %s", zone, code, prev, p)
			}
			local[code] = p

			if prev, dup := seen[code]; dup {
				log.Printf("[config] command code %s in zone %s already used by %s/%s; first match (sorted zone order) wins on decode",
					code, zone, prev.zone, prev.prop)
				continue
			}
			seen[code] = owner{zone: zone, prop: p}
		}
	}
	return nil
}
