package avr

import (
	"log"
	"regexp"
	"sort"
	"strconv"
)

// Property identifies a tracked zone property.
type Property string

const (
	PropPower  Property = "power"
	PropVolume Property = "volume"
	PropSource Property = "source"
	PropMute   Property = "mute"
)

// Event is one decoded state change, published on the notification bus.
// Exactly one of the value fields is meaningful, selected by Prop.
type Event struct {
	Zone string
	Prop Property

	On     bool   // power, mute
	Level  int    // volume, 0-255
	Source string // source, canonical alias
}

// messagePattern matches the status message body anywhere in a frame:
// the `!1` marker, a 3-letter command code and an optional 2-character
// value. Search semantics tolerate leading noise and a missing sentinel.
var messagePattern = regexp.MustCompile(`!1([A-Z]{3})(..)?`)

// Decoder resolves raw frames against the configured zone vocabulary.
//
// Command codes are looked up across every zone's command table in sorted
// zone-name order (and sorted property order within a zone), so resolution
// is deterministic even if two zones were configured with the same code.
type Decoder struct {
	order   []resolveEntry
	sources *SourceTable
}

type resolveEntry struct {
	code string
	zone string
	prop Property
}

// NewDecoder builds a decoder for the given zone vocabulary.
func NewDecoder(zones ZoneMap, sources *SourceTable) *Decoder {
	d := &Decoder{sources: sources}

	zoneNames := make([]string, 0, len(zones))
	for name := range zones {
		zoneNames = append(zoneNames, name)
	}
	sort.Strings(zoneNames)

	for _, zone := range zoneNames {
		cfg := zones[zone]
		props := make([]string, 0, len(cfg.Commands))
		for p := range cfg.Commands {
			props = append(props, string(p))
		}
		sort.Strings(props)
		for _, p := range props {
			d.order = append(d.order, resolveEntry{
				code: cfg.Commands[Property(p)],
				zone: zone,
				prop: Property(p),
			})
		}
	}
	return d
}

// Decode parses one frame into a state-change event. ok is false when the
// frame carries no usable state change: malformed text, an unconfigured
// command code, or an unconvertible value. That is expected device noise on
// this protocol, not an error.
func (d *Decoder) Decode(frame []byte) (Event, bool) {
	m := messagePattern.FindStringSubmatch(string(frame))
	if m == nil {
		return Event{}, false
	}
	code, raw := m[1], m[2]

	for _, e := range d.order {
		if e.code != code {
			continue
		}
		ev := Event{Zone: e.zone, Prop: e.prop}
		switch e.prop {
		case PropPower, PropMute:
			ev.On = raw == "01"
		case PropVolume:
			level, err := strconv.ParseUint(raw, 16, 16)
			if err != nil {
				return Event{}, false
			}
			ev.Level = int(level)
		case PropSource:
			name, ok := d.sources.Name(raw)
			if !ok {
				log.Printf("[decoder] unknown source code %q in %s/%s message", raw, e.zone, e.prop)
				return Event{}, false
			}
			ev.Source = name
		default:
			// Configured property with no conversion rule.
			return Event{}, false
		}
		return ev, true
	}

	return Event{}, false
}
