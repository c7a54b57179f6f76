package avr

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// ZoneState is the last known state of one zone, updated from decoded
// notifications. An unknown source is the empty string.
type ZoneState struct {
	Power  bool   `json:"power"`
	Volume int    `json:"volume"`
	Source string `json:"source"`
	Mute   bool   `json:"mute"`
}

// Zone issues commands for one receiver zone and tracks its state.
//
// Command methods write straight to the shared transport and return without
// waiting: the receiver reports the resulting state asynchronously and the
// zone's bus subscription folds it into the cache. Methods for properties
// the zone has no command code for are silent no-ops, so one command surface
// serves both full zones and the stripped-down secondary ones.
type Zone struct {
	name    string
	cfg     ZoneConfig
	t       Transport
	sources *SourceTable
	sub     *Subscription

	mu    sync.Mutex
	state ZoneState
}

func newZone(name string, cfg ZoneConfig, t Transport, sources *SourceTable, bus *Bus) *Zone {
	z := &Zone{name: name, cfg: cfg, t: t, sources: sources}
	z.sub = bus.Subscribe(z.onEvent)
	return z
}

// Name returns the configured zone name.
func (z *Zone) Name() string { return z.name }

// State returns a snapshot of the last known zone state. Values reflect the
// most recent matching notification; there is no staleness guarantee.
func (z *Zone) State() ZoneState {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.state
}

func (z *Zone) onEvent(ev Event) {
	if ev.Zone != z.name {
		return
	}
	z.mu.Lock()
	switch ev.Prop {
	case PropPower:
		z.state.Power = ev.On
	case PropVolume:
		z.state.Volume = ev.Level
	case PropSource:
		z.state.Source = ev.Source
	case PropMute:
		z.state.Mute = ev.On
	}
	state := z.state
	z.mu.Unlock()

	log.Printf("[zone] state change [%s] %s (power=%t volume=%d source=%q mute=%t)",
		z.name, ev.Prop, state.Power, state.Volume, state.Source, state.Mute)
}

// Update issues every configured query so the receiver reports this zone's
// current state back through the notification bus. Used for startup refresh.
func (z *Zone) Update() {
	props := make([]string, 0, len(z.cfg.Queries))
	for p := range z.cfg.Queries {
		props = append(props, string(p))
	}
	sort.Strings(props)
	for _, p := range props {
		z.Query(Property(p))
	}
}

// Query asks the receiver to report one property.
func (z *Zone) Query(prop Property) {
	q, ok := z.cfg.Queries[prop]
	if !ok {
		return
	}
	z.command(q)
}

// PowerOn turns the zone on.
func (z *Zone) PowerOn() { z.set(PropPower, "01") }

// PowerOff puts the zone in standby.
func (z *Zone) PowerOff() { z.set(PropPower, "00") }

// MuteOn mutes the zone.
func (z *Zone) MuteOn() { z.set(PropMute, "01") }

// MuteOff unmutes the zone.
func (z *Zone) MuteOff() { z.set(PropMute, "00") }

// SetVolume sets the zone volume, clamped to 0-255 and encoded as exactly
// two uppercase hex digits.
func (z *Zone) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 255 {
		level = 255
	}
	z.set(PropVolume, fmt.Sprintf("%02X", level))
}

// SetSource selects an input by any of its aliases, case-insensitively.
// An unknown name is dropped with a log line.
func (z *Zone) SetSource(name string) {
	code, ok := z.sources.Code(name)
	if !ok {
		log.Printf("[zone] %s: no source matches %q", z.name, name)
		return
	}
	z.set(PropSource, code)
}

func (z *Zone) set(prop Property, value string) {
	code, ok := z.cfg.Commands[prop]
	if !ok {
		return
	}
	z.command(code + value)
}

// command writes `!1<body>\r`, dropping the write if the port is closed.
func (z *Zone) command(body string) {
	if !z.t.IsOpen() {
		log.Printf("[zone] %s: dropping command %q, transport closed", z.name, body)
		return
	}
	out := "!1" + body + "\r"
	if _, err := z.t.Write([]byte(out)); err != nil {
		log.Printf("[zone] %s: write failed: %v", z.name, err)
	}
}
