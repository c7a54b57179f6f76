package avr

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownZone is returned when asking a driver for a zone that is not in
// its vocabulary.
var ErrUnknownZone = errors.New("avr: unknown zone")

// Driver owns one receiver connection: the shared transport, the decode
// pipeline and the notification bus. Zone controllers are created from it
// and all reuse the same underlying resources: one transport and one
// background listener per physical device, however many zones are managed.
type Driver struct {
	transport Transport
	sources   *SourceTable
	vocab     ZoneMap
	bus       *Bus
	listener  *Listener

	mu    sync.Mutex
	zones map[string]*Zone
}

// NewDriver wires a driver over an already-open transport and starts the
// background listener. A nil sources table falls back to DefaultSources.
func NewDriver(t Transport, zones ZoneMap, sources *SourceTable) *Driver {
	if sources == nil {
		sources = NewSourceTable(DefaultSources)
	}
	bus := NewBus()
	d := &Driver{
		transport: t,
		sources:   sources,
		vocab:     zones,
		bus:       bus,
		listener:  NewListener(t, NewDecoder(zones, sources), bus),
		zones:     make(map[string]*Zone),
	}
	d.listener.Start()
	return d
}

// Open resolves the shared serial transport for the device path and builds
// a driver over it. Two drivers opened against the same path share one port.
func Open(opts Options, zones ZoneMap) (*Driver, error) {
	t, err := Shared(opts)
	if err != nil {
		return nil, err
	}
	return NewDriver(t, zones, nil), nil
}

// Zone returns the controller for a configured zone, creating it on first
// use. Subsequent calls return the same controller.
func (d *Driver) Zone(name string) (*Zone, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if z, ok := d.zones[name]; ok {
		return z, nil
	}
	cfg, ok := d.vocab[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	z := newZone(name, cfg, d.transport, d.sources, d.bus)
	d.zones[name] = z
	return z, nil
}

// Zones returns controllers for every configured zone, sorted by name.
func (d *Driver) Zones() []*Zone {
	names := make([]string, 0, len(d.vocab))
	for name := range d.vocab {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Zone, 0, len(names))
	for _, name := range names {
		z, _ := d.Zone(name)
		out = append(out, z)
	}
	return out
}

// Bus exposes the notification bus so additional consumers (state logging,
// dashboards) can subscribe alongside the zone controllers.
func (d *Driver) Bus() *Bus { return d.bus }

// Sources returns the input-selector table in use.
func (d *Driver) Sources() *SourceTable { return d.sources }

// Close tears the driver down deterministically: the transport closes first
// so the blocked read returns, then the listener is stopped and every zone
// subscription is dropped.
func (d *Driver) Close() error {
	err := d.transport.Close()
	d.listener.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, z := range d.zones {
		z.sub.Cancel()
	}
	return err
}
