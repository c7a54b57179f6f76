package avr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestZone(t *testing.T, name string) (*Zone, *fakeTransport, *Bus) {
	t.Helper()
	tr := newFakeTransport()
	bus := NewBus()
	cfg, ok := DefaultZones()[name]
	require.True(t, ok)
	z := newZone(name, cfg, tr, NewSourceTable(DefaultSources), bus)
	return z, tr, bus
}

func TestZoneCommandWrites(t *testing.T) {
	tests := []struct {
		name string
		call func(z *Zone)
		want string
	}{
		{"power on", func(z *Zone) { z.PowerOn() }, "!1PWR01\r"},
		{"power off", func(z *Zone) { z.PowerOff() }, "!1PWR00\r"},
		{"mute on", func(z *Zone) { z.MuteOn() }, "!1AMT01\r"},
		{"mute off", func(z *Zone) { z.MuteOff() }, "!1AMT00\r"},
		{"volume 55", func(z *Zone) { z.SetVolume(55) }, "!1MVL37\r"},
		{"volume 0", func(z *Zone) { z.SetVolume(0) }, "!1MVL00\r"},
		{"volume clamped high", func(z *Zone) { z.SetVolume(300) }, "!1MVLFF\r"},
		{"volume clamped low", func(z *Zone) { z.SetVolume(-4) }, "!1MVL00\r"},
		{"source by alias", func(z *Zone) { z.SetSource("GAME") }, "!1SLI02\r"},
		{"query power", func(z *Zone) { z.Query(PropPower) }, "!1PWRQSTN\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z, tr, _ := newTestZone(t, "master")
			tt.call(z)
			assert.Equal(t, []string{tt.want}, tr.written())
		})
	}
}

func TestZoneSetSourceAliasCaseInsensitive(t *testing.T) {
	z1, tr1, _ := newTestZone(t, "master")
	z2, tr2, _ := newTestZone(t, "master")

	z1.SetSource("aux")
	z2.SetSource("AUX")

	require.Equal(t, tr1.written(), tr2.written())
	assert.Equal(t, []string{"!1SLI03\r"}, tr1.written())
}

func TestZoneSetSourceUnknownAliasIsDropped(t *testing.T) {
	z, tr, _ := newTestZone(t, "master")

	z.SetSource("BETAMAX")

	assert.Empty(t, tr.written())
}

func TestZoneUnconfiguredCommandIsNoop(t *testing.T) {
	tr := newFakeTransport()
	bus := NewBus()
	cfg := ZoneConfig{Commands: map[Property]string{PropVolume: "ZVL"}}
	z := newZone("zone3", cfg, tr, NewSourceTable(DefaultSources), bus)

	z.PowerOn()
	z.MuteOn()
	z.SetSource("AUX")
	z.Update()

	assert.Empty(t, tr.written())
}

func TestZoneDropsWritesWhenTransportClosed(t *testing.T) {
	z, tr, _ := newTestZone(t, "master")
	require.NoError(t, tr.Close())

	z.PowerOn()
	z.SetVolume(10)

	assert.Empty(t, tr.written())
}

func TestZoneUpdateIssuesAllQueries(t *testing.T) {
	z, tr, _ := newTestZone(t, "zone2")

	z.Update()

	// Sorted property order keeps the refresh deterministic.
	assert.Equal(t, []string{
		"!1ZMTQSTN\r",
		"!1ZPWQSTN\r",
		"!1SLZQSTN\r",
		"!1ZVLQSTN\r",
	}, tr.written())
}

func TestZoneStateFollowsBusEvents(t *testing.T) {
	z, _, bus := newTestZone(t, "master")

	bus.Publish(Event{Zone: "master", Prop: PropPower, On: true})
	bus.Publish(Event{Zone: "master", Prop: PropVolume, Level: 55})
	bus.Publish(Event{Zone: "master", Prop: PropSource, Source: "VIDEO3"})
	bus.Publish(Event{Zone: "master", Prop: PropMute, On: true})

	assert.Equal(t, ZoneState{Power: true, Volume: 55, Source: "VIDEO3", Mute: true}, z.State())
}

func TestZoneIgnoresOtherZonesEvents(t *testing.T) {
	tr := newFakeTransport()
	bus := NewBus()
	zones := DefaultZones()
	sources := NewSourceTable(DefaultSources)
	master := newZone("master", zones["master"], tr, sources, bus)
	zone2 := newZone("zone2", zones["zone2"], tr, sources, bus)

	bus.Publish(Event{Zone: "master", Prop: PropPower, On: true})

	assert.True(t, master.State().Power)
	assert.False(t, zone2.State().Power)
	assert.Equal(t, ZoneState{}, zone2.State())
}
