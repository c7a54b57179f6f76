package avr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverEndToEndWithDemoReceiver(t *testing.T) {
	zones := DefaultZones()
	d := NewDriver(NewDemoTransport(zones), zones, nil)
	defer d.Close()

	master, err := d.Zone("master")
	require.NoError(t, err)

	// Startup refresh: the demo receiver answers every query and the bus
	// folds the replies into the cached state.
	master.Update()
	require.Eventually(t, func() bool {
		s := master.State()
		return s.Volume == 0x22 && s.Source == "VIDEO3"
	}, 2*time.Second, 10*time.Millisecond)

	master.PowerOn()
	require.Eventually(t, func() bool {
		return master.State().Power
	}, 2*time.Second, 10*time.Millisecond)

	master.SetVolume(55)
	require.Eventually(t, func() bool {
		return master.State().Volume == 55
	}, 2*time.Second, 10*time.Millisecond)

	// The other zone's cache is untouched by master traffic.
	zone2, err := d.Zone("zone2")
	require.NoError(t, err)
	assert.Equal(t, ZoneState{}, zone2.State())
}

func TestDriverZoneIsSharedAndValidated(t *testing.T) {
	zones := DefaultZones()
	d := NewDriver(NewDemoTransport(zones), zones, nil)
	defer d.Close()

	a, err := d.Zone("master")
	require.NoError(t, err)
	b, err := d.Zone("master")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = d.Zone("garage")
	assert.ErrorIs(t, err, ErrUnknownZone)
}

func TestDriverZonesSortedByName(t *testing.T) {
	zones := DefaultZones()
	d := NewDriver(NewDemoTransport(zones), zones, nil)
	defer d.Close()

	all := d.Zones()
	require.Len(t, all, 2)
	assert.Equal(t, "master", all[0].Name())
	assert.Equal(t, "zone2", all[1].Name())
}

func TestDriverCloseStopsListenerAndZones(t *testing.T) {
	zones := DefaultZones()
	demo := NewDemoTransport(zones)
	d := NewDriver(demo, zones, nil)

	master, err := d.Zone("master")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, d.Close())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver close did not finish")
	}

	assert.False(t, demo.IsOpen())

	// Events published after close no longer reach the zone cache.
	d.Bus().Publish(Event{Zone: "master", Prop: PropPower, On: true})
	assert.False(t, master.State().Power)
}
