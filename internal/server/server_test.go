package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avrdash/avrdash/internal/avr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *avr.Driver) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), "config.yaml")
	cfg.Logging.Enabled = false

	driver := avr.NewDriver(avr.NewDemoTransport(cfg.Zones), cfg.Zones, nil)
	t.Cleanup(func() { driver.Close() })

	s := New(cfg, driver, os.DirFS(t.TempDir()))
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return s, ts, driver
}

func TestHandleZonesReturnsState(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/zones")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var frame Frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&frame))
	assert.Contains(t, frame.Zones, "master")
	assert.Contains(t, frame.Zones, "zone2")
}

func TestZoneCommandRoundTrip(t *testing.T) {
	_, ts, driver := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/zones/master/volume", "application/json",
		strings.NewReader(`{"level":55}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The demo receiver acknowledges the command over the inbound stream;
	// the listener decodes it back into the zone cache.
	master, err := driver.Zone("master")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return master.State().Volume == 55
	}, 2*time.Second, 10*time.Millisecond)
}

func TestZoneCommandPowerAndSource(t *testing.T) {
	_, ts, driver := newTestServer(t)

	for path, body := range map[string]string{
		"/api/zones/master/power":  `{"on":true}`,
		"/api/zones/master/source": `{"name":"game"}`,
	} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	master, err := driver.Zone("master")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := master.State()
		return s.Power && s.Source == "VIDEO3"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestZoneCommandErrors(t *testing.T) {
	_, ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown zone", http.MethodPost, "/api/zones/garage/power", 404},
		{"unknown action", http.MethodPost, "/api/zones/master/eject", 404},
		{"missing action", http.MethodPost, "/api/zones/master", 404},
		{"wrong method", http.MethodGet, "/api/zones/master/power", 405},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHandleConfigGetAndPatch(t *testing.T) {
	s, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Contains(t, cfg, "receiver")

	patch := `{"logging":{"enabled":true}}`
	resp2, err := http.Post(ts.URL+"/api/config", "application/json", strings.NewReader(patch))
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	assert.True(t, s.cfg.Logging.Enabled)
	// Unpatched fields are preserved by the deep merge.
	assert.Equal(t, "demo", s.cfg.Receiver.Type)
	assert.True(t, s.stateLog.IsEnabled())
}
