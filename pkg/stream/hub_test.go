package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastReading(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForClients(t, h, 1)

	reading := types.TelemetryReading{
		SiteID:     "site-001",
		TS:         time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		BatterySOC: 0.77,
		SolarKW:    4.2,
		Condition:  types.ConditionClear,
	}
	h.BroadcastReading(reading)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got types.TelemetryReading
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, reading.SiteID, got.SiteID)
	assert.Equal(t, reading.BatterySOC, got.BatterySOC)
	assert.Equal(t, reading.Condition, got.Condition)
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}

func TestHubCountCallback(t *testing.T) {
	var last atomic.Int64
	h := NewHub(func(n int) { last.Store(int64(n)) })
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, h, 1)
	assert.Equal(t, int64(1), last.Load())

	conn.Close()
	waitForClients(t, h, 0)
	assert.Equal(t, int64(0), last.Load())
}
