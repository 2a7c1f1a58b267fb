package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, h *Hub, tenantID uuid.UUID) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, h.Serve(w, r, tenantID))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToTenantClients(t *testing.T) {
	h := NewHub(DefaultConfig(), zerolog.Nop())
	h.Start()
	defer h.Stop()

	tenantID := uuid.New()
	conn := dialHub(t, h, tenantID)

	// Registration goes through the hub loop; give it a beat.
	time.Sleep(50 * time.Millisecond)

	h.Publish(&Event{Type: EventPurgeExecuted, TenantID: tenantID, ServerSeq: 8})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventPurgeExecuted, got.Type)
	assert.Equal(t, tenantID, got.TenantID)
	assert.Equal(t, int64(8), got.ServerSeq)
	assert.False(t, got.At.IsZero(), "publish stamps the event time")
}

func TestHubIsolatesTenants(t *testing.T) {
	h := NewHub(DefaultConfig(), zerolog.Nop())
	h.Start()
	defer h.Stop()

	mine := uuid.New()
	other := uuid.New()
	conn := dialHub(t, h, mine)
	time.Sleep(50 * time.Millisecond)

	h.Publish(&Event{Type: EventMutationsApplied, TenantID: other, ServerSeq: 3})
	h.Publish(&Event{Type: EventMutationsApplied, TenantID: mine, ServerSeq: 4})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, mine, got.TenantID, "events for other tenants are never delivered")
	assert.Equal(t, int64(4), got.ServerSeq)
}

func TestHubPublishNeverBlocks(t *testing.T) {
	// Hub not started: the broadcast channel fills and further publishes drop.
	h := NewHub(DefaultConfig(), zerolog.Nop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(&Event{Type: EventMutationsApplied, TenantID: uuid.New()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated hub")
	}
}
