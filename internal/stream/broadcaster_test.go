package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tradeguard/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func waitForClients(t *testing.T, b *Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, have %d", want, b.ClientCount())
}

func TestBroadcastPromotionStateChanged(t *testing.T) {
	b := NewBroadcaster(testLogger())
	server := httptest.NewServer(httpHandler(b))
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, b, 1)

	b.PromotionChanged(models.PromotionStateChanged{
		State:      models.PromotionRolledBack,
		SessionID:  uuid.New(),
		SnapshotID: "20260101T000000.000000000",
		Reason:     "sharpe dropped 40% from baseline",
		Timestamp:  time.Now(),
	})

	env := readEnvelope(t, conn)
	assert.Equal(t, "promotion_state_changed", env.Type)

	payload, ok := env.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "rolled_back", payload["state"])
}

func TestBroadcastReachesAllClients(t *testing.T) {
	b := NewBroadcaster(testLogger())
	server := httptest.NewServer(httpHandler(b))
	defer server.Close()

	first := dial(t, server)
	second := dial(t, server)
	waitForClients(t, b, 2)

	b.ParameterApplied(models.ParameterApplied{
		Cohort:    models.CohortKey{StrategyID: "momentum-v2", Regime: "trending", Session: "rth"},
		OldValue:  8,
		NewValue:  12,
		Timestamp: time.Now(),
	})

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, "parameter_applied", env.Type)
	}
}

func TestHaltSignalBroadcast(t *testing.T) {
	b := NewBroadcaster(testLogger())
	server := httptest.NewServer(httpHandler(b))
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, b, 1)

	b.Halt(models.HaltSignal{Reason: "catastrophic drawdown", SessionID: uuid.New(), Timestamp: time.Now()})

	env := readEnvelope(t, conn)
	assert.Equal(t, "halt_signal", env.Type)
}

func TestCloseDisconnectsClients(t *testing.T) {
	b := NewBroadcaster(testLogger())
	server := httptest.NewServer(httpHandler(b))
	defer server.Close()

	dial(t, server)
	waitForClients(t, b, 1)

	b.Close()
	assert.Equal(t, 0, b.ClientCount())
}

func httpHandler(b *Broadcaster) http.Handler {
	return http.HandlerFunc(b.HandleWS)
}
