package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingGauge struct {
	mu     sync.Mutex
	values []int
}

func (g *recordingGauge) SetTailClients(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values = append(g.values, n)
}

func (g *recordingGauge) snapshot() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.values...)
}

func startHub(t *testing.T, gauge ClientGauge) (*Hub, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	hub := NewHub(utils.NewLoggerWithCore(core), gauge)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub, logs
}

func receive(t *testing.T, client *Client) models.StreamMessage {
	t.Helper()
	select {
	case msg, ok := <-client.send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return models.StreamMessage{}
}

func connect(t *testing.T, hub *Hub, filter models.TailFilter) *Client {
	t.Helper()
	client := NewClient(nil, hub, filter)
	require.True(t, hub.RegisterClient(client))
	welcome := receive(t, client)
	require.Equal(t, models.StreamConnect, welcome.Type)
	return client
}

func TestHub_RegisterSendsWelcomeAndCounts(t *testing.T) {
	gauge := &recordingGauge{}
	hub, _ := startHub(t, gauge)

	client := NewClient(nil, hub, models.TailFilter{Service: "api"})
	require.True(t, hub.RegisterClient(client))

	welcome := receive(t, client)
	assert.Equal(t, models.StreamConnect, welcome.Type)
	assert.Equal(t, client.ID, welcome.ClientID)
	data := welcome.Data.(map[string]interface{})
	assert.Equal(t, "connected", data["status"])
	assert.Equal(t, models.TailFilter{Service: "api"}, data["filter"])
	assert.Equal(t, 1, hub.ClientCount())

	hub.UnregisterClient(client)
	assert.Eventually(t, func() bool { return len(gauge.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1, 0}, gauge.snapshot())
	assert.Equal(t, 0, hub.ClientCount())

	_, open := <-client.send
	assert.False(t, open)
}

func TestHub_BroadcastAppliesClientFilters(t *testing.T) {
	hub, _ := startHub(t, nil)
	errorLevel := models.SeverityError

	everything := connect(t, hub, models.TailFilter{})
	apiErrors := connect(t, hub, models.TailFilter{MinSeverity: &errorLevel, Service: "api"})
	billing := connect(t, hub, models.TailFilter{Service: "billing"})

	batch := []models.LogRecord{
		{ID: "1", Severity: models.SeverityInfo, ServiceName: "api"},
		{ID: "2", Severity: models.SeverityError, ServiceName: "api"},
		{ID: "3", Severity: models.SeverityFatal, ServiceName: "worker"},
	}
	hub.BroadcastToAll(models.StreamLogs, batch)
	hub.BroadcastToAll(models.StreamHeartbeat, nil)

	msg := receive(t, everything)
	assert.Equal(t, models.StreamLogs, msg.Type)
	assert.Len(t, msg.Data, 3)

	msg = receive(t, apiErrors)
	assert.Equal(t, models.StreamLogs, msg.Type)
	require.Len(t, msg.Data, 1)
	assert.Equal(t, "2", msg.Data.([]models.LogRecord)[0].ID)
	assert.Equal(t, apiErrors.ID, msg.ClientID)

	// nothing matched, so the next frame is the heartbeat
	msg = receive(t, billing)
	assert.Equal(t, models.StreamHeartbeat, msg.Type)
}

func TestHub_DropsUnresponsiveClient(t *testing.T) {
	hub, logs := startHub(t, nil)

	slow := &Client{ID: "slow", send: make(chan models.StreamMessage, 1), hub: hub}
	require.True(t, hub.RegisterClient(slow))
	hub.BroadcastToAll(models.StreamHeartbeat, nil)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("Removed unresponsive tail client").Len())

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_StopClosesClientsAndRefusesRegistration(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	hub := NewHub(utils.NewLoggerWithCore(core), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := connect(t, hub, models.TailFilter{})
	cancel()
	<-hub.Done()

	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, hub.RegisterClient(NewClient(nil, hub, models.TailFilter{})))

	// must not block after shutdown
	hub.UnregisterClient(client)
}
