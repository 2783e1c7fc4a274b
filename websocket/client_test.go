package websocket

import (
	"encoding/json"
	"testing"

	"github.com/archives-observability/archives/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_HandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       inbound
		wantType  string
		wantError string
	}{
		{"Heartbeat", inbound{Type: models.StreamHeartbeat}, models.StreamHeartbeat, ""},
		{"Clear filter", inbound{Type: models.StreamFilter}, models.StreamFilter, ""},
		{"Unknown severity", inbound{Type: models.StreamFilter, Data: json.RawMessage(`{"min_severity":"LOUD"}`)}, models.StreamError, "InvalidParameter"},
		{"Filter not an object", inbound{Type: models.StreamFilter, Data: json.RawMessage(`[1]`)}, models.StreamError, "InvalidRequest"},
		{"Unknown frame", inbound{Type: "subscribe"}, models.StreamError, "InvalidRequest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, _ := startHub(t, nil)
			client := connect(t, hub, models.TailFilter{})

			assert.True(t, client.handleMessage(tt.msg))

			reply := receive(t, client)
			assert.Equal(t, tt.wantType, reply.Type)
			assert.Equal(t, client.ID, reply.ClientID)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, reply.Data.(models.TailError).Error)
			}
		})
	}
}

func TestClient_FilterUpdate(t *testing.T) {
	hub, _ := startHub(t, nil)
	client := connect(t, hub, models.TailFilter{Service: "api"})

	ok := client.handleMessage(inbound{
		Type: models.StreamFilter,
		Data: json.RawMessage(`{"min_severity":"error","service":"worker"}`),
	})
	require.True(t, ok)

	reply := receive(t, client)
	assert.Equal(t, models.StreamFilter, reply.Type)

	filter := client.Filter()
	require.NotNil(t, filter.MinSeverity)
	assert.Equal(t, models.SeverityError, *filter.MinSeverity)
	assert.Equal(t, "worker", filter.Service)

	hub.BroadcastToAll(models.StreamLogs, []models.LogRecord{
		{ID: "api-error", Severity: models.SeverityError, ServiceName: "api"},
		{ID: "worker-info", Severity: models.SeverityInfo, ServiceName: "worker"},
		{ID: "worker-fatal", Severity: models.SeverityFatal, ServiceName: "worker"},
	})
	msg := receive(t, client)
	records := msg.Data.([]models.LogRecord)
	require.Len(t, records, 1)
	assert.Equal(t, "worker-fatal", records[0].ID)
}

func TestClient_DisconnectStopsReading(t *testing.T) {
	hub, _ := startHub(t, nil)
	client := connect(t, hub, models.TailFilter{})

	assert.False(t, client.handleMessage(inbound{Type: models.StreamDisconnect}))
}

func TestClient_RepliesAfterUnregisterAreDropped(t *testing.T) {
	hub, _ := startHub(t, nil)
	client := connect(t, hub, models.TailFilter{})

	hub.UnregisterClient(client)
	_, open := <-client.send
	require.False(t, open)

	// the hub owns the closed channel, so this must not panic
	assert.NotPanics(t, func() { client.reply(models.StreamHeartbeat, nil) })
	hub.BroadcastToAll(models.StreamHeartbeat, nil)
}
