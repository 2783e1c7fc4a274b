package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailFilter_Apply(t *testing.T) {
	warn := SeverityWarn
	batch := []LogRecord{
		{ID: "a", Severity: SeverityInfo, ServiceName: "api"},
		{ID: "b", Severity: SeverityError, ServiceName: "api"},
		{ID: "c", Severity: SeverityFatal, ServiceName: "worker"},
		{ID: "d", Severity: SeverityWarn, ServiceName: "api"},
	}

	tests := []struct {
		name   string
		filter TailFilter
		want   []string
	}{
		{"No filter", TailFilter{}, []string{"a", "b", "c", "d"}},
		{"Severity floor", TailFilter{MinSeverity: &warn}, []string{"b", "c", "d"}},
		{"Service only", TailFilter{Service: "worker"}, []string{"c"}},
		{"Both", TailFilter{MinSeverity: &warn, Service: "api"}, []string{"b", "d"}},
		{"Nothing matches", TailFilter{Service: "billing"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []string{}
			for _, r := range tt.filter.Apply(batch) {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTailFilter_DecodesSeverityName(t *testing.T) {
	var f TailFilter
	require.NoError(t, json.Unmarshal([]byte(`{"min_severity":"warning","service":"api"}`), &f))
	require.NotNil(t, f.MinSeverity)
	assert.Equal(t, SeverityWarn, *f.MinSeverity)
	assert.Equal(t, "api", f.Service)

	assert.Error(t, json.Unmarshal([]byte(`{"min_severity":"LOUD"}`), &f))
}

func TestStreamMessage_OmitsEmptyData(t *testing.T) {
	raw, err := json.Marshal(StreamMessage{Type: StreamHeartbeat, Timestamp: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"heartbeat","timestamp":"1970-01-01T00:00:00Z"}`, string(raw))
}
