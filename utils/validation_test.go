package utils

import (
	"testing"

	"github.com/archives-observability/archives/archerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	MetricName string `json:"metric_name" validate:"required,max=16"`
	TraceID    string `json:"trace_id,omitempty" validate:"omitempty,hexadecimal"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     sampleRequest
		wantField string
	}{
		{"valid", sampleRequest{MetricName: "cpu.usage", TraceID: "abc123"}, ""},
		{"missing metric", sampleRequest{}, "metric_name"},
		{"metric too long", sampleRequest{MetricName: "a.very.long.metric.name"}, "metric_name"},
		{"non hex trace", sampleRequest{MetricName: "cpu", TraceID: "xyz"}, "trace_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, archerr.InvalidParameter, archerr.KindOf(err))
			assert.Equal(t, tt.wantField, archerr.FieldOf(err))
		})
	}
}
