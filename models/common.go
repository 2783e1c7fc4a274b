package models

import (
	"time"
)

// Live tail message types.
const (
	StreamConnect    = "connect"
	StreamDisconnect = "disconnect"
	StreamHeartbeat  = "heartbeat"
	StreamFilter     = "filter"
	StreamLogs       = "logs"
	StreamError      = "tail_error"
)

// StreamMessage is one frame on the /ws/tail socket in either direction.
type StreamMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	ClientID  string      `json:"client_id,omitempty"`
}

// TailFilter narrows the live tail for one subscriber.
type TailFilter struct {
	MinSeverity *Severity `json:"min_severity,omitempty"`
	Service     string    `json:"service,omitempty"`
}

// Accept reports whether r passes the filter.
func (f TailFilter) Accept(r LogRecord) bool {
	if f.Service != "" && r.ServiceName != f.Service {
		return false
	}
	if f.MinSeverity != nil && !Matches(r.Severity, *f.MinSeverity) {
		return false
	}
	return true
}

// Apply returns the records of batch that pass the filter, in order.
func (f TailFilter) Apply(batch []LogRecord) []LogRecord {
	if f.MinSeverity == nil && f.Service == "" {
		return batch
	}
	out := make([]LogRecord, 0, len(batch))
	for _, r := range batch {
		if f.Accept(r) {
			out = append(out, r)
		}
	}
	return out
}

// TailError is the payload of a StreamError frame.
type TailError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
