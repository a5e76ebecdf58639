// FILE: logship/src/internal/core/event.go
package core

import "encoding/json"

// LogEvent is one structured event bound for the collection endpoint.
// Data stays raw JSON so field order survives caching and resend untouched.
type LogEvent struct {
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Level       string          `json:"level"`
	Data        json.RawMessage `json:"data"`
	Timestamp   string          `json:"timestamp"`
}

// DrainResult summarizes one pass over the cached events.
type DrainResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}
