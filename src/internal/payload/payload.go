// FILE: logship/src/internal/payload/payload.go
package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"logship/src/internal/core"
)

// TimestampFormat is the wire format the collection endpoint expects,
// always in UTC.
const TimestampFormat = "2006-01-02 15:04:05"

// NormalizeTimestamp converts the accepted timestamp representations into
// the wire format. Accepts nil (current time), time.Time, epoch seconds as
// int/int64/float64, or a pre-formatted string which is passed through
// unchanged.
func NormalizeTimestamp(ts any) string {
	switch v := ts.(type) {
	case nil:
		return time.Now().UTC().Format(TimestampFormat)
	case time.Time:
		return v.UTC().Format(TimestampFormat)
	case int:
		return time.Unix(int64(v), 0).UTC().Format(TimestampFormat)
	case int64:
		return time.Unix(v, 0).UTC().Format(TimestampFormat)
	case float64:
		sec := int64(v)
		nsec := int64((v - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC().Format(TimestampFormat)
	case string:
		return v
	default:
		return time.Now().UTC().Format(TimestampFormat)
	}
}

// Build assembles the event envelope. The data value is serialized once
// here and treated as opaque bytes everywhere downstream.
func Build(eventType, category, subcategory, level string, data any, ts any) (core.LogEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return core.LogEvent{}, fmt.Errorf("failed to serialize event data: %w", err)
	}

	return core.LogEvent{
		Type:        eventType,
		Category:    category,
		Subcategory: subcategory,
		Level:       level,
		Data:        raw,
		Timestamp:   NormalizeTimestamp(ts),
	}, nil
}

// Encode produces the JSON body POSTed to the collection endpoint.
func Encode(event core.LogEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	return body, nil
}
