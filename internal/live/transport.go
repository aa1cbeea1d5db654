package live

import (
	"context"
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventTraffic EventType = "traffic"
	EventArrival EventType = "arrival"
)

// Event is the push payload. The transport may multiplex many schedules.
type Event struct {
	ScheduleID string    `json:"schedule_id"`
	Type       EventType `json:"type"`
	Message    string    `json:"message"`
	Severity   string    `json:"severity,omitempty"`
}

func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode push event: %w", err)
	}
	if ev.ScheduleID == "" {
		return Event{}, fmt.Errorf("decode push event: missing schedule_id")
	}
	switch ev.Type {
	case EventTraffic, EventArrival:
	default:
		return Event{}, fmt.Errorf("decode push event: unknown type %q", ev.Type)
	}
	return ev, nil
}

// Conn is one transport connection. Messages carries raw payloads and is
// closed when the connection ends, either through Close or a transport failure,
// after which Err reports the failure (nil after a plain Close).
type Conn interface {
	Messages() <-chan []byte
	Err() error
	Close() error
}

// Dialer opens one connection per subscription.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
