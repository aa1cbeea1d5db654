package domain

import "time"

type NotificationKind string

const (
	NotificationTraffic NotificationKind = "traffic"
	NotificationArrival NotificationKind = "arrival"
	NotificationWeather NotificationKind = "weather"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// ParseSeverity falls back to info for empty or unknown values.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError, SeveritySuccess:
		return Severity(s)
	default:
		return SeverityInfo
	}
}

type NotificationSource string

const (
	SourcePoll NotificationSource = "poll"
	SourceLive NotificationSource = "live"
)

// Notification is never mutated after creation.
type Notification struct {
	ID        string             `json:"id"`
	BookingID string             `json:"booking_id"`
	Kind      NotificationKind   `json:"kind"`
	Message   string             `json:"message"`
	Severity  Severity           `json:"severity"`
	Source    NotificationSource `json:"source"`
	CreatedAt time.Time          `json:"created_at"`
}
