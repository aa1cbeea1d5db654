package domain

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Passenger struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender,omitempty"`
}

// Booking is read-only for this service except for the cancel request.
type Booking struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Status     BookingStatus `json:"status"`
	Schedule   Schedule      `json:"schedule"`
	Passengers []Passenger   `json:"passengers"`
	Seats      []string      `json:"seats"`
	TotalFare  int64         `json:"total_fare"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (b Booking) Departure() time.Time {
	return b.Schedule.DepartureTime
}
