package trips

import (
	"sort"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
)

type Buckets struct {
	Upcoming  []domain.Booking `json:"upcoming"`
	Past      []domain.Booking `json:"past"`
	Cancelled []domain.Booking `json:"cancelled"`
}

// Classify partitions bookings into upcoming, past and cancelled. Cancelled
// status wins over timing; otherwise a departure strictly before now is past.
// Each bucket is ordered by departure descending, ties by booking ID ascending.
// The input slice is not modified.
func Classify(bookings []domain.Booking, now time.Time) Buckets {
	buckets := Buckets{
		Upcoming:  []domain.Booking{},
		Past:      []domain.Booking{},
		Cancelled: []domain.Booking{},
	}

	for _, b := range bookings {
		switch {
		case b.Status == domain.BookingStatusCancelled:
			buckets.Cancelled = append(buckets.Cancelled, b)
		case b.Departure().Before(now):
			buckets.Past = append(buckets.Past, b)
		default:
			buckets.Upcoming = append(buckets.Upcoming, b)
		}
	}

	sortByDeparture(buckets.Upcoming)
	sortByDeparture(buckets.Past)
	sortByDeparture(buckets.Cancelled)
	return buckets
}

func sortByDeparture(bookings []domain.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		di, dj := bookings[i].Departure(), bookings[j].Departure()
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return bookings[i].ID < bookings[j].ID
	})
}

// Bucket names the bucket a booking ID landed in, or "" if it is absent.
func (b Buckets) Bucket(bookingID string) string {
	for name, list := range map[string][]domain.Booking{"upcoming": b.Upcoming, "past": b.Past, "cancelled": b.Cancelled} {
		for _, booking := range list {
			if booking.ID == bookingID {
				return name
			}
		}
	}
	return ""
}
