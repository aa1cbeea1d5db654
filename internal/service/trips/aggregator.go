package trips

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/notification"
	"github.com/Domenick1991/tripboard/internal/prediction"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Aggregator turns provider predictions for upcoming bookings into notifications.
type Aggregator struct {
	provider prediction.Provider
	now      func() time.Time
}

func NewAggregator(provider prediction.Provider) *Aggregator {
	return &Aggregator{provider: provider, now: time.Now}
}

// Aggregate queries all three providers for every booking concurrently and
// appends each booking's records to m as soon as that booking's calls settle.
// It returns once every booking is done; it never fails.
func (a *Aggregator) Aggregate(ctx context.Context, upcoming []domain.Booking, m *notification.Mapping) {
	var wg sync.WaitGroup
	for _, b := range upcoming {
		m.Ensure(b.ID)
		wg.Add(1)
		go func(b domain.Booking) {
			defer wg.Done()
			records := a.collect(ctx, b)
			if len(records) > 0 {
				m.Append(b.ID, records...)
			}
		}(b)
	}
	wg.Wait()
}

func (a *Aggregator) collect(ctx context.Context, b domain.Booking) []domain.Notification {
	var (
		traffic *prediction.TrafficDelay
		arrival *prediction.Arrival
		weather *prediction.WeatherReport
	)

	// Provider calls absorb their own failures, so the group never sees an error.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		traffic = a.provider.TrafficDelay(gctx, b.Schedule.RouteID, b.Schedule.BusID)
		return nil
	})
	g.Go(func() error {
		arrival = a.provider.BusArrival(gctx, b.Schedule.ID)
		return nil
	})
	g.Go(func() error {
		weather = a.provider.WeatherAlerts(gctx, b.Schedule.RouteID)
		return nil
	})
	_ = g.Wait()

	records := translate(b, traffic, arrival, weather, a.now())
	log.FromContext(ctx).
		WithField("booking_id", b.ID).
		WithField("records", len(records)).
		Debug("aggregated predictions")
	return records
}

// translate applies the record rules in traffic, arrival, weather order.
func translate(b domain.Booking, traffic *prediction.TrafficDelay, arrival *prediction.Arrival, weather *prediction.WeatherReport, now time.Time) []domain.Notification {
	records := make([]domain.Notification, 0, 2)

	if traffic != nil && traffic.DelayMinutes > 0 {
		msg := fmt.Sprintf("Your bus to %s is delayed by %d minutes", b.Schedule.Destination, traffic.DelayMinutes)
		if traffic.Reason != "" {
			msg += fmt.Sprintf(" (%s)", traffic.Reason)
		}
		records = append(records, newRecord(b.ID, domain.NotificationTraffic, msg, domain.SeverityWarning, domain.SourcePoll, now))
	}

	if arrival != nil && arrival.EstimatedMinutes != nil {
		msg := fmt.Sprintf("Bus arriving in %d minutes", *arrival.EstimatedMinutes)
		records = append(records, newRecord(b.ID, domain.NotificationArrival, msg, domain.SeverityInfo, domain.SourcePoll, now))
	}

	if weather != nil {
		for _, alert := range weather.Alerts {
			records = append(records, newRecord(b.ID, domain.NotificationWeather, alert.Message, domain.ParseSeverity(alert.Severity), domain.SourcePoll, now))
		}
	}

	return records
}

func newRecord(bookingID string, kind domain.NotificationKind, msg string, severity domain.Severity, source domain.NotificationSource, now time.Time) domain.Notification {
	return domain.Notification{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		Kind:      kind,
		Message:   msg,
		Severity:  severity,
		Source:    source,
		CreatedAt: now,
	}
}
