package trips

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/kafka"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/metrics"
	"github.com/Domenick1991/tripboard/internal/repository"
	"github.com/Domenick1991/tripboard/internal/session"
	"github.com/sirupsen/logrus"
)

const DefaultFlashTTL = 3 * time.Second

// Flash is a transient message shown to the traveler after an action.
type Flash struct {
	Kind      domain.Severity `json:"kind"`
	Message   string          `json:"message"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (f *Flash) Active(now time.Time) bool {
	return f != nil && now.Before(f.ExpiresAt)
}

// Outcome tells the caller what to do after a cancel attempt. Refresh means
// the whole pipeline must run again; the coordinator never patches state.
type Outcome struct {
	Cancelled bool
	Refresh   bool
	Flash     *Flash
}

// BookingCache holds booking lists per traveler. InvalidateBookings bumps a
// generation so a list read before it is never written back.
type BookingCache interface {
	GetBookings(ctx context.Context, userID string) ([]domain.Booking, error)
	BookingsGeneration(ctx context.Context, userID string) (int64, error)
	SetBookings(ctx context.Context, userID string, generation int64, bookings []domain.Booking) error
	InvalidateBookings(ctx context.Context, userID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type Coordinator struct {
	store    repository.BookingRepository
	cache    BookingCache
	producer Producer
	topic    string
	flashTTL time.Duration
	now      func() time.Time
}

type CoordinatorOption func(*Coordinator)

func WithCache(cache BookingCache) CoordinatorOption {
	return func(c *Coordinator) {
		c.cache = cache
	}
}

// WithEvents publishes booking_cancelled events to topic after each cancellation.
func WithEvents(producer Producer, topic string) CoordinatorOption {
	return func(c *Coordinator) {
		c.producer = producer
		c.topic = topic
	}
}

func WithFlashTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.flashTTL = ttl
		}
	}
}

func NewCoordinator(store repository.BookingRepository, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:    store,
		flashTTL: DefaultFlashTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cancel issues a single cancel request to the store. The confirmation step is
// the caller's job. Failures come back as a *domain.StoreError together with an
// error flash; nothing is retried.
func (c *Coordinator) Cancel(ctx context.Context, userID, bookingID, reason string) (Outcome, error) {
	logger := log.FromContext(ctx).WithFields(logrus.Fields{"booking_id": bookingID, "user_id": userID})

	cancelled, err := c.store.Cancel(ctx, userID, bookingID, reason)
	if err != nil {
		kind := domain.StoreErrorKind(err)
		metrics.Cancellations.WithLabelValues(string(kind)).Inc()
		logger.WithError(err).Warn("cancel rejected by booking store")
		return Outcome{Flash: c.flash(domain.SeverityError, failureMessage(err))}, err
	}

	metrics.Cancellations.WithLabelValues("cancelled").Inc()
	logger.Info("booking cancelled")

	if c.cache != nil {
		if err := c.cache.InvalidateBookings(ctx, userID); err != nil {
			logger.WithError(err).Warn("could not invalidate cached bookings")
		}
	}
	c.publish(ctx, logger, userID, cancelled, reason)

	return Outcome{
		Cancelled: true,
		Refresh:   true,
		Flash:     c.flash(domain.SeveritySuccess, "Booking cancelled"),
	}, nil
}

func (c *Coordinator) publish(ctx context.Context, logger *logrus.Entry, userID string, b *domain.Booking, reason string) {
	if c.producer == nil || c.topic == "" || b == nil {
		return
	}
	event := kafka.BookingEvent{
		Type:        kafka.EventBookingCancelled,
		BookingID:   b.ID,
		UserID:      userID,
		ScheduleID:  b.Schedule.ID,
		Destination: b.Schedule.Destination,
		Departure:   b.Departure(),
		Reason:      reason,
		OccurredAt:  c.now(),
	}
	if sess := session.FromContext(ctx); sess != nil {
		event.Email = sess.Email
	}
	if err := c.producer.Publish(ctx, c.topic, b.ID, event); err != nil {
		logger.WithError(err).Warn("failed to publish booking_cancelled event")
	}
}

func (c *Coordinator) flash(kind domain.Severity, msg string) *Flash {
	return &Flash{Kind: kind, Message: msg, ExpiresAt: c.now().Add(c.flashTTL)}
}

func failureMessage(err error) string {
	switch domain.StoreErrorKind(err) {
	case domain.ErrorKindConflict:
		return "This booking can no longer be cancelled"
	case domain.ErrorKindNotFound:
		return "Booking not found"
	case domain.ErrorKindUnauthorized:
		return "Your session has expired, please sign in again"
	case domain.ErrorKindRejected:
		return storeMessage(err, "The cancellation was rejected")
	default:
		return "Could not cancel the booking, please try again"
	}
}

func storeMessage(err error, fallback string) string {
	var se *domain.StoreError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
