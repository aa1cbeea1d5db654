package trips

import (
	"context"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/repository"
)

// Loader lists a traveler's bookings, reading through the cache.
type Loader struct {
	store repository.BookingRepository
	cache BookingCache
}

func NewLoader(store repository.BookingRepository, cache BookingCache) *Loader {
	return &Loader{store: store, cache: cache}
}

// List serves a cached list when there is one.
func (l *Loader) List(ctx context.Context, userID string) ([]domain.Booking, error) {
	if l.cache != nil {
		if cached, err := l.cache.GetBookings(ctx, userID); err == nil && cached != nil {
			return cached, nil
		}
	}
	return l.Reload(ctx, userID)
}

// Reload always reads the store and overwrites the cached list. A list read
// before a concurrent invalidation is returned but not cached.
func (l *Loader) Reload(ctx context.Context, userID string) ([]domain.Booking, error) {
	logger := log.FromContext(ctx).WithField("user_id", userID)

	cacheable := l.cache != nil
	var generation int64
	if cacheable {
		gen, err := l.cache.BookingsGeneration(ctx, userID)
		if err != nil {
			logger.WithError(err).Debug("bookings cache unavailable")
			cacheable = false
		}
		generation = gen
	}

	bookings, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := l.cache.SetBookings(ctx, userID, generation, bookings); err != nil {
			logger.WithError(err).Debug("could not cache bookings")
		}
	}
	return bookings, nil
}
