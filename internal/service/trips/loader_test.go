package trips

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLoader_ListServesCachedBookings(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	a := booking("A", domain.BookingStatusConfirmed, time.Now().Add(time.Hour))
	cache.On("GetBookings", mock.Anything, "U1").Return(nil, nil).Once()
	cache.On("BookingsGeneration", mock.Anything, "U1").Return(int64(3), nil).Once()
	repo.On("ListByUser", mock.Anything, "U1").Return([]domain.Booking{a}, nil).Once()
	cache.On("SetBookings", mock.Anything, "U1", int64(3), []domain.Booking{a}).Return(nil).Once()
	cache.On("GetBookings", mock.Anything, "U1").Return([]domain.Booking{a}, nil)

	loader := NewLoader(repo, cache)

	first, err := loader.List(context.Background(), "U1")
	require.NoError(t, err)
	second, err := loader.List(context.Background(), "U1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "ListByUser", 1)
	cache.AssertExpectations(t)
}

func TestLoader_ReloadOverwritesCachedBookings(t *testing.T) {
	now := time.Now()
	a := booking("A", domain.BookingStatusConfirmed, now.Add(time.Hour))
	cancelled := a
	cancelled.Status = domain.BookingStatusCancelled

	repo := &MockBookingRepository{}
	cache := newMemoryCache()
	require.NoError(t, cache.SetBookings(context.Background(), "U1", 0, []domain.Booking{a}))
	repo.On("ListByUser", mock.Anything, "U1").Return([]domain.Booking{cancelled}, nil).Once()

	loader := NewLoader(repo, cache)

	got, err := loader.Reload(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Booking{cancelled}, got)

	listed, err := loader.List(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Booking{cancelled}, listed)
	repo.AssertNumberOfCalls(t, "ListByUser", 1)
}

func TestLoader_ListStartedBeforeCancelDoesNotCacheStaleBookings(t *testing.T) {
	now := time.Now()
	a := booking("A", domain.BookingStatusConfirmed, now.Add(time.Hour))
	cancelled := a
	cancelled.Status = domain.BookingStatusCancelled

	repo := &MockBookingRepository{}
	cache := newMemoryCache()
	loader := NewLoader(repo, cache)
	coordinator := NewCoordinator(repo, WithCache(cache))

	started := make(chan struct{})
	release := make(chan struct{})
	repo.On("ListByUser", mock.Anything, "U1").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]domain.Booking{a}, nil).Once()
	repo.On("Cancel", mock.Anything, "U1", "A", "").Return(&cancelled, nil).Once()
	repo.On("ListByUser", mock.Anything, "U1").Return([]domain.Booking{cancelled}, nil)

	done := make(chan []domain.Booking, 1)
	go func() {
		bookings, err := loader.List(context.Background(), "U1")
		assert.NoError(t, err)
		done <- bookings
	}()

	<-started
	outcome, err := coordinator.Cancel(context.Background(), "U1", "A", "")
	require.NoError(t, err)
	require.True(t, outcome.Cancelled)

	close(release)
	stale := <-done
	assert.Equal(t, "upcoming", Classify(stale, now).Bucket("A"))

	bookings, err := loader.List(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", Classify(bookings, now).Bucket("A"))
	repo.AssertExpectations(t)
}
