package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Minute)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:bookings:user:U1", bookingsKey("U1"))
	assert.Equal(t, "cache:bookings:gen:user:U1", generationKey("U1"))
	assert.Equal(t, "cache:prediction:arrival:S1", responseKey("arrival:S1"))
}

func TestSetBookings_DisabledTTL(t *testing.T) {
	c := NewRedisCache(nil, 0)

	err := c.SetBookings(context.Background(), "U1", 0, []domain.Booking{{ID: "A"}})

	assert.NoError(t, err)
}

func TestBookings_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	missing, err := c.GetBookings(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	gen, err := c.BookingsGeneration(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, c.SetBookings(ctx, "U1", gen, []domain.Booking{{ID: "A", Status: domain.BookingStatusConfirmed}}))

	got, err := c.GetBookings(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
}

func TestSetBookings_RejectsWriteReadBeforeInvalidation(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	gen, err := c.BookingsGeneration(ctx, "U1")
	require.NoError(t, err)

	require.NoError(t, c.InvalidateBookings(ctx, "U1"))

	err = c.SetBookings(ctx, "U1", gen, []domain.Booking{{ID: "A", Status: domain.BookingStatusConfirmed}})
	assert.ErrorIs(t, err, ErrStaleBookings)

	got, err := c.GetBookings(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, got)

	fresh, err := c.BookingsGeneration(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, gen+1, fresh)
	assert.NoError(t, c.SetBookings(ctx, "U1", fresh, []domain.Booking{{ID: "A", Status: domain.BookingStatusCancelled}}))
}

func TestInvalidateBookings_DropsCachedList(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, c.SetBookings(ctx, "U1", 0, []domain.Booking{{ID: "A"}}))

	require.NoError(t, c.InvalidateBookings(ctx, "U1"))

	got, err := c.GetBookings(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
