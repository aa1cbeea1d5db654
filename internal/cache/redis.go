package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/tripboard/config"
	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client      *redis.Client
	bookingsTTL time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

func NewRedisCache(client *redis.Client, bookingsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:      client,
		bookingsTTL: bookingsTTL,
	}
}

// GetBookings returns nil, nil on a miss.
func (c *RedisCache) GetBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	data, err := c.client.Get(ctx, bookingsKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var bookings []domain.Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ErrStaleBookings is returned when the list was invalidated after it was read.
var ErrStaleBookings = errors.New("bookings changed since they were read")

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// BookingsGeneration returns the invalidation counter for userID. Read it before
// listing the store and pass it to SetBookings.
func (c *RedisCache) BookingsGeneration(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetBookings stores the list unless InvalidateBookings ran since generation was read.
func (c *RedisCache) SetBookings(ctx context.Context, userID string, generation int64, bookings []domain.Booking) error {
	if c.bookingsTTL <= 0 {
		return nil
	}
	payload, err := json.Marshal(bookings)
	if err != nil {
		return err
	}

	keys := []string{bookingsKey(userID), generationKey(userID)}
	written, err := setIfGeneration.Run(ctx, c.client, keys, strconv.FormatInt(generation, 10), payload, c.bookingsTTL.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if written == 0 {
		return ErrStaleBookings
	}
	return nil
}

func (c *RedisCache) InvalidateBookings(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Del(ctx, bookingsKey(userID))
		return nil
	})
	return err
}

// GetResponse returns a cached provider response body, or nil on a miss.
func (c *RedisCache) GetResponse(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (c *RedisCache) SetResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return c.client.Set(ctx, responseKey(key), body, ttl).Err()
}

func bookingsKey(userID string) string {
	return fmt.Sprintf("cache:bookings:user:%s", userID)
}

func generationKey(userID string) string {
	return fmt.Sprintf("cache:bookings:gen:user:%s", userID)
}

func responseKey(key string) string {
	return "cache:prediction:" + key
}
