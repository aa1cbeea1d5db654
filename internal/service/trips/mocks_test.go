package trips

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/prediction"
	"github.com/stretchr/testify/mock"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) Cancel(ctx context.Context, userID, bookingID, reason string) (*domain.Booking, error) {
	args := m.Called(ctx, userID, bookingID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockCache) BookingsGeneration(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) SetBookings(ctx context.Context, userID string, generation int64, bookings []domain.Booking) error {
	args := m.Called(ctx, userID, generation, bookings)
	return args.Error(0)
}

// memoryCache keeps booking lists with the same generation rule as the Redis cache.
type memoryCache struct {
	mu       sync.Mutex
	lists    map[string][]domain.Booking
	versions map[string]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{lists: make(map[string][]domain.Booking), versions: make(map[string]int64)}
}

func (c *memoryCache) GetBookings(_ context.Context, userID string) ([]domain.Booking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists[userID], nil
}

func (c *memoryCache) BookingsGeneration(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID], nil
}

func (c *memoryCache) SetBookings(_ context.Context, userID string, generation int64, bookings []domain.Booking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[userID] != generation {
		return errors.New("stale bookings")
	}
	c.lists[userID] = bookings
	return nil
}

func (c *memoryCache) InvalidateBookings(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[userID]++
	delete(c.lists, userID)
	return nil
}

func (m *MockCache) InvalidateBookings(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

// stubProvider answers per schedule ID. A schedule listed in hang blocks every
// call until the context ends or release is closed.
type stubProvider struct {
	traffic map[string]*prediction.TrafficDelay
	arrival map[string]*prediction.Arrival
	weather map[string]*prediction.WeatherReport

	hang    map[string]bool
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) wait(ctx context.Context, key string) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if !p.hang[key] {
		return
	}
	select {
	case <-ctx.Done():
	case <-p.release:
	}
}

// Traffic and weather are keyed by route ID, arrival by schedule ID.
func (p *stubProvider) TrafficDelay(ctx context.Context, routeID, _ string) *prediction.TrafficDelay {
	p.wait(ctx, routeID)
	return p.traffic[routeID]
}

func (p *stubProvider) BusArrival(ctx context.Context, scheduleID string) *prediction.Arrival {
	p.wait(ctx, scheduleID)
	return p.arrival[scheduleID]
}

func (p *stubProvider) WeatherAlerts(ctx context.Context, routeID string) *prediction.WeatherReport {
	p.wait(ctx, routeID)
	return p.weather[routeID]
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func minutes(n int) *int { return &n }

// booking builds a booking whose schedule is "S-"+id on route "R-"+id.
func booking(id string, status domain.BookingStatus, departure time.Time) domain.Booking {
	return domain.Booking{
		ID:     id,
		UserID: "U1",
		Status: status,
		Schedule: domain.Schedule{
			ID:            "S-" + id,
			RouteID:       "R-" + id,
			BusID:         "BUS-" + id,
			Origin:        "Mumbai",
			Destination:   "Pune",
			DepartureTime: departure,
			ArrivalTime:   departure.Add(3 * time.Hour),
		},
		Seats: []string{fmt.Sprintf("%s1", id)},
	}
}
