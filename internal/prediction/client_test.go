package prediction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		TrafficURL: srv.URL,
		ArrivalURL: srv.URL + "/",
		WeatherURL: srv.URL,
		Timeout:    200 * time.Millisecond,
	}, opts...)
}

func TestClient_TrafficDelay(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/traffic/delay", r.URL.Path)
		assert.Equal(t, "R1", r.URL.Query().Get("route_id"))
		assert.Equal(t, "BUS-7", r.URL.Query().Get("bus_id"))
		_, _ = w.Write([]byte(`{"delay_minutes":15,"reason":"accident"}`))
	}))

	delay := client.TrafficDelay(context.Background(), "R1", "BUS-7")

	require.NotNil(t, delay)
	assert.Equal(t, 15, delay.DelayMinutes)
	assert.Equal(t, "accident", delay.Reason)
}

func TestClient_BusArrival(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/arrival/S-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"estimated_minutes":12}`))
	}))

	arrival := client.BusArrival(context.Background(), "S-1")

	require.NotNil(t, arrival)
	require.NotNil(t, arrival.EstimatedMinutes)
	assert.Equal(t, 12, *arrival.EstimatedMinutes)
}

func TestClient_WeatherAlerts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather/alerts", r.URL.Path)
		_, _ = w.Write([]byte(`{"alerts":[{"message":"Heavy rain","severity":"warning"},{"message":"Fog","severity":"info"}]}`))
	}))

	report := client.WeatherAlerts(context.Background(), "R1")

	require.NotNil(t, report)
	assert.Equal(t, []WeatherAlert{
		{Message: "Heavy rain", Severity: "warning"},
		{Message: "Fog", Severity: "info"},
	}, report.Alerts)
}

func TestClient_FailuresBecomeNoData(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			ctx := context.Background()

			start := time.Now()
			assert.Nil(t, client.TrafficDelay(ctx, "R1", "B1"))
			assert.Nil(t, client.BusArrival(ctx, "S1"))
			assert.Nil(t, client.WeatherAlerts(ctx, "R1"))
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestClient_UnreachableProvider(t *testing.T) {
	client := NewClient(Config{TrafficURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond})

	assert.Nil(t, client.TrafficDelay(context.Background(), "R1", "B1"))
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) GetResponse(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryCache) SetResponse(_ context.Context, key string, body []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = body
	return nil
}

func TestClient_CachesSuccessfulResponses(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"estimated_minutes":4}`))
	}))
	defer srv.Close()

	client := NewClient(Config{ArrivalURL: srv.URL, CacheTTL: time.Minute}, WithCache(&memoryCache{}))

	first := client.BusArrival(context.Background(), "S1")
	second := client.BusArrival(context.Background(), "S1")

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first.EstimatedMinutes, *second.EstimatedMinutes)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}
