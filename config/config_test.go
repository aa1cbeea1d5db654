package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
http:
  address: ":8080"
grpc:
  address: ":9090"
database:
  host: localhost
  port: 5432
  user: trips
  name: trips
redis:
  addr: localhost:6379
kafka:
  brokers: ["localhost:9092"]
providers:
  traffic_url: http://traffic.local
  arrival_url: http://arrival.local
  weather_url: http://weather.local
`

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "redis", cfg.Live.Transport)
	assert.Equal(t, "schedule-updates", cfg.Live.Channel)
	assert.Equal(t, "booking_events", cfg.Kafka.BookingEventsTopic)
	assert.Equal(t, 3*time.Second, cfg.Providers.Timeout())
	assert.Equal(t, 3*time.Second, cfg.Trips.FlashTTL())
	assert.Equal(t, 15*time.Minute, cfg.Trips.BoardIdle())
	assert.Equal(t, "no-reply@tripboard.local", cfg.Mail.From)
	assert.Empty(t, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "host=localhost port=5432 user=trips password= dbname=trips sslmode=disable", cfg.Database.DSN())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestParse_Validation(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{name: "malformed yaml", yaml: "http: [:"},
		{name: "missing providers", yaml: "http:\n  address: ':8080'\n"},
		{name: "bad transport", yaml: validYAML + "live:\n  transport: carrier-pigeon\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	env := map[string]string{
		"TRIPBOARD_KAFKA_BROKERS":        "k1:9092,k2:9092",
		"TRIPBOARD_LIVE_TRANSPORT":       "kafka",
		"TRIPBOARD_PROVIDERS_TIMEOUT_MS": "250",
	}

	cfg.applyEnv(func(key string) string { return env[key] })

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "kafka", cfg.Live.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.Providers.Timeout())
}

func TestLoadConfig_Example(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Live.Transport)
	assert.Equal(t, 30*time.Second, cfg.Providers.CacheTTL())
	assert.Equal(t, time.Minute, cfg.Trips.SweepInterval())
}
