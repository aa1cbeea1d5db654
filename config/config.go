package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Providers ProvidersConfig `yaml:"providers"`
	Live      LiveConfig      `yaml:"live"`
	Trips     TripsConfig     `yaml:"trips"`
	Mail      MailConfig      `yaml:"mail"`
}

type MailConfig struct {
	From string `yaml:"from" validate:"email"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address" validate:"required"`
	SwaggerDir     string   `yaml:"swagger_dir"`
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,url"`
}

type GRPCConfig struct {
	Address string `yaml:"address" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Name     string `yaml:"name" validate:"required"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers" validate:"required,min=1"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	GroupID            string   `yaml:"group_id"`
}

type ProvidersConfig struct {
	TrafficURL      string `yaml:"traffic_url" validate:"required,url"`
	ArrivalURL      string `yaml:"arrival_url" validate:"required,url"`
	WeatherURL      string `yaml:"weather_url" validate:"required,url"`
	TimeoutMillis   int    `yaml:"timeout_ms" validate:"gte=0"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" validate:"gte=0"`
}

func (p ProvidersConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMillis) * time.Millisecond
}

func (p ProvidersConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

type LiveConfig struct {
	// Transport is "redis" (pub/sub channel) or "kafka" (partition reader).
	Transport      string `yaml:"transport" validate:"oneof=redis kafka"`
	Channel        string `yaml:"channel"`
	Topic          string `yaml:"topic"`
	Partition      int    `yaml:"partition" validate:"gte=0"`
	EventBufferLen int    `yaml:"event_buffer" validate:"gte=0"`
}

type TripsConfig struct {
	BookingsCacheTTLSeconds int `yaml:"bookings_cache_ttl_seconds" validate:"gte=0"`
	FlashSeconds            int `yaml:"flash_seconds" validate:"gte=0"`
	BoardIdleMinutes        int `yaml:"board_idle_minutes" validate:"gte=0"`
	SweepIntervalSeconds    int `yaml:"sweep_interval_seconds" validate:"gte=0"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, fills defaults, applies TRIPBOARD_* env overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking_events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "tripboard-worker"
	}
	if c.Providers.TimeoutMillis == 0 {
		c.Providers.TimeoutMillis = 3000
	}
	if c.Live.Transport == "" {
		c.Live.Transport = "redis"
	}
	if c.Live.Channel == "" {
		c.Live.Channel = "schedule-updates"
	}
	if c.Live.Topic == "" {
		c.Live.Topic = "schedule-updates"
	}
	if c.Live.EventBufferLen == 0 {
		c.Live.EventBufferLen = 64
	}
	if c.Mail.From == "" {
		c.Mail.From = "no-reply@tripboard.local"
	}
	if c.Trips.FlashSeconds == 0 {
		c.Trips.FlashSeconds = 3
	}
	if c.Trips.BookingsCacheTTLSeconds == 0 {
		c.Trips.BookingsCacheTTLSeconds = 30
	}
	if c.Trips.BoardIdleMinutes == 0 {
		c.Trips.BoardIdleMinutes = 15
	}
	if c.Trips.SweepIntervalSeconds == 0 {
		c.Trips.SweepIntervalSeconds = 60
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TRIPBOARD_HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := getenv("TRIPBOARD_HTTP_ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := getenv("TRIPBOARD_GRPC_ADDRESS"); v != "" {
		c.GRPC.Address = v
	}
	if v := getenv("TRIPBOARD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("TRIPBOARD_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := getenv("TRIPBOARD_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("TRIPBOARD_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("TRIPBOARD_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("TRIPBOARD_LIVE_TRANSPORT"); v != "" {
		c.Live.Transport = v
	}
	if v := getenv("TRIPBOARD_PROVIDERS_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Providers.TimeoutMillis = ms
		}
	}
}

func (t TripsConfig) BookingsCacheTTL() time.Duration {
	return time.Duration(t.BookingsCacheTTLSeconds) * time.Second
}

func (t TripsConfig) FlashTTL() time.Duration {
	return time.Duration(t.FlashSeconds) * time.Second
}

func (t TripsConfig) BoardIdle() time.Duration {
	return time.Duration(t.BoardIdleMinutes) * time.Minute
}

func (t TripsConfig) SweepInterval() time.Duration {
	return time.Duration(t.SweepIntervalSeconds) * time.Second
}
