package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/tripboard/config"
	"github.com/Domenick1991/tripboard/internal/bootstrap"
	"github.com/Domenick1991/tripboard/internal/cache"
	"github.com/Domenick1991/tripboard/internal/kafka"
	"github.com/Domenick1991/tripboard/internal/live"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/prediction"
	"github.com/Domenick1991/tripboard/internal/repository"
	"github.com/Domenick1991/tripboard/internal/service/trips"
	"github.com/Domenick1991/tripboard/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log.Init(log.ParseLevel(cfg.Log.Level), cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.ToContext(ctx, logrus.WithField("service", "tripboard"))

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	redisClient := cache.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	redisCache := cache.NewRedisCache(redisClient, cfg.Trips.BookingsCacheTTL())

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	provider := prediction.NewClient(prediction.Config{
		TrafficURL: cfg.Providers.TrafficURL,
		ArrivalURL: cfg.Providers.ArrivalURL,
		WeatherURL: cfg.Providers.WeatherURL,
		Timeout:    cfg.Providers.Timeout(),
		CacheTTL:   cfg.Providers.CacheTTL(),
	}, prediction.WithCache(redisCache))

	var dialer live.Dialer
	switch cfg.Live.Transport {
	case "kafka":
		dialer = live.NewKafkaDialer(cfg.Kafka.Brokers, cfg.Live.Topic, cfg.Live.Partition)
	default:
		dialer = live.NewRedisDialer(redisClient, cfg.Live.Channel)
	}

	bookingRepo := repository.NewBookingRepository(pool)
	boards := trips.NewManager(trips.BoardDeps{
		Loader:     trips.NewLoader(bookingRepo, redisCache),
		Aggregator: trips.NewAggregator(provider),
		Coordinator: trips.NewCoordinator(bookingRepo,
			trips.WithCache(redisCache),
			trips.WithEvents(producer, cfg.Kafka.BookingEventsTopic),
			trips.WithFlashTTL(cfg.Trips.FlashTTL()),
		),
		Dialer:      dialer,
		EventBuffer: cfg.Live.EventBufferLen,
	})

	if err := bootstrap.Run(ctx, cfg, bootstrap.Deps{
		Sessions: session.NewRedisStore(redisClient),
		Boards:   boards,
	}); err != nil {
		logrus.WithError(err).Fatal("server error")
	}
}
