package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/tripboard/config"
	"github.com/Domenick1991/tripboard/internal/email"
	"github.com/Domenick1991/tripboard/internal/kafka"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
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
	ctx = log.ToContext(ctx, logrus.WithField("service", "tripboard-worker"))

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.BookingEventsTopic)
	defer consumer.Close()

	sender := email.NewSender(cfg.Mail.From)

	logrus.WithField("topic", cfg.Kafka.BookingEventsTopic).Info("worker consuming booking events")
	if err := consumer.Consume(ctx, func(ctx context.Context, event kafka.BookingEvent) error {
		entry := log.FromContext(ctx).WithField("booking_id", event.BookingID).WithField("type", event.Type)
		return sender.Send(log.ToContext(ctx, entry), event)
	}); err != nil {
		logrus.WithError(err).Error("consumer stopped")
	}
	logrus.Info("worker stopped")
}
