// Command livepush publishes one schedule update onto the live transport.
// Operators use it to announce disruptions by hand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/Domenick1991/tripboard/config"
	"github.com/Domenick1991/tripboard/internal/cache"
	"github.com/Domenick1991/tripboard/internal/kafka"
	"github.com/Domenick1991/tripboard/internal/live"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	scheduleID := flag.String("schedule", "", "schedule ID the update is for")
	eventType := flag.String("type", string(live.EventTraffic), "traffic or arrival")
	message := flag.String("message", "", "text shown to travelers")
	severity := flag.String("severity", "info", "info, warning, error or success")
	flag.Parse()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log.Init(log.ParseLevel(cfg.Log.Level), "text")

	payload, err := json.Marshal(live.Event{
		ScheduleID: *scheduleID,
		Type:       live.EventType(*eventType),
		Message:    *message,
		Severity:   *severity,
	})
	if err != nil {
		logrus.WithError(err).Fatal("encode event")
	}
	if _, err := live.DecodeEvent(payload); err != nil {
		logrus.WithError(err).Fatal("invalid event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Live.Transport {
	case "kafka":
		// subscribers read only cfg.Live.Partition
		producer := kafka.NewProducer(cfg.Kafka.Brokers, kafka.WithPartition(cfg.Live.Partition))
		defer producer.Close()
		err = producer.Publish(ctx, cfg.Live.Topic, *scheduleID, json.RawMessage(payload))
	default:
		client := cache.NewRedisClient(cfg.Redis)
		defer client.Close()
		err = live.NewRedisPublisher(client, cfg.Live.Channel).Publish(ctx, payload)
	}
	if err != nil {
		logrus.WithError(err).Fatal("publish")
	}
	logrus.WithField("schedule_id", *scheduleID).Info("update published")
}
