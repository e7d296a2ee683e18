package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/orderflow/fulfillment/internal/order/infrastructure/rest"
	"github.com/orderflow/fulfillment/internal/stock/application"
	stockkafka "github.com/orderflow/fulfillment/internal/stock/infrastructure/kafka"
	"github.com/orderflow/fulfillment/pkg/config"
	"github.com/orderflow/fulfillment/pkg/idempotency"
	"github.com/orderflow/fulfillment/pkg/logging"
	"github.com/orderflow/fulfillment/pkg/shutdown"
	"github.com/orderflow/fulfillment/pkg/tracing"
)

// appliedTTL bounds how long an applied item claim is remembered. It only
// needs to outlive the broker's redelivery window for one event.
const appliedTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "stock-worker", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	applied := idempotency.NewStore(rdb, appliedTTL)

	products := rest.NewProductClient(log, cfg.ProductServiceURL)
	svc := application.NewService(log, products, applied)

	// One writer for both redelivery and dead-letter; the topic is set per
	// message.
	publisher := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	defer publisher.Close()

	consumer := stockkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.OrderCreatedTopic, cfg.DeadLetterTopic,
		cfg.ConsumerGroup, cfg.MaxDeliveryAttempts, svc, publisher)

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("stock-worker shutdown")
}
