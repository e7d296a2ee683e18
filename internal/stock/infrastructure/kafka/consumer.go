package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/fulfillment/internal/order/domain"
	"github.com/orderflow/fulfillment/internal/stock/application"
	"github.com/orderflow/fulfillment/pkg/tracing"
)

const retryCountHeader = "retry_count"

type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer reads order-created events and applies stock decrements. A
// delivery that fails partway is republished with an incremented retry
// counter; once the attempt budget is spent the message moves to the
// dead-letter topic with the last error attached.
type Consumer struct {
	log         *slog.Logger
	reader      *kafka.Reader
	svc         *application.Service
	publisher   Publisher
	topic       string
	dlqTopic    string
	maxAttempts int
	tracer      trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, dlqTopic, group string, maxAttempts int, svc *application.Service, publisher Publisher) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:         log,
		reader:      r,
		svc:         svc,
		publisher:   publisher,
		topic:       topic,
		dlqTopic:    dlqTopic,
		maxAttempts: maxAttempts,
		tracer:      otel.Tracer("stock-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			// Couldn't hand the message off anywhere. Stop without
			// committing: committing a later message would skip this one, so
			// the group has to rewind to it on restart.
			c.log.Error("message handoff failed, stopping for redelivery", "err", err)
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderCreated")
	defer span.End()

	eventID := headerValue(msg.Headers, "event_id")
	if eventID == "" {
		// Producer predating the event_id header; the broker coordinates are
		// still stable for a given delivery attempt of the same record.
		eventID = fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	}

	var ev domain.OrderCreated
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.ErrorContext(msgCtx, "undecodable event, dead-lettering", "event_id", eventID, "err", err)
		return c.deadLetter(msgCtx, msg, err)
	}

	err := c.svc.Apply(msgCtx, eventID, ev)
	if err == nil {
		return nil
	}

	attempt := headerInt(msg.Headers, retryCountHeader) + 1
	if attempt >= c.maxAttempts {
		c.log.ErrorContext(msgCtx, "attempts exhausted, dead-lettering",
			"order_id", ev.OrderID, "event_id", eventID, "attempt", attempt, "err", err)
		return c.deadLetter(msgCtx, msg, err)
	}

	c.log.WarnContext(msgCtx, "stock apply failed, redelivering",
		"order_id", ev.OrderID, "event_id", eventID, "attempt", attempt, "err", err)
	retry := kafka.Message{
		Topic:   c.topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: tracing.InjectKafkaHeaders(msgCtx, replaceHeader(msg.Headers, retryCountHeader, strconv.Itoa(attempt))),
	}
	return c.publisher.WriteMessages(msgCtx, retry)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	dead := kafka.Message{
		Topic:   c.dlqTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: tracing.InjectKafkaHeaders(ctx, replaceHeader(msg.Headers, "dead_letter_reason", cause.Error())),
	}
	return c.publisher.WriteMessages(ctx, dead)
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}

func headerInt(h []kafka.Header, key string) int {
	n, err := strconv.Atoi(headerValue(h, key))
	if err != nil {
		return 0
	}
	return n
}

func replaceHeader(h []kafka.Header, key, value string) []kafka.Header {
	out := make([]kafka.Header, 0, len(h)+1)
	for _, hh := range h {
		if hh.Key != key {
			out = append(out, hh)
		}
	}
	return append(out, kafka.Header{Key: key, Value: []byte(value)})
}
