package kafka

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const maxBackoff = 5 * time.Second

// ErrPermanent marks handler errors that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Is(target error) bool {
	return target == ErrPermanent
}

// Permanent wraps err so the consumer skips retries and dead-letters the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// DLQTopic receives messages that still fail after retries. Empty drops them.
	DLQTopic    string
	MaxRetries  int
	BaseBackoff time.Duration
}

type Consumer struct {
	r   messageReader
	dlq messageWriter

	topic       string
	groupID     string
	maxRetries  int
	baseBackoff time.Duration
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	rcfg := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		MaxWait:           500 * time.Millisecond,
	}
	if cfg.GroupID != "" {
		rcfg.GroupTopics = []string{cfg.Topic}
	} else {
		rcfg.Topic = cfg.Topic
	}

	var dlq messageWriter
	if cfg.DLQTopic != "" {
		dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}

	c := newConsumerWithReader(kafka.NewReader(rcfg), dlq)
	c.topic = cfg.Topic
	c.groupID = cfg.GroupID
	return c.withRetry(cfg.MaxRetries, cfg.BaseBackoff)
}

func newConsumerWithReader(r messageReader, dlq messageWriter) *Consumer {
	return &Consumer{
		r:           r,
		dlq:         dlq,
		maxRetries:  3,
		baseBackoff: 200 * time.Millisecond,
	}
}

func (c *Consumer) withRetry(maxRetries int, base time.Duration) *Consumer {
	if maxRetries >= 0 {
		c.maxRetries = maxRetries
	}
	if base > 0 {
		c.baseBackoff = base
	}
	return c
}

func (c *Consumer) Close() error {
	err := c.r.Close()
	if cl, ok := c.dlq.(interface{ Close() error }); ok {
		if dErr := cl.Close(); dErr != nil && err == nil {
			err = dErr
		}
	}
	return err
}

// Consume runs handler for each message until ctx ends or the reader fails.
// Failures are retried with exponential backoff, then dead-lettered; the
// offset is committed once the message is handled or parked.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}

		attempts, lastErr := c.handle(ctx, msg, handler)
		if lastErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.deadLetter(ctx, msg, attempts, lastErr); err != nil {
				// not committed, the message is redelivered after restart
				return err
			}
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(key, value []byte) error) (int, error) {
	var lastErr error
	attempt := 0
	for ; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return attempt, ctx.Err()
			case <-time.After(backoff(attempt, c.baseBackoff)):
			}
		}
		lastErr = handler(msg.Key, msg.Value)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return attempt + 1, lastErr
		}
		slog.Warn("kafka handler failed", "topic", msg.Topic, "offset", msg.Offset, "attempt", attempt+1, "error", lastErr.Error())
	}
	return attempt, lastErr
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, attempts int, cause error) error {
	if c.dlq == nil {
		slog.Error("dropping message", "topic", msg.Topic, "offset", msg.Offset, "error", cause.Error())
		return nil
	}
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "x-dlq-reason", Value: []byte(trimErr(cause))},
		kafka.Header{Key: "x-dlq-attempts", Value: []byte(strconv.Itoa(attempts))},
		kafka.Header{Key: "x-dlq-ts", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		kafka.Header{Key: "x-dlq-source-topic", Value: []byte(c.sourceTopic(msg))},
		kafka.Header{Key: "x-dlq-group", Value: []byte(c.groupID)},
	)
	if err := c.dlq.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}); err != nil {
		return errors.Wrap(err, "write dlq")
	}
	slog.Warn("message dead-lettered", "topic", msg.Topic, "offset", msg.Offset, "attempts", attempts, "error", cause.Error())
	return nil
}

func (c *Consumer) sourceTopic(msg kafka.Message) string {
	if msg.Topic != "" {
		return msg.Topic
	}
	return c.topic
}

func backoff(n int, base time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	d := base * (1 << (n - 1))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func trimErr(err error) string {
	s := err.Error()
	if len(s) > 1000 {
		return s[:1000]
	}
	return s
}
