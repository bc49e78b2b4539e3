package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/BearBump/OrderBox/config"
	"github.com/BearBump/OrderBox/internal/broker/kafka"
	"github.com/BearBump/OrderBox/internal/cache/rediscache"
	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/services/enrichment"
	"github.com/BearBump/OrderBox/internal/services/syncer"
	"github.com/BearBump/OrderBox/internal/services/webhooks"
	"github.com/BearBump/OrderBox/internal/storage/pgorders"
)

// workerStore is everything the worker reads and writes in Postgres.
type workerStore interface {
	enrichment.Repository
	webhooks.Repository
	syncer.Companies
	Ping(ctx context.Context) error
}

type platform interface {
	enrichment.Platform
	syncer.Platform
}

type jobConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (store workerStore, closeFn func(), err error)
	newProducer    func(cfg *config.Config) enrichment.Publisher
	newConsumer    func(cfg *config.Config) jobConsumer
	newRateLimiter func(cfg *config.Config) enrichment.RateLimiter
	newPlatform    func(cfg *config.Config) platform
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgorders.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) enrichment.Publisher {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		newConsumer: func(cfg *config.Config) jobConsumer {
			return kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:     cfg.Kafka.Brokers(),
				Topic:       enrichTopic(cfg),
				GroupID:     consumerGroup(cfg),
				DLQTopic:    cfg.Kafka.EnrichDLQTopicName,
				MaxRetries:  cfg.Kafka.MaxRetries,
				BaseBackoff: time.Duration(cfg.Kafka.BaseBackoffMillis) * time.Millisecond,
			})
		},
		newRateLimiter: func(cfg *config.Config) enrichment.RateLimiter {
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
		newPlatform: func(cfg *config.Config) platform {
			return shopify.New(cfg.Shopify.BaseURL, cfg.Shopify.APIVersion)
		},
	}
}

func enrichTopic(cfg *config.Config) string {
	if cfg.Kafka.EnrichTopicName == "" {
		return "orders.enrich"
	}
	return cfg.Kafka.EnrichTopicName
}

func consumerGroup(cfg *config.Config) string {
	if cfg.Kafka.ConsumerGroup == "" {
		return "order-worker"
	}
	return cfg.Kafka.ConsumerGroup
}

type enricher interface {
	Enrich(ctx context.Context, orderID, companyID uint64) (enrichment.Outcome, error)
}

// enrichJobHandler runs one queued job. Jobs that can never succeed are
// marked permanent so the consumer dead-letters them without retries.
func enrichJobHandler(ctx context.Context, svc enricher, m *metrics.Metrics) func(key, value []byte) error {
	return func(_ []byte, value []byte) error {
		job, err := enrichment.DecodeJob(value)
		if err != nil {
			m.EnrichJob("invalid")
			return kafka.Permanent(err)
		}

		out, err := svc.Enrich(ctx, job.OrderID, job.CompanyID)
		if err != nil {
			if enrichment.IsPermanent(err) {
				m.EnrichJob("dropped")
				slog.Warn("enrich job dropped", "job_id", job.JobID, "order_id", job.OrderID, "error", err.Error())
				return kafka.Permanent(err)
			}
			m.EnrichJob("error")
			return err
		}

		result := "unchanged"
		if out.Changed() {
			result = "changed"
		}
		m.EnrichJob(result)
		slog.Info("order enriched", "job_id", job.JobID, "order_id", job.OrderID, "result", result,
			"user_created", out.UserCreated, "status_changed", out.StatusChanged)
		return nil
	}
}

type workerOpts struct {
	httpAddr string
	onListen func(httpAddr string)
}

func RunOrderWorker(ctx context.Context, cfg *config.Config, f workerFactories, opts workerOpts) error {
	interval := time.Duration(cfg.OrderBox.SyncIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := time.Duration(cfg.OrderBox.SyncLookbackSeconds) * time.Second
	if lookback <= 0 {
		lookback = time.Hour
	}
	concurrency := cfg.OrderBox.SyncConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	rlPerMin := cfg.Shopify.RateLimitPerMinute
	if rlPerMin <= 0 {
		rlPerMin = 40
	}

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	m := metrics.New()
	shop := f.newPlatform(cfg)
	rl := f.newRateLimiter(cfg)
	producer := f.newProducer(cfg)
	defer closeIfCloser(producer)
	defer closeIfCloser(rl)
	scheduler := enrichment.NewScheduler(producer, enrichTopic(cfg))
	enrich := enrichment.New(store, shop, rl, rlPerMin)
	wh := webhooks.New(store, scheduler, m)

	sy := syncer.New(store, shop, wh, rl, m).
		WithSettings(interval, lookback, concurrency, int64(rlPerMin))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	consumer := f.newConsumer(cfg)
	defer closeIfCloser(consumer)
	go func() {
		slog.Info("kafka consumer started", "topic", enrichTopic(cfg), "group", consumerGroup(cfg))
		if err := consumer.Consume(ctx, enrichJobHandler(ctx, enrich, m)); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	if opts.httpAddr != "" {
		go func() {
			err := runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr: opts.httpAddr,
				onListen: opts.onListen,
				syncer:   sy,
				cfg:      cfg,
				metrics:  m,
				ready:    store.Ping,
			})
			if err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()
	}

	go func() {
		errCh <- sy.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
