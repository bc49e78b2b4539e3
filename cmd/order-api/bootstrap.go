package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/OrderBox/config"
	ordersapi "github.com/BearBump/OrderBox/internal/api/orders_api"
	"github.com/BearBump/OrderBox/internal/broker/kafka"
	"github.com/BearBump/OrderBox/internal/cache"
	"github.com/BearBump/OrderBox/internal/cache/rediscache"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/integrations/carrier/dhl"
	"github.com/BearBump/OrderBox/internal/integrations/carrier/expressfreight"
	"github.com/BearBump/OrderBox/internal/integrations/carrier/fake"
	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/services/enrichment"
	"github.com/BearBump/OrderBox/internal/services/fulfillment"
	"github.com/BearBump/OrderBox/internal/services/orders"
	"github.com/BearBump/OrderBox/internal/services/webhooks"
	"github.com/BearBump/OrderBox/internal/storage/pgorders"
)

const carrierModeFake = "fake"

type orderAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     orderAPIOpts
	api      *ordersapi.OrdersAPI
	metrics  *metrics.Metrics
	producer *kafka.Producer
	redis    *rediscache.RedisCache
	closeDB  func()
}

func mustBootstrapOrderAPI() *orderAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.OrderBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.EnrichTopicName
	if topic == "" {
		topic = "orders.enrich"
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	rc := rediscache.New(cfg.Redis.Addr())
	producer := kafka.NewProducer(cfg.Kafka.Brokers())
	m := metrics.New()

	shop := shopify.New(cfg.Shopify.BaseURL, cfg.Shopify.APIVersion)
	wh := webhooks.New(st, enrichment.NewScheduler(producer, topic), m)
	ord := orders.New(st, shop)
	ful := fulfillment.New(st, shop, newCarriers(cfg, rc), m)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &orderAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: orderAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		api:      ordersapi.New(st, wh, ord, ful),
		metrics:  m,
		producer: producer,
		redis:    rc,
		closeDB:  st.Close,
	}
}

// newCarriers builds one client per carrier code. Tokens are cached in tokens.
func newCarriers(cfg *config.Config, tokens cache.BytesCache) map[string]carrier.Client {
	if cfg.OrderBox.CarrierMode == carrierModeFake {
		slog.Warn("carrier mode fake, no labels will be bought")
		return map[string]carrier.Client{
			models.CarrierDHL:            fake.New("JD"),
			models.CarrierExpressFreight: fake.New("EF"),
		}
	}
	ttl := time.Duration(cfg.ExpressFreight.TokenTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return map[string]carrier.Client{
		models.CarrierDHL:            dhl.New(cfg.DHL.BaseURL),
		models.CarrierExpressFreight: expressfreight.New(cfg.ExpressFreight.BaseURL, tokens, ttl),
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *orderAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *orderAPIApp) Run() error {
	return runOrderAPI(a.ctx, a.opts, a.api, a.metrics)
}
