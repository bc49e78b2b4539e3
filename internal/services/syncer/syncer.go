// Package syncer periodically re-reads recently updated Shopify orders and
// feeds them through the webhook path, so lost deliveries and lost
// enrichment jobs are repaired.
package syncer

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/services/webhooks"
	"github.com/pkg/errors"
)

type Companies interface {
	ListShopifyCompanies(ctx context.Context) ([]*models.Company, error)
}

type Platform interface {
	ListOrders(ctx context.Context, creds shopify.Credentials, p shopify.ListOrdersParams) ([]*shopify.Order, error)
}

type Applier interface {
	Apply(ctx context.Context, company *models.Company, event string, shopifyID int64) (webhooks.Result, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// maxListPages bounds one company's backfill to 40 pages of 250 orders.
const maxListPages = 40

type Syncer struct {
	companies Companies
	platform  Platform
	applier   Applier
	rl        RateLimiter
	metrics   *metrics.Metrics

	interval           time.Duration
	lookback           time.Duration
	concurrency        int
	rateLimitPerMinute int64

	now       func() time.Time
	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCompanies      atomic.Int64
	totalOrders         atomic.Int64
	totalCreated        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(companies Companies, platform Platform, applier Applier, rl RateLimiter, m *metrics.Metrics) *Syncer {
	return &Syncer{
		companies:          companies,
		platform:           platform,
		applier:            applier,
		rl:                 rl,
		metrics:            m,
		interval:           5 * time.Minute,
		lookback:           time.Hour,
		concurrency:        4,
		rateLimitPerMinute: 40,
		now:                func() time.Time { return time.Now().UTC() },
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (s *Syncer) WithSettings(interval, lookback time.Duration, concurrency int, rlPerMin int64) *Syncer {
	if interval > 0 {
		s.interval = interval
	}
	if lookback > 0 {
		s.lookback = lookback
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if rlPerMin > 0 {
		s.rateLimitPerMinute = rlPerMin
	}
	return s
}

// Trigger forces an immediate sync cycle (best-effort, non-blocking).
func (s *Syncer) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCompanies int64      `json:"totalCompanies"`
	TotalOrders    int64      `json:"totalOrders"`
	TotalCreated   int64      `json:"totalCreated"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Syncer) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalCompanies: s.totalCompanies.Load(),
		TotalOrders:    s.totalOrders.Load(),
		TotalCreated:   s.totalCreated.Load(),
		TotalErrors:    s.totalErrors.Load(),
		InFlight:       s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Syncer) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.RunOnce(ctx)
		case <-s.triggerCh:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce syncs every company with Shopify credentials, at most
// concurrency companies at a time.
func (s *Syncer) RunOnce(ctx context.Context) {
	now := s.now()
	s.lastCycleUnixNano.Store(now.UnixNano())

	companies, err := s.companies.ListShopifyCompanies(ctx)
	if err != nil {
		slog.Error("list shopify companies", "error", err.Error())
		s.recordError(err)
		return
	}

	since := now.Add(-s.lookback)
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, c := range companies {
		sem <- struct{}{}
		wg.Add(1)
		s.inFlight.Add(1)
		go func(c *models.Company) {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.syncCompany(ctx, c, since); err != nil {
				s.recordError(err)
				slog.Error("sync company orders", "company_id", c.ID, "error", err.Error())
			}
			s.totalCompanies.Add(1)
		}(c)
	}
	wg.Wait()
}

func (s *Syncer) syncCompany(ctx context.Context, company *models.Company, since time.Time) error {
	if s.rl != nil && s.rateLimitPerMinute > 0 {
		key := "rl:shopify:" + strconv.FormatUint(company.ID, 10)
		allowed, n, err := s.rl.Allow(ctx, key, s.rateLimitPerMinute, time.Minute)
		if err != nil {
			return errors.Wrap(err, "rate limit")
		}
		if !allowed {
			slog.Warn("shopify rate limit exceeded, skipping company this cycle", "company_id", company.ID, "count", n)
			return nil
		}
	}

	orders, err := s.platform.ListOrders(ctx, shopify.CredentialsFor(company), shopify.ListOrdersParams{
		UpdatedAtMin: since,
		MaxPages:     maxListPages,
	})
	if err != nil {
		return errors.Wrap(err, "list shopify orders")
	}

	for _, o := range orders {
		res, err := s.applier.Apply(ctx, company, "updated", o.ID)
		s.metrics.SyncedOrder(err)
		s.totalOrders.Add(1)
		if err != nil {
			s.recordError(err)
			slog.Error("sync order", "company_id", company.ID, "shopify_id", o.ID, "error", err.Error())
			continue
		}
		if res.Code == webhooks.CodeCreated {
			s.totalCreated.Add(1)
			slog.Info("sync created missing order", "company_id", company.ID, "shopify_id", o.ID, "order_id", res.OrderID)
		}
	}
	return nil
}

func (s *Syncer) recordError(err error) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}
