package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/OrderBox/internal/cache/rediscache"
	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/services/webhooks"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeCompanies struct {
	companies []*models.Company
	err       error
	calls     int
	mu        sync.Mutex
}

func (f *fakeCompanies) ListShopifyCompanies(ctx context.Context) ([]*models.Company, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.companies, f.err
}

func (f *fakeCompanies) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePlatform struct {
	orders map[string][]*shopify.Order
	params []shopify.ListOrdersParams
	mu     sync.Mutex
}

func (f *fakePlatform) ListOrders(ctx context.Context, creds shopify.Credentials, p shopify.ListOrdersParams) ([]*shopify.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	o, ok := f.orders[creds.Domain]
	if !ok {
		return nil, errors.New("shop offline")
	}
	return o, nil
}

type applied struct {
	companyID uint64
	event     string
	shopifyID int64
}

type fakeApplier struct {
	seen   []applied
	known  map[int64]bool
	failOn int64
	mu     sync.Mutex
}

func (f *fakeApplier) Apply(ctx context.Context, company *models.Company, event string, shopifyID int64) (webhooks.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if shopifyID == f.failOn {
		return webhooks.Result{}, errors.New("db down")
	}
	f.seen = append(f.seen, applied{company.ID, event, shopifyID})
	if f.known[shopifyID] {
		return webhooks.Result{Code: webhooks.CodeUpdated}, nil
	}
	return webhooks.Result{Code: webhooks.CodeCreated, OrderID: uint64(shopifyID)}, nil
}

func shop(id uint64, domain string) *models.Company {
	return &models.Company{ID: id, ShopifyDomain: domain, ShopifyAPIKey: "k", ShopifyPassword: "p"}
}

func TestSyncer_RunOnce_AppliesUpdatedOrders(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	companies := &fakeCompanies{companies: []*models.Company{shop(1, "a.myshopify.com"), shop(2, "b.myshopify.com")}}
	platform := &fakePlatform{orders: map[string][]*shopify.Order{
		"a.myshopify.com": {{ID: 11}, {ID: 12}},
		"b.myshopify.com": {{ID: 21}},
	}}
	applier := &fakeApplier{known: map[int64]bool{11: true}}

	s := New(companies, platform, applier, nil, metrics.New()).WithSettings(0, 30*time.Minute, 2, 0)
	s.now = func() time.Time { return now }
	s.RunOnce(context.Background())

	require.Len(t, applier.seen, 3)
	for _, a := range applier.seen {
		require.Equal(t, "updated", a.event)
	}
	require.Len(t, platform.params, 2)
	require.Equal(t, now.Add(-30*time.Minute), platform.params[0].UpdatedAtMin)
	require.Equal(t, maxListPages, platform.params[0].MaxPages)

	st := s.Stats()
	require.Equal(t, int64(2), st.TotalCompanies)
	require.Equal(t, int64(3), st.TotalOrders)
	require.Equal(t, int64(2), st.TotalCreated)
	require.Equal(t, int64(0), st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)
}

func TestSyncer_RunOnce_ErrorsDoNotStopOtherOrders(t *testing.T) {
	companies := &fakeCompanies{companies: []*models.Company{shop(1, "a.myshopify.com"), shop(2, "offline.myshopify.com")}}
	platform := &fakePlatform{orders: map[string][]*shopify.Order{
		"a.myshopify.com": {{ID: 11}, {ID: 12}},
	}}
	applier := &fakeApplier{failOn: 11}

	s := New(companies, platform, applier, nil, nil)
	s.RunOnce(context.Background())

	require.Len(t, applier.seen, 1)
	require.Equal(t, int64(12), applier.seen[0].shopifyID)
	st := s.Stats()
	require.Equal(t, int64(2), st.TotalErrors)
	require.NotEmpty(t, st.LastError)
}

func TestSyncer_RunOnce_ListCompaniesFails(t *testing.T) {
	s := New(&fakeCompanies{err: errors.New("no db")}, &fakePlatform{}, &fakeApplier{}, nil, nil)
	s.RunOnce(context.Background())
	require.Equal(t, "no db", s.Stats().LastError)
}

func TestSyncer_RateLimitSkipsCompany(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := rediscache.NewRateLimiter(mr.Addr())
	t.Cleanup(func() { _ = rl.Close() })

	companies := &fakeCompanies{companies: []*models.Company{shop(1, "a.myshopify.com")}}
	platform := &fakePlatform{orders: map[string][]*shopify.Order{"a.myshopify.com": {{ID: 11}}}}
	applier := &fakeApplier{}

	s := New(companies, platform, applier, rl, nil).WithSettings(0, 0, 0, 1)
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	require.Len(t, platform.params, 1)
	require.Len(t, applier.seen, 1)
}

func TestSyncer_Run_StopsOnContextCancel(t *testing.T) {
	companies := &fakeCompanies{}
	s := New(companies, &fakePlatform{}, &fakeApplier{}, nil, nil).WithSettings(5*time.Millisecond, 0, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, companies.Calls(), 1)
}

func TestSyncer_Trigger(t *testing.T) {
	companies := &fakeCompanies{}
	s := New(companies, &fakePlatform{}, &fakeApplier{}, nil, nil).WithSettings(time.Hour, 0, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Trigger()
	require.Eventually(t, func() bool { return companies.Calls() >= 1 }, time.Second, 5*time.Millisecond)
	require.NotNil(t, s.Stats().LastTriggerAt)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
