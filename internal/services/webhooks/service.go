package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

// Outcome codes returned to Shopify. They are outside normal HTTP semantics
// so each outcome is distinguishable in the platform's delivery logs.
const (
	CodeUpdated       = 210
	CodeCancelled     = 211
	CodeCreated       = 212
	CodeDuplicate     = 213
	CodeUnknownEvent  = 220
	CodeUnknownTenant = 299
)

var outcomeNames = map[int]string{
	CodeUpdated:           "updated",
	CodeCancelled:         "cancelled",
	CodeCreated:           "created",
	CodeDuplicate:         "duplicate",
	CodeUnknownEvent:      "unknown_event",
	CodeUnknownTenant:     "unknown_tenant",
	http.StatusForbidden:  "invalid_signature",
	http.StatusBadRequest: "bad_payload",
}

type Repository interface {
	GetCompanyByShopDomain(ctx context.Context, domain string) (*models.Company, error)
	CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error)
	FindOrdersByShopifyID(ctx context.Context, companyID uint64, shopifyID int64) ([]*models.Order, error)
	CancelOrders(ctx context.Context, companyID uint64, shopifyID int64) (int64, error)
}

// Scheduler queues deferred enrichment of one order.
type Scheduler interface {
	ScheduleEnrich(ctx context.Context, orderID, companyID uint64) error
}

// Event is one webhook delivery as received.
type Event struct {
	ShopDomain string
	Signature  string
	Topic      string
	Body       []byte
}

type Result struct {
	Code    int
	Message string
	OrderID uint64
}

type Service struct {
	repo      Repository
	scheduler Scheduler
	metrics   *metrics.Metrics
}

func New(repo Repository, scheduler Scheduler, m *metrics.Metrics) *Service {
	return &Service{repo: repo, scheduler: scheduler, metrics: m}
}

// Handle authenticates the delivery and applies it. Rejections are results,
// not errors; an error means the store failed and the delivery should be retried.
func (s *Service) Handle(ctx context.Context, ev Event) (Result, error) {
	res, err := s.handle(ctx, ev)
	if err == nil {
		s.metrics.WebhookEvent(outcomeNames[res.Code])
	}
	return res, err
}

func (s *Service) handle(ctx context.Context, ev Event) (Result, error) {
	company, err := s.repo.GetCompanyByShopDomain(ctx, ev.ShopDomain)
	if errors.Is(err, models.ErrNotFound) {
		return Result{Code: CodeUnknownTenant, Message: "Company with key does not exist"}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if company.ShopifyWebhookKey == "" {
		return Result{Code: CodeUnknownTenant, Message: "Company with key does not exist"}, nil
	}

	if !VerifySignature(company.ShopifyWebhookKey, ev.Body, ev.Signature) {
		slog.Warn("shopify webhook with invalid signature", "company_id", company.ID, "topic", ev.Topic)
		return Result{Code: http.StatusForbidden, Message: "Invalid signature"}, nil
	}

	event, ok := orderEvent(ev.Topic)
	if !ok || !knownEvent(event) {
		return unknownEvent(ev.Topic), nil
	}

	shopifyID, err := payloadOrderID(ev.Body)
	if err != nil {
		return Result{Code: http.StatusBadRequest, Message: err.Error()}, nil
	}

	res, err := s.Apply(ctx, company, event, shopifyID)
	if err != nil {
		return Result{}, err
	}
	slog.Info("shopify event", "company_id", company.ID, "topic", ev.Topic, "code", res.Code, "msg", res.Message)
	return res, nil
}

// Apply runs one order event for an already authenticated tenant. The
// periodic sync feeds platform orders through here as "updated".
func (s *Service) Apply(ctx context.Context, company *models.Company, event string, shopifyID int64) (Result, error) {
	switch event {
	case "create":
		o, err := s.repo.CreateOrder(ctx, &models.Order{
			CompanyID: company.ID,
			ShopifyID: &shopifyID,
			Status:    models.OrderStatusUnfulfilled,
		})
		if errors.Is(err, models.ErrDuplicate) {
			return Result{Code: CodeDuplicate, Message: "Order already exists"}, nil
		}
		if err != nil {
			return Result{}, err
		}
		s.schedule(ctx, o.ID, company.ID)
		return Result{Code: CodeCreated, Message: "Order created", OrderID: o.ID}, nil

	case "updated", "paid", "fulfilled":
		o, created, err := s.getOrCreate(ctx, company.ID, shopifyID)
		if err != nil {
			return Result{}, err
		}
		s.schedule(ctx, o.ID, company.ID)
		if created {
			return Result{Code: CodeCreated, Message: "Order created", OrderID: o.ID}, nil
		}
		return Result{Code: CodeUpdated, Message: "Order already exists", OrderID: o.ID}, nil

	case "cancelled", "delete":
		n, err := s.repo.CancelOrders(ctx, company.ID, shopifyID)
		if err != nil {
			return Result{}, err
		}
		return Result{Code: CodeCancelled, Message: fmt.Sprintf("Order deleted (%d changed)", n)}, nil
	}
	return unknownEvent("orders/" + event), nil
}

// getOrCreate takes the first existing order, or creates one. A concurrent
// create for the same shopify id is resolved by reading the winner.
func (s *Service) getOrCreate(ctx context.Context, companyID uint64, shopifyID int64) (*models.Order, bool, error) {
	found, err := s.repo.FindOrdersByShopifyID(ctx, companyID, shopifyID)
	if err != nil {
		return nil, false, err
	}
	if len(found) > 0 {
		return found[0], false, nil
	}

	o, err := s.repo.CreateOrder(ctx, &models.Order{
		CompanyID: companyID,
		ShopifyID: &shopifyID,
		Status:    models.OrderStatusUnfulfilled,
	})
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, models.ErrDuplicate) {
		return nil, false, err
	}

	found, err = s.repo.FindOrdersByShopifyID(ctx, companyID, shopifyID)
	if err != nil {
		return nil, false, err
	}
	if len(found) == 0 {
		return nil, false, errors.Wrap(models.ErrNotFound, "order vanished after duplicate insert")
	}
	return found[0], false, nil
}

// schedule never fails the delivery: the periodic sync re-enqueues orders
// whose job was lost.
func (s *Service) schedule(ctx context.Context, orderID, companyID uint64) {
	err := s.scheduler.ScheduleEnrich(ctx, orderID, companyID)
	s.metrics.EnrichScheduled(err)
	if err != nil {
		slog.Error("schedule order enrichment", "order_id", orderID, "company_id", companyID, "error", err.Error())
	}
}

func orderEvent(topic string) (string, bool) {
	obj, event, ok := strings.Cut(strings.ToLower(strings.TrimSpace(topic)), "/")
	if !ok || (obj != "orders" && obj != "order") {
		return "", false
	}
	return event, true
}

func knownEvent(event string) bool {
	switch event {
	case "create", "updated", "paid", "fulfilled", "cancelled", "delete":
		return true
	}
	return false
}

func unknownEvent(topic string) Result {
	return Result{Code: CodeUnknownEvent, Message: "Unknown event " + topic}
}

func payloadOrderID(body []byte) (int64, error) {
	var p struct {
		ID *json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return 0, errors.Wrap(err, "invalid order payload")
	}
	if p.ID == nil {
		return 0, errors.New("order payload without id")
	}
	id, err := p.ID.Int64()
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid order id %q", p.ID.String())
	}
	return id, nil
}
