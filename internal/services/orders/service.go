package orders

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/validation"
	"github.com/pkg/errors"
)

const (
	ShopifyUnfulfilled = "unfulfilled"
	ShopifyShipped     = "shipped"

	maxListLimit = 200
)

var ErrNoShopify = errors.New("company has no Shopify credentials")

type Repository interface {
	ListOrders(ctx context.Context, companyID uint64, status string, limit, offset int) ([]*models.Order, error)
	GetOrder(ctx context.Context, companyID, orderID uint64) (*models.Order, error)
	OrderIDsByShopifyIDs(ctx context.Context, companyID uint64, shopifyIDs []int64) (map[int64]uint64, error)
	ListOrderLabels(ctx context.Context, orderID uint64) ([]*models.OrderLabel, error)
	GetOrderLabel(ctx context.Context, companyID, orderID, labelID uint64) (*models.OrderLabel, error)
	ListProductOrders(ctx context.Context, orderID uint64) ([]*models.ProductOrder, error)
	SetProductOrder(ctx context.Context, companyID, orderID, productID uint64, quantity int) error

	ListPackageTemplates(ctx context.Context, companyID uint64) ([]*models.PackageTemplate, error)
	GetPackageTemplate(ctx context.Context, companyID, id uint64) (*models.PackageTemplate, error)
	CreatePackageTemplate(ctx context.Context, t *models.PackageTemplate) (*models.PackageTemplate, error)
	UpdatePackageTemplate(ctx context.Context, t *models.PackageTemplate) (*models.PackageTemplate, error)
	DeletePackageTemplate(ctx context.Context, companyID, id uint64) error
}

type Platform interface {
	GetOrder(ctx context.Context, creds shopify.Credentials, id int64) (*shopify.Order, error)
	ListOrders(ctx context.Context, creds shopify.Credentials, p shopify.ListOrdersParams) ([]*shopify.Order, error)
}

type OrderDetail struct {
	Order    *models.Order          `json:"order"`
	Products []*models.ProductOrder `json:"products"`
	Labels   []*models.OrderLabel   `json:"labels"`
}

// ShopifyOrder is a platform order with the id of its local mirror, if any.
type ShopifyOrder struct {
	Order        json.RawMessage `json:"order"`
	LocalOrderID *uint64         `json:"local_order_id,omitempty"`
	createdAt    time.Time
}

type Service struct {
	repo     Repository
	platform Platform
	validate *validation.Validator
}

func New(repo Repository, platform Platform) *Service {
	return &Service{repo: repo, platform: platform, validate: validation.New()}
}

func (s *Service) ListOrders(ctx context.Context, companyID uint64, status string, limit, offset int) ([]*models.Order, error) {
	switch status {
	case "", models.OrderStatusUnfulfilled, models.OrderStatusFulfilled, models.OrderStatusCancelled:
	default:
		verr := &validation.Error{}
		verr.Add("status", "Must be one of: unfulfilled fulfilled cancelled")
		return nil, verr
	}
	if limit <= 0 || limit > maxListLimit {
		limit = 50
	}
	return s.repo.ListOrders(ctx, companyID, status, limit, offset)
}

func (s *Service) GetOrder(ctx context.Context, companyID, orderID uint64) (*OrderDetail, error) {
	o, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProductOrders(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	labels, err := s.repo.ListOrderLabels(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: o, Products: products, Labels: labels}, nil
}

func (s *Service) GetLabel(ctx context.Context, companyID, orderID, labelID uint64) (*models.OrderLabel, error) {
	return s.repo.GetOrderLabel(ctx, companyID, orderID, labelID)
}

// SetProductQuantity records how many units of a batch were packed into an
// order. Zero removes the batch from the order.
func (s *Service) SetProductQuantity(ctx context.Context, companyID, orderID, productID uint64, quantity int) error {
	verr := &validation.Error{}
	if productID == 0 {
		verr.Add("product_id", "This field is required")
	}
	if quantity < 0 {
		verr.Add("quantity", "Must be greater than or equal to 0")
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	if _, err := s.repo.GetOrder(ctx, companyID, orderID); err != nil {
		return err
	}
	return s.repo.SetProductOrder(ctx, companyID, orderID, productID, quantity)
}

// ListShopifyOrders returns platform orders by fulfillment state, newest
// first, each annotated with the local order id.
func (s *Service) ListShopifyOrders(ctx context.Context, company *models.Company, fulfillment string) ([]ShopifyOrder, error) {
	if fulfillment == "" {
		fulfillment = ShopifyUnfulfilled
	}
	if fulfillment != ShopifyUnfulfilled && fulfillment != ShopifyShipped {
		verr := &validation.Error{}
		verr.Add("fulfillment", "Must be one of: unfulfilled shipped")
		return nil, verr
	}
	if !company.HasShopify() {
		return nil, ErrNoShopify
	}

	remote, err := s.platform.ListOrders(ctx, shopify.CredentialsFor(company), shopify.ListOrdersParams{FulfillmentStatus: fulfillment})
	if err != nil {
		return nil, errors.Wrap(err, "list shopify orders")
	}

	ids := make([]int64, 0, len(remote))
	for _, o := range remote {
		ids = append(ids, o.ID)
	}
	local, err := s.repo.OrderIDsByShopifyIDs(ctx, company.ID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ShopifyOrder, 0, len(remote))
	for _, o := range remote {
		so := ShopifyOrder{Order: o.Raw}
		// unparseable timestamps sort last
		so.createdAt, _ = o.CreatedTime()
		if id, ok := local[o.ID]; ok {
			so.LocalOrderID = &id
		}
		out = append(out, so)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].createdAt.After(out[j].createdAt)
	})
	return out, nil
}

func (s *Service) GetShopifyOrder(ctx context.Context, company *models.Company, shopifyID int64) (*ShopifyOrder, error) {
	if !company.HasShopify() {
		return nil, ErrNoShopify
	}
	o, err := s.platform.GetOrder(ctx, shopify.CredentialsFor(company), shopifyID)
	if err != nil {
		return nil, errors.Wrap(err, "get shopify order")
	}
	out := &ShopifyOrder{Order: o.Raw}
	local, err := s.repo.OrderIDsByShopifyIDs(ctx, company.ID, []int64{shopifyID})
	if err != nil {
		return nil, err
	}
	if id, ok := local[shopifyID]; ok {
		out.LocalOrderID = &id
	}
	return out, nil
}
