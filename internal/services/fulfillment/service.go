package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/storage/pgorders"
	"github.com/BearBump/OrderBox/internal/validation"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var mmPerCM = decimal.NewFromInt(10)

type Repository interface {
	GetPackageTemplate(ctx context.Context, companyID, id uint64) (*models.PackageTemplate, error)
	UpsertShipment(ctx context.Context, rec pgorders.ShipmentRecord) (*models.Order, error)
	SetOrderStatus(ctx context.Context, orderID uint64, status string) error
}

type Platform interface {
	GetOrder(ctx context.Context, creds shopify.Credentials, id int64) (*shopify.Order, error)
	FulfillOrder(ctx context.Context, creds shopify.Credentials, orderID int64, f shopify.Fulfillment) error
}

// PackageRow is one physical package. Dimensions are centimetres, weight
// kilograms; a template fills dimensions left empty.
type PackageRow struct {
	PackageTemplateID *uint64             `json:"package_template_id,omitempty"`
	Length            decimal.NullDecimal `json:"length" validate:"required,gte=0"`
	Width             decimal.NullDecimal `json:"width" validate:"required,gte=0"`
	Height            decimal.NullDecimal `json:"height" validate:"required,gte=0"`
	Weight            decimal.NullDecimal `json:"weight" validate:"required,gte=0"`
}

type ShipmentInput struct {
	Form     Form
	Packages []PackageRow
	UserID   *uint64

	// ShopifyOrderID is used when the form names no platform order.
	ShopifyOrderID int64
}

type Outcome struct {
	Order          *models.Order `json:"order"`
	TrackingNumber string        `json:"tracking_number"`
	TrackingURL    string        `json:"tracking_url"`
	Labels         int           `json:"labels"`
	Fulfilled      bool          `json:"fulfilled"`
}

// Prefilled is a form populated from a pending platform order.
type Prefilled struct {
	Carrier string         `json:"carrier"`
	Form    Form           `json:"form"`
	Order   *shopify.Order `json:"-"`
}

type Service struct {
	repo     Repository
	platform Platform
	carriers map[string]carrier.Client
	validate *validation.Validator
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(repo Repository, platform Platform, carriers map[string]carrier.Client, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		platform: platform,
		carriers: carriers,
		validate: validation.New(),
		metrics:  m,
		now:      time.Now,
	}
}

// Prefill loads the platform order and maps its shipping address onto the
// carrier form. A zero shopifyOrderID returns an empty form.
func (s *Service) Prefill(ctx context.Context, company *models.Company, carrierCode string, shopifyOrderID int64) (*Prefilled, error) {
	f, err := NewForm(carrierCode)
	if err != nil {
		return nil, err
	}
	var order *shopify.Order
	if shopifyOrderID != 0 {
		order, err = s.pendingOrder(ctx, company, shopifyOrderID)
		if err != nil {
			return nil, err
		}
	}
	prefillForm(f, order, s.now())
	return &Prefilled{Carrier: carrierCode, Form: f, Order: order}, nil
}

func (s *Service) pendingOrder(ctx context.Context, company *models.Company, shopifyOrderID int64) (*shopify.Order, error) {
	if !company.HasShopify() {
		verr := &validation.Error{}
		verr.Add("shopify_order", "No Shopify API key for company")
		return nil, verr
	}
	o, err := s.platform.GetOrder(ctx, shopify.CredentialsFor(company), shopifyOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "getting data from shopify")
	}
	if o.IsFulfilled() {
		return nil, errors.Wrapf(models.ErrAlreadyFulfilled, "shopify order %d", shopifyOrderID)
	}
	return o, nil
}

// CreateShipment validates the form, asks the carrier for a shipment and
// records it. The order is written only after the carrier accepted. A failed
// Shopify callback returns the outcome together with *FulfillmentCallbackError,
// a failed local status write with *StatusUpdateError.
func (s *Service) CreateShipment(ctx context.Context, company *models.Company, in ShipmentInput) (*Outcome, error) {
	if in.Form == nil {
		return nil, errors.Wrap(ErrUnknownCarrier, "no form")
	}
	carrierCode := in.Form.Carrier()
	client, ok := s.carriers[carrierCode]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCarrier, "%q not configured", carrierCode)
	}

	req, shopifyID, err := s.buildRequest(ctx, company, in)
	if err != nil {
		return nil, err
	}

	if shopifyID != 0 {
		if _, err := s.pendingOrder(ctx, company, shopifyID); err != nil {
			return nil, err
		}
	}
	if req.Description == "" {
		req.Description = "Order from " + company.Name
	}

	res, err := client.CreateShipment(ctx, company, req)
	s.metrics.CarrierShipment(carrierCode, err)
	if err != nil {
		slog.Error("carrier shipment failed", "carrier", carrierCode, "company_id", company.ID, "error", err.Error())
		return nil, &CarrierError{Carrier: carrierCode, Err: err}
	}

	rec := pgorders.ShipmentRecord{
		CompanyID:   company.ID,
		UserID:      in.UserID,
		Carrier:     carrierCode,
		ShippingID:  res.TrackingNumber,
		TrackingURL: res.TrackingURL,
	}
	if shopifyID != 0 {
		rec.ShopifyID = &shopifyID
	}
	for _, l := range res.Labels {
		rec.Labels = append(rec.Labels, models.OrderLabel{Name: l.Name, Content: l.Content})
	}
	order, err := s.repo.UpsertShipment(ctx, rec)
	if err != nil {
		// the carrier shipment exists; keep its number in the log for manual recovery
		slog.Error("store shipment", "carrier", carrierCode, "tracking_number", res.TrackingNumber, "error", err.Error())
		return nil, errors.Wrap(err, "store shipment")
	}
	slog.Info("order created", "order_id", order.ID, "carrier", carrierCode, "tracking_number", res.TrackingNumber)

	out := &Outcome{
		Order:          order,
		TrackingNumber: res.TrackingNumber,
		TrackingURL:    res.TrackingURL,
		Labels:         len(res.Labels),
	}
	if shopifyID == 0 {
		return out, nil
	}

	err = s.platform.FulfillOrder(ctx, shopify.CredentialsFor(company), shopifyID, shopify.Fulfillment{
		LocationID:     company.ShopifyLocationID,
		TrackingNumber: res.TrackingNumber,
		TrackingURL:    res.TrackingURL,
		NotifyCustomer: true,
	})
	s.metrics.FulfillCallback(err)
	if err != nil {
		slog.Error("fulfill shopify order", "order_id", order.ID, "shopify_id", shopifyID, "error", err.Error())
		return out, &FulfillmentCallbackError{ShopifyOrderID: shopifyID, Err: err}
	}

	out.Fulfilled = true
	if err := s.repo.SetOrderStatus(ctx, order.ID, models.OrderStatusFulfilled); err != nil {
		slog.Error("mark order fulfilled", "order_id", order.ID, "shopify_id", shopifyID, "error", err.Error())
		return out, &StatusUpdateError{OrderID: order.ID, Err: err}
	}
	order.Status = models.OrderStatusFulfilled
	return out, nil
}

// buildRequest cleans and validates the form and package rows.
func (s *Service) buildRequest(ctx context.Context, company *models.Company, in ShipmentInput) (carrier.ShipmentRequest, int64, error) {
	verr := &validation.Error{}
	f := in.Form
	f.prepare()
	if err := s.validate.Struct(f, "", verr); err != nil {
		return carrier.ShipmentRequest{}, 0, errors.Wrap(err, "validate form")
	}
	f.check(verr)

	addr := f.address()
	if addr.ShopifyOrder == "" {
		addr.ShopifyOrder = formatID(in.ShopifyOrderID)
	}
	dispatch, ok := parseDispatch(addr.DispatchDate, s.now())
	if !ok {
		verr.Add("dispatch_date", "Enter a valid date")
	}

	var shopifyID int64
	if addr.ShopifyOrder != "" {
		id, err := strconv.ParseInt(addr.ShopifyOrder, 10, 64)
		switch {
		case err != nil || id <= 0:
			verr.Add("shopify_order", "Invalid Shopify order id")
		case !company.HasShopify():
			verr.Add("shopify_order", "No Shopify API key for company")
		default:
			shopifyID = id
		}
	}

	if len(in.Packages) == 0 {
		verr.Add("packages", "Add at least one package")
	}
	packages := make([]carrier.Package, 0, len(in.Packages))
	for i, row := range in.Packages {
		prefix := fmt.Sprintf("packages[%d].", i)
		if err := s.applyTemplate(ctx, company.ID, &row); err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				return carrier.ShipmentRequest{}, 0, err
			}
			verr.Add(prefix+"package_template_id", "Unknown package template")
			continue
		}
		if err := s.validate.Struct(row, prefix, verr); err != nil {
			return carrier.ShipmentRequest{}, 0, errors.Wrap(err, "validate package")
		}
		packages = append(packages, carrier.Package{
			Length: row.Length.Decimal,
			Width:  row.Width.Decimal,
			Height: row.Height.Decimal,
			Weight: row.Weight.Decimal,
		})
	}

	if err := verr.OrNil(); err != nil {
		return carrier.ShipmentRequest{}, 0, err
	}

	req := f.request(dispatch)
	req.Packages = packages
	if shopifyID != 0 {
		req.Description = "Shopify order " + addr.ShopifyOrder
	}
	return req, shopifyID, nil
}

// applyTemplate fills empty dimensions from a package template (mm to cm).
func (s *Service) applyTemplate(ctx context.Context, companyID uint64, row *PackageRow) error {
	if row.PackageTemplateID == nil {
		return nil
	}
	t, err := s.repo.GetPackageTemplate(ctx, companyID, *row.PackageTemplateID)
	if err != nil {
		return err
	}
	fill := func(d *decimal.NullDecimal, mm decimal.Decimal) {
		if !d.Valid {
			*d = decimal.NewNullDecimal(mm.Div(mmPerCM).Round(1))
		}
	}
	fill(&row.Length, t.Length)
	fill(&row.Width, t.Width)
	fill(&row.Height, t.Height)
	return nil
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// CarrierName is the display name used in messages.
func CarrierName(code string) string {
	switch code {
	case models.CarrierDHL:
		return "DHL"
	case models.CarrierExpressFreight:
		return "ExpressFreight"
	}
	return strings.ToUpper(code)
}
