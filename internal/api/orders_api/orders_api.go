package orders_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/OrderBox/internal/integrations"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/services/fulfillment"
	"github.com/BearBump/OrderBox/internal/services/orders"
	"github.com/BearBump/OrderBox/internal/services/webhooks"
	"github.com/BearBump/OrderBox/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const (
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"

	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderHmac       = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"

	maxBodyBytes = 2 << 20
)

type Companies interface {
	GetCompany(ctx context.Context, id uint64) (*models.Company, error)
}

type Webhooks interface {
	Handle(ctx context.Context, ev webhooks.Event) (webhooks.Result, error)
}

type Orders interface {
	ListOrders(ctx context.Context, companyID uint64, status string, limit, offset int) ([]*models.Order, error)
	GetOrder(ctx context.Context, companyID, orderID uint64) (*orders.OrderDetail, error)
	GetLabel(ctx context.Context, companyID, orderID, labelID uint64) (*models.OrderLabel, error)
	SetProductQuantity(ctx context.Context, companyID, orderID, productID uint64, quantity int) error
	ListShopifyOrders(ctx context.Context, company *models.Company, fulfillment string) ([]orders.ShopifyOrder, error)
	GetShopifyOrder(ctx context.Context, company *models.Company, shopifyID int64) (*orders.ShopifyOrder, error)

	ListTemplates(ctx context.Context, companyID uint64) ([]*models.PackageTemplate, error)
	GetTemplate(ctx context.Context, companyID, id uint64) (*models.PackageTemplate, error)
	CreateTemplate(ctx context.Context, companyID uint64, t models.PackageTemplate) (*models.PackageTemplate, error)
	UpdateTemplate(ctx context.Context, companyID, id uint64, t models.PackageTemplate) (*models.PackageTemplate, error)
	DeleteTemplate(ctx context.Context, companyID, id uint64) error
}

type Fulfillment interface {
	Prefill(ctx context.Context, company *models.Company, carrierCode string, shopifyOrderID int64) (*fulfillment.Prefilled, error)
	CreateShipment(ctx context.Context, company *models.Company, in fulfillment.ShipmentInput) (*fulfillment.Outcome, error)
}

type OrdersAPI struct {
	companies   Companies
	webhooks    Webhooks
	orders      Orders
	fulfillment Fulfillment
}

func New(companies Companies, wh Webhooks, ord Orders, ful Fulfillment) *OrdersAPI {
	return &OrdersAPI{companies: companies, webhooks: wh, orders: ord, fulfillment: ful}
}

// Routes returns the public webhook endpoint and the tenant-scoped staff API.
func (a *OrdersAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/shopify/callback", a.shopifyCallback)

	r.Group(func(r chi.Router) {
		r.Use(a.tenant)

		r.Get("/orders", a.listOrders)
		r.Get("/orders/{id}", a.getOrder)
		r.Get("/orders/{id}/labels/{labelID}", a.getLabel)
		r.Put("/orders/{id}/products", a.setProductQuantity)

		r.Get("/shopify/orders", a.listShopifyOrders)
		r.Get("/shopify/orders/{id}", a.getShopifyOrder)

		r.Get("/fulfillment/{carrier}/form", a.fulfillmentForm)
		r.Post("/fulfillment/{carrier}", a.createShipment)

		r.Get("/package-templates", a.listTemplates)
		r.Post("/package-templates", a.createTemplate)
		r.Get("/package-templates/{id}", a.getTemplate)
		r.Put("/package-templates/{id}", a.updateTemplate)
		r.Delete("/package-templates/{id}", a.deleteTemplate)
	})
	return r
}

type ctxKey int

const (
	companyKey ctxKey = iota
	userKey
)

// tenant resolves the company and user set by the auth proxy.
func (a *OrdersAPI) tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderCompanyID)
		if raw == "" {
			writeMessage(w, http.StatusUnauthorized, "missing "+HeaderCompanyID)
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			writeMessage(w, http.StatusBadRequest, "invalid "+HeaderCompanyID)
			return
		}
		company, err := a.companies.GetCompany(r.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			writeMessage(w, http.StatusForbidden, "unknown company")
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), companyKey, company)
		if rawUser := r.Header.Get(HeaderUserID); rawUser != "" {
			uid, err := strconv.ParseUint(rawUser, 10, 64)
			if err != nil {
				writeMessage(w, http.StatusBadRequest, "invalid "+HeaderUserID)
				return
			}
			ctx = context.WithValue(ctx, userKey, uid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func companyFrom(ctx context.Context) *models.Company {
	c, _ := ctx.Value(companyKey).(*models.Company)
	return c
}

func userFrom(ctx context.Context) *uint64 {
	uid, ok := ctx.Value(userKey).(uint64)
	if !ok {
		return nil
	}
	return &uid
}

func pathID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type validationBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr    *validation.Error
		carrErr *fulfillment.CarrierError
		httpErr *integrations.HTTPError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationBody{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, models.ErrNotFound), errors.Is(err, fulfillment.ErrUnknownCarrier):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrAlreadyFulfilled):
		writeMessage(w, http.StatusConflict, "Order already fulfilled")
	case errors.Is(err, models.ErrDuplicate):
		writeMessage(w, http.StatusConflict, "already exists")
	case errors.Is(err, orders.ErrNoShopify):
		writeMessage(w, http.StatusBadRequest, "No Shopify API key for company")
	case errors.As(err, &carrErr), errors.As(err, &httpErr):
		writeMessage(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("request failed", "error", err.Error())
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}
