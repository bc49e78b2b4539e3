package models

import (
	"encoding/json"
	"time"
)

const (
	OrderStatusUnfulfilled = "unfulfilled"
	OrderStatusFulfilled   = "fulfilled"
	OrderStatusCancelled   = "cancelled"
)

const (
	CarrierDHL            = "dhl"
	CarrierExpressFreight = "express_freight"
)

// Order mirrors one sales order of a company. ShopifyID is nil for
// manually entered shipments; (CompanyID, ShopifyID) is unique otherwise.
type Order struct {
	ID          uint64          `json:"id"`
	CompanyID   uint64          `json:"company_id"`
	ShopifyID   *int64          `json:"shopify_id,omitempty"`
	ShippingID  string          `json:"shipping_id"`
	TrackingURL string          `json:"tracking_url"`
	Carrier     string          `json:"carrier"`
	Status      string          `json:"status"`
	ExtraData   json.RawMessage `json:"extra_data,omitempty"`
	UserID      *uint64         `json:"user_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderLabel is a carrier document attached to an order. Content is left
// empty by listing queries.
type OrderLabel struct {
	ID        uint64    `json:"id"`
	OrderID   uint64    `json:"order_id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Content   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductOrder records how many units of a production batch went into an order.
type ProductOrder struct {
	ID        uint64 `json:"id"`
	OrderID   uint64 `json:"order_id"`
	ProductID uint64 `json:"product_id"`
	BatchCode string `json:"batch_code"`
	Quantity  int    `json:"quantity"`
}

type Product struct {
	ID        uint64    `json:"id"`
	CompanyID uint64    `json:"company_id"`
	BatchCode string    `json:"batch_code"`
	CreatedAt time.Time `json:"created_at"`
}

func IsKnownCarrier(code string) bool {
	return code == CarrierDHL || code == CarrierExpressFreight
}
