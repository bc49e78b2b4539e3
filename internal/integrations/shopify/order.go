package shopify

import (
	"encoding/json"
	"strings"
	"time"
)

const FulfillmentStatusFulfilled = "fulfilled"

type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Zip         string `json:"zip"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

// FullName prefers the combined name and falls back to first + last.
func (a *Address) FullName() string {
	if a.Name != "" {
		return a.Name
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

type Customer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type LineItem struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type Order struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	CreatedAt         string     `json:"created_at"`
	FulfillmentStatus *string    `json:"fulfillment_status"`
	Customer          *Customer  `json:"customer"`
	ShippingAddress   *Address   `json:"shipping_address"`
	BillingAddress    *Address   `json:"billing_address"`
	LineItems         []LineItem `json:"line_items"`
	TotalPrice        string     `json:"total_price"`

	Raw json.RawMessage `json:"-"`
}

func (o *Order) IsFulfilled() bool {
	return o.FulfillmentStatus != nil && *o.FulfillmentStatus == FulfillmentStatusFulfilled
}

// CreatedTime parses created_at; ok is false when absent or malformed.
func (o *Order) CreatedTime() (time.Time, bool) {
	if o.CreatedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, o.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// CustomerEmail is the customer object's address. The order-level email of a
// guest checkout is not a customer.
func (o *Order) CustomerEmail() string {
	if o.Customer == nil {
		return ""
	}
	return o.Customer.Email
}
