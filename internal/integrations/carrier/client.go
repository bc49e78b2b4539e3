package carrier

import (
	"context"
	"time"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/shopspring/decimal"
)

// Address is a receiver address already cleaned for the target carrier.
type Address struct {
	Name        string
	CompanyName string
	Line1       string
	Line2       string
	City        string
	County      string
	Region      string
	Postcode    string
	CountryCode string
	Phone       string
	Email       string
}

// Package dimensions are in centimetres, weight in kilograms.
type Package struct {
	Length      decimal.Decimal
	Width       decimal.Decimal
	Height      decimal.Decimal
	Weight      decimal.Decimal
	Description string
}

type ShipmentRequest struct {
	Reference    string
	ServiceCode  string
	Description  string
	DispatchDate time.Time
	Receiver     Address
	Packages     []Package
}

type Label struct {
	Name    string
	Content []byte
}

type ShipmentResult struct {
	TrackingNumber string
	TrackingURL    string
	Labels         []Label
}

// Client creates shipments with one carrier, authenticating with the company's credentials.
type Client interface {
	CreateShipment(ctx context.Context, company *models.Company, req ShipmentRequest) (ShipmentResult, error)
}
