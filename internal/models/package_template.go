package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PackageTemplate holds reusable package dimensions in millimetres.
type PackageTemplate struct {
	ID        uint64          `json:"id"`
	CompanyID uint64          `json:"company_id"`
	Name      string          `json:"name" validate:"required,max=255"`
	Width     decimal.Decimal `json:"width" validate:"gte=0,lte=9999.99"`
	Length    decimal.Decimal `json:"length" validate:"gte=0,lte=9999.99"`
	Height    decimal.Decimal `json:"height" validate:"gte=0,lte=9999.99"`
	CreatedAt time.Time       `json:"created_at"`
}
