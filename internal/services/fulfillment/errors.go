package fulfillment

import (
	"fmt"

	"github.com/BearBump/OrderBox/internal/validation"
	"github.com/pkg/errors"
)

var ErrUnknownCarrier = errors.New("unknown carrier")

// ValidationError lists form fields that failed; nothing was sent to a carrier.
type ValidationError = validation.Error

// CarrierError means the carrier refused or could not be reached. No order was stored.
type CarrierError struct {
	Carrier string
	Err     error
}

func (e *CarrierError) Error() string {
	return fmt.Sprintf("error creating %s shipment: %v", CarrierName(e.Carrier), e.Err)
}

func (e *CarrierError) Unwrap() error { return e.Err }

// FulfillmentCallbackError means the shipment and order exist but Shopify was
// not told; the order stays unfulfilled.
type FulfillmentCallbackError struct {
	ShopifyOrderID int64
	Err            error
}

func (e *FulfillmentCallbackError) Error() string {
	return fmt.Sprintf("error fulfilling Shopify order %d: %v", e.ShopifyOrderID, e.Err)
}

func (e *FulfillmentCallbackError) Unwrap() error { return e.Err }

// StatusUpdateError means the shipment exists and Shopify marked the order
// fulfilled, but the local status write failed. Enrichment of the order
// catches the status up later.
type StatusUpdateError struct {
	OrderID uint64
	Err     error
}

func (e *StatusUpdateError) Error() string {
	return fmt.Sprintf("error marking order %d fulfilled: %v", e.OrderID, e.Err)
}

func (e *StatusUpdateError) Unwrap() error { return e.Err }
