package orders_api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BearBump/OrderBox/internal/services/fulfillment"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func shopifyOrderParam(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("shopify_order")
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func (a *OrdersAPI) fulfillmentForm(w http.ResponseWriter, r *http.Request) {
	shopifyID, ok := shopifyOrderParam(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid shopify_order")
		return
	}
	out, err := a.fulfillment.Prefill(r.Context(), companyFrom(r.Context()), chi.URLParam(r, "carrier"), shopifyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type shipmentRequest struct {
	Form     json.RawMessage          `json:"form"`
	Packages []fulfillment.PackageRow `json:"packages"`
}

type shipmentResponse struct {
	*fulfillment.Outcome
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (a *OrdersAPI) createShipment(w http.ResponseWriter, r *http.Request) {
	carrierCode := chi.URLParam(r, "carrier")
	shopifyID, ok := shopifyOrderParam(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid shopify_order")
		return
	}
	var req shipmentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	form, err := fulfillment.DecodeForm(carrierCode, req.Form)
	if err != nil {
		if errors.Is(err, fulfillment.ErrUnknownCarrier) {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusBadRequest, "invalid form")
		return
	}

	out, err := a.fulfillment.CreateShipment(r.Context(), companyFrom(r.Context()), fulfillment.ShipmentInput{
		Form:           form,
		Packages:       req.Packages,
		UserID:         userFrom(r.Context()),
		ShopifyOrderID: shopifyID,
	})
	var (
		cbErr     *fulfillment.FulfillmentCallbackError
		statusErr *fulfillment.StatusUpdateError
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, shipmentResponse{Outcome: out, Message: "Order created"})
	case (errors.As(err, &cbErr) || errors.As(err, &statusErr)) && out != nil:
		writeJSON(w, http.StatusMultiStatus, shipmentResponse{Outcome: out, Message: "Order created", Error: err.Error()})
	default:
		writeError(w, err)
	}
}
