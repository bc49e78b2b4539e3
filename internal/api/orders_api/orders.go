package orders_api

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/go-chi/chi/v5"
)

func (a *OrdersAPI) listOrders(w http.ResponseWriter, r *http.Request) {
	c := companyFrom(r.Context())
	q := r.URL.Query()
	out, err := a.orders.ListOrders(r.Context(), c.ID, q.Get("status"), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	out, err := a.orders.GetOrder(r.Context(), companyFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) getLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	labelID, ok2 := pathID(r, "labelID")
	if !ok || !ok2 {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	l, err := a.orders.GetLabel(r.Context(), companyFrom(r.Context()).ID, id, labelID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": l.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(l.Content)))
	_, _ = w.Write(l.Content)
}

type productQuantityRequest struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (a *OrdersAPI) setProductQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	var req productQuantityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c := companyFrom(r.Context())
	if err := a.orders.SetProductQuantity(r.Context(), c.ID, id, req.ProductID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	out, err := a.orders.GetOrder(r.Context(), c.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) listShopifyOrders(w http.ResponseWriter, r *http.Request) {
	out, err := a.orders.ListShopifyOrders(r.Context(), companyFrom(r.Context()), r.URL.Query().Get("fulfillment"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (a *OrdersAPI) getShopifyOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	out, err := a.orders.GetShopifyOrder(r.Context(), companyFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
