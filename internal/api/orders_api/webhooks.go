package orders_api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/BearBump/OrderBox/internal/services/webhooks"
)

// shopifyCallback answers with the outcome code as the HTTP status so that
// Shopify's delivery log shows what happened.
func (a *OrdersAPI) shopifyCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := a.webhooks.Handle(r.Context(), webhooks.Event{
		ShopDomain: r.Header.Get(HeaderShopDomain),
		Signature:  r.Header.Get(HeaderHmac),
		Topic:      r.Header.Get(HeaderTopic),
		Body:       body,
	})
	if err != nil {
		slog.Error("shopify callback", "topic", r.Header.Get(HeaderTopic), "error", err.Error())
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, res.Code, map[string]string{"message": res.Message})
}
