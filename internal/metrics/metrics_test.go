package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	b, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(b)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.WebhookEvent("created")
	m.WebhookEvent("created")
	m.WebhookEvent("duplicate")
	m.CarrierShipment("dhl", nil)
	m.CarrierShipment("express_freight", errors.New("boom"))
	m.EnrichScheduled(nil)
	m.EnrichJob("updated")
	m.FulfillCallback(errors.New("boom"))
	m.SyncedOrder(nil)

	body := scrape(t, m)
	require.Contains(t, body, `orderbox_webhook_events_total{outcome="created"} 2`)
	require.Contains(t, body, `orderbox_webhook_events_total{outcome="duplicate"} 1`)
	require.Contains(t, body, `orderbox_carrier_shipments_total{carrier="dhl",result="ok"} 1`)
	require.Contains(t, body, `orderbox_carrier_shipments_total{carrier="express_freight",result="error"} 1`)
	require.Contains(t, body, `orderbox_enrich_scheduled_total{result="ok"} 1`)
	require.Contains(t, body, `orderbox_enrich_jobs_total{result="updated"} 1`)
	require.Contains(t, body, `orderbox_fulfillment_callbacks_total{result="error"} 1`)
	require.Contains(t, body, `orderbox_synced_orders_total{result="ok"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.WebhookEvent("created")
		m.EnrichJob("ok")
		m.CarrierShipment("dhl", nil)
	})
	require.NotNil(t, m.Handler())
}
