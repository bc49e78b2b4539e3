package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{Domain: "salsa.myshopify.com", APIKey: "key", Password: "pass"}

func TestClient_GetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/admin/api/2024-01/orders/123.json", r.URL.Path)
		require.Contains(t, r.URL.Query().Get("fields"), "fulfillment_status")
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "pass", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order":{"id":123,"name":"#1001","created_at":"2024-03-01T10:00:00+01:00",
"fulfillment_status":"fulfilled","customer":{"id":9,"email":"tom@example.com","first_name":"Tom","last_name":"Jones"},
"shipping_address":{"first_name":"Tom","last_name":"Jones","address1":"1 Main St","city":"Cork","zip":"T12","country_code":"IE"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	o, err := c.GetOrder(context.Background(), testCreds, 123)
	require.NoError(t, err)
	require.Equal(t, int64(123), o.ID)
	require.True(t, o.IsFulfilled())
	require.Equal(t, "tom@example.com", o.CustomerEmail())
	require.Equal(t, "Tom Jones", o.ShippingAddress.FullName())

	ts, ok := o.CreatedTime()
	require.True(t, ok)
	require.True(t, ts.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(o.Raw, &raw))
	require.Equal(t, "#1001", raw["name"])
}

func TestClient_ListOrders(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/admin/api/2024-01/orders.json", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "any", q.Get("status"))
		require.Equal(t, "unfulfilled", q.Get("fulfillment_status"))
		require.Equal(t, "2024-03-01T00:00:00Z", q.Get("updated_at_min"))
		require.Equal(t, "250", q.Get("limit"))
		_, _ = w.Write([]byte(`{"orders":[{"id":1},{"id":2,"fulfillment_status":null}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "2024-01")
	orders, err := c.ListOrders(context.Background(), testCreds, ListOrdersParams{FulfillmentStatus: "unfulfilled", UpdatedAtMin: since})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.False(t, orders[1].IsFulfilled())
}

func TestClient_FulfillOrder(t *testing.T) {
	var got map[string]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/admin/api/2024-01/orders/55/fulfillments.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"fulfillment":{"id":1}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.FulfillOrder(context.Background(), testCreds, 55, Fulfillment{
		LocationID: 5032451, TrackingNumber: "EF_123", TrackingURL: "https://foobar.com/EF_123", NotifyCustomer: true,
	})
	require.NoError(t, err)
	f := got["fulfillment"]
	require.Equal(t, float64(5032451), f["location_id"])
	require.Equal(t, "EF_123", f["tracking_number"])
	require.Equal(t, []any{"https://foobar.com/EF_123"}, f["tracking_urls"])
	require.Equal(t, true, f["notify_customer"])
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":"already fulfilled"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.FulfillOrder(context.Background(), testCreds, 1, Fulfillment{})
	var httpErr *integrations.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
}

func TestClient_RequiresCredentials(t *testing.T) {
	c := New("", "")
	_, err := c.GetOrder(context.Background(), Credentials{Domain: "x.myshopify.com"}, 1)
	require.Error(t, err)

	u, err := c.endpoint(Credentials{Domain: "HTTPS://Shop.myshopify.com/", APIKey: "k", Password: "p"}, "orders.json", nil)
	require.NoError(t, err)
	require.Equal(t, "https://shop.myshopify.com/admin/api/2024-01/orders.json", u)
}

func TestOrder_CustomerEmailIgnoresGuestEmail(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"email":"guest@example.com"}`), &o))
	require.Empty(t, o.CustomerEmail())

	o.Customer = &Customer{Email: "tom@example.com"}
	require.Equal(t, "tom@example.com", o.CustomerEmail())
}

func TestClient_ListOrdersFollowsPageInfo(t *testing.T) {
	var calls int
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		switch q.Get("page_info") {
		case "":
			require.Equal(t, "2024-03-01T00:00:00Z", q.Get("updated_at_min"))
			w.Header().Set("Link", `<`+srv.URL+`/admin/api/2024-01/orders.json?limit=250&page_info=p2>; rel="next"`)
			_, _ = w.Write([]byte(`{"orders":[{"id":1},{"id":2}]}`))
		case "p2":
			// a cursor request must not repeat the filters
			require.Empty(t, q.Get("updated_at_min"))
			require.Empty(t, q.Get("status"))
			require.Equal(t, "250", q.Get("limit"))
			w.Header().Set("Link", `<`+srv.URL+`/admin/api/2024-01/orders.json?page_info=p1>; rel="previous", `+
				`<`+srv.URL+`/admin/api/2024-01/orders.json?page_info=p3>; rel="next"`)
			_, _ = w.Write([]byte(`{"orders":[{"id":3}]}`))
		case "p3":
			w.Header().Set("Link", `<`+srv.URL+`/admin/api/2024-01/orders.json?page_info=p2>; rel="previous"`)
			_, _ = w.Write([]byte(`{"orders":[{"id":4}]}`))
		default:
			t.Fatalf("unexpected page_info %q", q.Get("page_info"))
		}
	}))
	defer srv.Close()

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := New(srv.URL, "2024-01")
	orders, err := c.ListOrders(context.Background(), testCreds, ListOrdersParams{UpdatedAtMin: since, MaxPages: 10})
	require.NoError(t, err)
	require.Len(t, orders, 4)
	require.Equal(t, int64(4), orders[3].ID)
	require.Equal(t, 3, calls)

	// default is a single page
	calls = 0
	orders, err = c.ListOrders(context.Background(), testCreds, ListOrdersParams{UpdatedAtMin: since})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, 1, calls)
}

func TestNextPageInfo(t *testing.T) {
	require.Equal(t, "abc", nextPageInfo(`<https://s.myshopify.com/admin/api/2024-01/orders.json?limit=250&page_info=abc>; rel="next"`))
	require.Equal(t, "n", nextPageInfo(`<https://x/o.json?page_info=p>; rel="previous", <https://x/o.json?fields=id%2Cname&page_info=n>; rel="next"`))
	require.Empty(t, nextPageInfo(`<https://x/o.json?page_info=p>; rel="previous"`))
	require.Empty(t, nextPageInfo(""))
}
