package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

const (
	serviceName       = "shopify"
	defaultAPIVersion = "2024-01"
	listPageLimit     = 250
)

// OrderFields is the field set requested for single-order reads.
var OrderFields = []string{
	"id", "name", "email", "billing_address", "shipping_address", "line_items",
	"customer", "total_line_items_price", "total_discounts", "total_price",
	"created_at", "fulfillment_status", "shipping_lines",
}

// Credentials are the per-company Admin API credentials.
type Credentials struct {
	Domain   string
	APIKey   string
	Password string
}

func CredentialsFor(c *models.Company) Credentials {
	return Credentials{Domain: c.ShopifyDomain, APIKey: c.ShopifyAPIKey, Password: c.ShopifyPassword}
}

type Client struct {
	baseURL    string
	apiVersion string
	httpc      *http.Client
}

// New builds a client. An empty baseURL targets https://<shop domain>.
func New(baseURL, apiVersion string) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) endpoint(creds Credentials, path string, q url.Values) (string, error) {
	if creds.APIKey == "" || creds.Password == "" {
		return "", errors.New("no shopify api key for company")
	}
	base := c.baseURL
	if base == "" {
		if creds.Domain == "" {
			return "", errors.New("no shopify domain for company")
		}
		base = "https://" + models.NormalizeShopDomain(creds.Domain)
	}
	u := fmt.Sprintf("%s/admin/api/%s/%s", base, c.apiVersion, path)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, creds Credentials, method, path string, q url.Values, body, out any) error {
	_, err := c.doHeader(ctx, creds, method, path, q, body, out)
	return err
}

// doHeader is do that also returns the response headers.
func (c *Client) doHeader(ctx context.Context, creds Credentials, method, path string, q url.Values, body, out any) (http.Header, error) {
	u, err := c.endpoint(creds, path, q)
	if err != nil {
		return nil, err
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(creds.APIKey, creds.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if err := integrations.CheckResponse(serviceName, resp); err != nil {
		return nil, err
	}
	if out == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return resp.Header, nil
}

// GetOrder fetches one order with OrderFields. Order.Raw keeps the payload as returned.
func (c *Client) GetOrder(ctx context.Context, creds Credentials, id int64) (*Order, error) {
	q := url.Values{}
	q.Set("fields", strings.Join(OrderFields, ","))

	var r struct {
		Order json.RawMessage `json:"order"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "orders/"+strconv.FormatInt(id, 10)+".json", q, nil, &r); err != nil {
		return nil, err
	}
	return decodeOrder(r.Order)
}

type ListOrdersParams struct {
	// FulfillmentStatus: "unfulfilled", "shipped", "any" ...; empty means any.
	FulfillmentStatus string
	UpdatedAtMin      time.Time
	CreatedAtMin      time.Time
	Limit             int

	// MaxPages caps how many page_info cursors are followed; zero reads one page.
	MaxPages int
}

// ListOrders returns orders of any status, newest first, following the Link
// header cursor for up to MaxPages pages.
func (c *Client) ListOrders(ctx context.Context, creds Credentials, p ListOrdersParams) ([]*Order, error) {
	limit := p.Limit
	if limit <= 0 || limit > listPageLimit {
		limit = listPageLimit
	}
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	q := url.Values{}
	q.Set("status", "any")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", strings.Join(OrderFields, ","))
	if p.FulfillmentStatus != "" {
		q.Set("fulfillment_status", p.FulfillmentStatus)
	}
	if !p.UpdatedAtMin.IsZero() {
		q.Set("updated_at_min", p.UpdatedAtMin.UTC().Format(time.RFC3339))
	}
	if !p.CreatedAtMin.IsZero() {
		q.Set("created_at_min", p.CreatedAtMin.UTC().Format(time.RFC3339))
	}

	out := make([]*Order, 0)
	for page := 1; ; page++ {
		var r struct {
			Orders []json.RawMessage `json:"orders"`
		}
		hdr, err := c.doHeader(ctx, creds, http.MethodGet, "orders.json", q, nil, &r)
		if err != nil {
			return nil, err
		}
		for _, raw := range r.Orders {
			o, err := decodeOrder(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}

		cursor := nextPageInfo(strings.Join(hdr.Values("Link"), ","))
		if cursor == "" {
			return out, nil
		}
		if page >= maxPages {
			slog.Warn("shopify order list truncated", "shop", creds.Domain, "pages", page, "orders", len(out))
			return out, nil
		}

		// the cursor carries the original filters; only limit and fields may accompany it
		q = url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("fields", strings.Join(OrderFields, ","))
		q.Set("page_info", cursor)
	}
}

// nextPageInfo extracts the page_info of the rel="next" target of a Link header.
func nextPageInfo(link string) string {
	for {
		start := strings.IndexByte(link, '<')
		if start < 0 {
			return ""
		}
		end := strings.IndexByte(link[start:], '>')
		if end < 0 {
			return ""
		}
		target := link[start+1 : start+end]
		link = link[start+end+1:]

		params := link
		if next := strings.IndexByte(link, '<'); next >= 0 {
			params = link[:next]
		}
		if !strings.Contains(params, `rel="next"`) {
			continue
		}
		u, err := url.Parse(target)
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
}

type Fulfillment struct {
	LocationID     int64
	TrackingNumber string
	TrackingURL    string
	NotifyCustomer bool
}

// FulfillOrder marks the order fulfilled on the platform with tracking details.
func (c *Client) FulfillOrder(ctx context.Context, creds Credentials, orderID int64, f Fulfillment) error {
	body := map[string]any{
		"fulfillment": map[string]any{
			"location_id":     f.LocationID,
			"tracking_number": f.TrackingNumber,
			"tracking_urls":   []string{f.TrackingURL},
			"notify_customer": f.NotifyCustomer,
		},
	}
	path := "orders/" + strconv.FormatInt(orderID, 10) + "/fulfillments.json"
	return c.do(ctx, creds, http.MethodPost, path, nil, body, nil)
}

func decodeOrder(raw json.RawMessage) (*Order, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.Wrap(models.ErrNotFound, "shopify order")
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	o.Raw = append(json.RawMessage(nil), raw...)
	return &o, nil
}
