package expressfreight

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/OrderBox/internal/cache"
	"github.com/BearBump/OrderBox/internal/integrations"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

const (
	serviceName     = "express_freight"
	defaultTokenTTL = time.Hour
	dispatchLayout  = "2006-01-02"
)

type Client struct {
	baseURL  string
	httpc    *http.Client
	tokens   cache.BytesCache
	tokenTTL time.Duration
}

// New builds a client that keeps one bearer token per company in tokens.
func New(baseURL string, tokens cache.BytesCache, tokenTTL time.Duration) *Client {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
		tokens:   tokens,
		tokenTTL: tokenTTL,
	}
}

func tokenKey(companyID uint64) string {
	return "ef:token:" + strconv.FormatUint(companyID, 10)
}

type item struct {
	ItemType          string  `json:"itemType"`
	ItemWeight        float64 `json:"itemWeight"`
	ItemHeight        float64 `json:"itemHeight"`
	ItemWidth         float64 `json:"itemWidth"`
	ItemLength        float64 `json:"itemLength"`
	DangerousGoods    bool    `json:"dangerousGoods"`
	LimitedQuantities bool    `json:"limitedQuantities"`
}

type consignment struct {
	ConsigneeName       string `json:"consigneeName"`
	ConsigneeNumber     string `json:"ConsigneeNumber"`
	ConsigneeTownland   string `json:"ConsigneeTownland"`
	SpecialInstructions string `json:"SpecialInstructions"`
	ConsigneeStreet     string `json:"consigneeStreet"`
	ConsigneeStreet2    string `json:"consigneeStreet2"`
	ConsigneeCity       string `json:"consigneeCity"`
	ConsigneeCounty     string `json:"consigneeCounty"`
	ConsigneePostcode   string `json:"consigneePostcode"`
	ContactName         string `json:"contactName"`
	ContactNo           string `json:"contactNo"`
	OrderReference      string `json:"orderReference"`
	ServiceType         string `json:"serviceType"`
	ConsigneeRegion     string `json:"consigneeRegion"`
	DispatchDate        string `json:"dispatchDate"`
	LabelsLink          bool   `json:"labelsLink"`
	Items               []item `json:"items"`
}

type consignmentResp struct {
	ConsignmentNumber string   `json:"consignmentNumber"`
	TrackingLink      string   `json:"trackingLink"`
	Labels            []string `json:"labels"`
}

func buildConsignment(req carrier.ShipmentRequest) consignment {
	serviceType := req.ServiceCode
	if serviceType == "" {
		serviceType = "STANDARD"
	}
	rcv := req.Receiver
	c := consignment{
		ConsigneeName:     rcv.Name,
		ConsigneeStreet:   rcv.Line1,
		ConsigneeStreet2:  rcv.Line2,
		ConsigneeCity:     rcv.City,
		ConsigneeCounty:   rcv.County,
		ConsigneePostcode: rcv.Postcode,
		ContactName:       rcv.Name,
		ContactNo:         rcv.Phone,
		OrderReference:    req.Reference,
		ServiceType:       serviceType,
		ConsigneeRegion:   rcv.Region,
		DispatchDate:      req.DispatchDate.Format(dispatchLayout),
		Items:             make([]item, 0, len(req.Packages)),
	}
	for _, p := range req.Packages {
		c.Items = append(c.Items, item{
			ItemType:   "CARTON",
			ItemWeight: p.Weight.InexactFloat64(),
			ItemHeight: p.Height.InexactFloat64(),
			ItemWidth:  p.Width.InexactFloat64(),
			ItemLength: p.Length.InexactFloat64(),
		})
	}
	return c
}

func (c *Client) CreateShipment(ctx context.Context, company *models.Company, req carrier.ShipmentRequest) (carrier.ShipmentResult, error) {
	if !company.HasExpressFreight() {
		return carrier.ShipmentResult{}, errors.New("no ExpressFreight API key for company")
	}

	body, err := json.Marshal(buildConsignment(req))
	if err != nil {
		return carrier.ShipmentResult{}, errors.Wrap(err, "marshal consignment")
	}

	var r consignmentResp
	if err := c.authorized(ctx, company, http.MethodPost, "Consignment/CreateConsignment", body, &r); err != nil {
		return carrier.ShipmentResult{}, err
	}
	if r.ConsignmentNumber == "" {
		return carrier.ShipmentResult{}, errors.New("express freight response without consignment number")
	}

	res := carrier.ShipmentResult{
		TrackingNumber: r.ConsignmentNumber,
		TrackingURL:    r.TrackingLink,
	}
	for i, l := range r.Labels {
		content, err := base64.StdEncoding.DecodeString(l)
		if err != nil {
			return carrier.ShipmentResult{}, errors.Wrap(err, "decode label")
		}
		res.Labels = append(res.Labels, carrier.Label{
			Name:    fmt.Sprintf("shipping_label_%s_%d.pdf", r.ConsignmentNumber, i+1),
			Content: content,
		})
	}
	return res, nil
}

// authorized sends one bearer-authenticated call. A 401 drops the cached
// token and retries once with a fresh one.
func (c *Client) authorized(ctx context.Context, company *models.Company, method, path string, body []byte, out any) error {
	token, err := c.token(ctx, company, false)
	if err != nil {
		return err
	}

	err = c.send(ctx, token, method, path, body, out)
	var httpErr *integrations.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		slog.Info("express freight token rejected, refreshing", "company_id", company.ID)
		token, err = c.token(ctx, company, true)
		if err != nil {
			return err
		}
		return c.send(ctx, token, method, path, body, out)
	}
	return err
}

func (c *Client) send(ctx context.Context, token, method, path string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if err := integrations.CheckResponse(serviceName, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func (c *Client) token(ctx context.Context, company *models.Company, refresh bool) (string, error) {
	key := tokenKey(company.ID)
	if refresh {
		if err := c.tokens.Delete(ctx, key); err != nil {
			slog.Warn("drop express freight token", "company_id", company.ID, "error", err.Error())
		}
	} else {
		b, ok, err := c.tokens.Get(ctx, key)
		if err != nil {
			slog.Warn("read express freight token", "company_id", company.ID, "error", err.Error())
		}
		if ok && len(b) > 0 {
			return string(b), nil
		}
	}

	token, err := c.fetchToken(ctx, company)
	if err != nil {
		return "", err
	}
	if err := c.tokens.Set(ctx, key, []byte(token), c.tokenTTL); err != nil {
		slog.Warn("store express freight token", "company_id", company.ID, "error", err.Error())
	}
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context, company *models.Company) (string, error) {
	q := url.Values{}
	q.Set("ClientID", company.EFClientID)
	q.Set("ClientSecret", company.EFClientSecret)
	q.Set("username", company.EFUsername)
	q.Set("password", company.EFPassword)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/Token/GetNewToken?"+q.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "new token request")
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "get token")
	}
	defer resp.Body.Close()

	if err := integrations.CheckResponse(serviceName, resp); err != nil {
		return "", err
	}
	var r struct {
		BearerToken string `json:"bearerToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", errors.Wrap(err, "decode token")
	}
	if r.BearerToken == "" {
		return "", errors.New("express freight returned empty token")
	}
	return r.BearerToken, nil
}
