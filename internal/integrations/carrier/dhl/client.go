package dhl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

const serviceName = "dhl"

// DHL wants a fixed GMT offset suffix rather than an RFC3339 zone.
const plannedShippingLayout = "2006-01-02T15:04:05 GMT+01:00"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://express.api.dhl.com/mydhlapi/test"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type shipmentResp struct {
	ShipmentTrackingNumber string `json:"shipmentTrackingNumber"`
	TrackingURL            string `json:"trackingUrl"`
	Documents              []struct {
		TypeCode    string `json:"typeCode"`
		ImageFormat string `json:"imageFormat"`
		Content     string `json:"content"`
	} `json:"documents"`
}

func (c *Client) CreateShipment(ctx context.Context, company *models.Company, req carrier.ShipmentRequest) (carrier.ShipmentResult, error) {
	if !company.HasDHL() {
		return carrier.ShipmentResult{}, errors.New("no DHL API key for company")
	}

	b, err := json.Marshal(compact(buildPayload(company, req)))
	if err != nil {
		return carrier.ShipmentResult{}, errors.Wrap(err, "marshal shipment")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments", bytes.NewReader(b))
	if err != nil {
		return carrier.ShipmentResult{}, errors.Wrap(err, "new request")
	}
	httpReq.SetBasicAuth(company.DHLAPIKey, company.DHLPassword)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return carrier.ShipmentResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if err := integrations.CheckResponse(serviceName, resp); err != nil {
		return carrier.ShipmentResult{}, err
	}

	var r shipmentResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return carrier.ShipmentResult{}, errors.Wrap(err, "decode")
	}
	if r.ShipmentTrackingNumber == "" {
		return carrier.ShipmentResult{}, errors.New("dhl response without tracking number")
	}

	res := carrier.ShipmentResult{
		TrackingNumber: r.ShipmentTrackingNumber,
		TrackingURL:    r.TrackingURL,
	}
	for i, d := range r.Documents {
		content, err := base64.StdEncoding.DecodeString(d.Content)
		if err != nil {
			return carrier.ShipmentResult{}, errors.Wrap(err, "decode label")
		}
		res.Labels = append(res.Labels, carrier.Label{
			Name:    fmt.Sprintf("shipping_label_%s_%d.pdf", r.ShipmentTrackingNumber, i+1),
			Content: content,
		})
	}
	return res, nil
}

func buildPayload(company *models.Company, req carrier.ShipmentRequest) map[string]any {
	contact := models.Contact{}
	if company.MainContact != nil {
		contact = *company.MainContact
	}

	reference := req.Reference
	if reference == "" {
		reference = "Order from " + company.Name
	}
	description := req.Description
	if description == "" {
		description = "Order from " + company.Name
	}

	packages := make([]any, 0, len(req.Packages))
	for _, p := range req.Packages {
		packages = append(packages, map[string]any{
			"customerReferences": []any{
				map[string]any{"value": reference, "typeCode": "CU"},
			},
			"weight":      p.Weight.InexactFloat64(),
			"description": p.Description,
			"dimensions": map[string]any{
				"length": p.Length.InexactFloat64(),
				"width":  p.Width.InexactFloat64(),
				"height": p.Height.InexactFloat64(),
			},
		})
	}

	rcv := req.Receiver
	return map[string]any{
		"plannedShippingDateAndTime": req.DispatchDate.Format(plannedShippingLayout),
		"pickup":                     map[string]any{"isRequested": false},
		"productCode":                req.ServiceCode,
		"accounts": []any{
			map[string]any{"number": company.DHLAccountCode, "typeCode": "shipper"},
		},
		"customerDetails": map[string]any{
			"shipperDetails": map[string]any{
				"postalAddress": map[string]any{
					"cityName":     company.Town,
					"countryCode":  company.Country,
					"postalCode":   company.Postcode,
					"addressLine1": company.Street,
				},
				"contactInformation": map[string]any{
					"phone":       company.Phone,
					"companyName": company.Name,
					"fullName":    contact.FullName(),
					"email":       contact.Email,
				},
			},
			"receiverDetails": map[string]any{
				"postalAddress": map[string]any{
					"cityName":     rcv.City,
					"countryCode":  rcv.CountryCode,
					"postalCode":   rcv.Postcode,
					"addressLine1": rcv.Line1,
					"addressLine2": rcv.Line2,
					"addressLine3": rcv.County,
				},
				"contactInformation": map[string]any{
					"phone":       rcv.Phone,
					"companyName": rcv.Name,
					"fullName":    rcv.Name,
					"email":       rcv.Email,
				},
			},
		},
		"content": map[string]any{
			"unitOfMeasurement":   "metric",
			"isCustomsDeclarable": false,
			"incoterm":            "DAP",
			"description":         description,
			"packages":            packages,
		},
	}
}

// compact drops nil and empty-string values from nested maps and lists;
// DHL rejects empty optional fields.
func compact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			if s, ok := val.(string); ok && s == "" {
				continue
			}
			out[k] = compact(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			out = append(out, compact(val))
		}
		return out
	default:
		return v
	}
}
