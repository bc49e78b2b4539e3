package fulfillment

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/validation"
	"github.com/pkg/errors"
)

// DHLServiceCodes are the DHL Express product codes staff can pick.
var DHLServiceCodes = map[string]string{
	"N": "Domestic Express",
	"1": "Domestic Express 12:00",
	"I": "Domestic Express 9:00",
	"U": "Europe Express",
	"T": "Europe Express 12:00",
	"K": "Europe Express 9:00",
	"P": "ROW Express",
	"Y": "ROW Express 12:00",
	"E": "ROW Express 9:00",
}

var (
	addressCharsRe = regexp.MustCompile(`[^A-Za-z0-9 ]+`)
	nonDigitsRe    = regexp.MustCompile(`[^0-9]+`)
)

var dispatchLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// Address is the receiver block shared by both carrier forms.
type Address struct {
	ShopifyOrder string `json:"shopify_order,omitempty"`
	Name         string `json:"name" validate:"required,max=255"`
	Phone        string `json:"phone" validate:"required,max=50"`
	FirstLine    string `json:"first_line" validate:"required,max=255"`
	SecondLine   string `json:"second_line" validate:"max=255"`
	Town         string `json:"town" validate:"required,max=255"`
	Postcode     string `json:"postcode" validate:"max=20"`
	DispatchDate string `json:"dispatch_date"`
}

// Form is a carrier label form. Implementations live in this package.
type Form interface {
	Carrier() string
	// prepare normalizes raw input before tag validation.
	prepare()
	// check applies rules that tags cannot express.
	check(verr *validation.Error)
	request(dispatch time.Time) carrier.ShipmentRequest
	address() *Address
}

type EFForm struct {
	Address
	Region string `json:"region" validate:"required,oneof='REST OF IRELAND' 'NORTH IRELAND' DUBLIN"`
	County string `json:"county" validate:"required"`
}

func (f *EFForm) Carrier() string { return models.CarrierExpressFreight }
func (f *EFForm) address() *Address { return &f.Address }

func (f *EFForm) prepare() {
	f.Address.trim()
	f.Phone = cleanPhone(f.Phone)
	f.FirstLine = cleanAddressField(f.FirstLine)
	f.SecondLine = cleanAddressField(f.SecondLine)
	f.Town = cleanAddressField(f.Town)
	f.Postcode = cleanAddressField(f.Postcode)
	f.Region = strings.ToUpper(strings.TrimSpace(f.Region))
	if code, ok := NormalizeCounty(f.County); ok {
		f.County = code
	} else {
		f.County = strings.TrimSpace(f.County)
	}
}

func (f *EFForm) check(verr *validation.Error) {
	if f.County != "" && !IsCountyCode(f.County) {
		verr.Add("county", "Select a valid county")
		return
	}
	if f.Region == RegionDublin && !strings.HasPrefix(f.County, "DUBLIN") {
		verr.Add("county", "If the customer is in Dublin, you have to choose a Dublin county.")
	}
}

func (f *EFForm) request(dispatch time.Time) carrier.ShipmentRequest {
	return carrier.ShipmentRequest{
		Reference:    f.ShopifyOrder,
		ServiceCode:  "STANDARD",
		DispatchDate: dispatch,
		Receiver: carrier.Address{
			Name:     f.Name,
			Line1:    f.FirstLine,
			Line2:    f.SecondLine,
			City:     f.Town,
			County:   f.County,
			Region:   f.Region,
			Postcode: f.Postcode,
			Phone:    f.Phone,
		},
	}
}

type DHLForm struct {
	Address
	ServiceCode string `json:"service_code" validate:"required,oneof=N 1 I U T K P Y E"`
	County      string `json:"county" validate:"max=255"`
	Country     string `json:"country" validate:"required,iso3166_1_alpha2"`
}

func (f *DHLForm) Carrier() string { return models.CarrierDHL }
func (f *DHLForm) address() *Address { return &f.Address }

func (f *DHLForm) prepare() {
	f.Address.trim()
	f.ServiceCode = strings.ToUpper(strings.TrimSpace(f.ServiceCode))
	f.Country = strings.ToUpper(strings.TrimSpace(f.Country))
	f.County = strings.TrimSpace(f.County)
}

func (f *DHLForm) check(verr *validation.Error) {
	if f.Postcode == "" {
		verr.Add("postcode", "This field is required")
	}
}

func (f *DHLForm) request(dispatch time.Time) carrier.ShipmentRequest {
	return carrier.ShipmentRequest{
		Reference:    f.ShopifyOrder,
		ServiceCode:  f.ServiceCode,
		DispatchDate: dispatch,
		Receiver: carrier.Address{
			Name:        f.Name,
			Line1:       f.FirstLine,
			Line2:       f.SecondLine,
			City:        f.Town,
			County:      f.County,
			Postcode:    f.Postcode,
			CountryCode: f.Country,
			Phone:       f.Phone,
		},
	}
}

func (a *Address) trim() {
	for _, p := range []*string{&a.ShopifyOrder, &a.Name, &a.Phone, &a.FirstLine, &a.SecondLine, &a.Town, &a.Postcode, &a.DispatchDate} {
		*p = strings.TrimSpace(*p)
	}
}

// NewForm returns an empty form for a carrier code.
func NewForm(carrierCode string) (Form, error) {
	switch carrierCode {
	case models.CarrierDHL:
		return &DHLForm{}, nil
	case models.CarrierExpressFreight:
		return &EFForm{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownCarrier, "%q", carrierCode)
}

// DecodeForm parses a JSON form body for the carrier.
func DecodeForm(carrierCode string, raw json.RawMessage) (Form, error) {
	f, err := NewForm(carrierCode)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errors.Wrap(err, "decode form")
	}
	return f, nil
}

// prefillForm maps a platform shipping address onto the carrier form.
func prefillForm(f Form, o *shopify.Order, now time.Time) {
	a := f.address()
	a.DispatchDate = now.Format("2006-01-02")
	if o == nil {
		return
	}
	a.ShopifyOrder = formatID(o.ID)
	ship := o.ShippingAddress
	if ship == nil {
		return
	}
	a.Name = ship.FullName()
	a.FirstLine = ship.Address1
	a.SecondLine = ship.Address2
	a.Town = ship.City
	a.Postcode = ship.Zip
	a.Phone = ship.Phone

	switch t := f.(type) {
	case *EFForm:
		t.Region = RegionFor(ship.City, ship.Province, ship.Zip)
		t.County = guessCounty(t.Region, ship)
	case *DHLForm:
		t.County = ship.Province
		t.Country = strings.ToUpper(ship.CountryCode)
	}
}

// guessCounty tries the Eircode routing key, the city and the province.
func guessCounty(region string, ship *shopify.Address) string {
	candidates := []string{ship.Province, ship.City}
	if region == RegionDublin {
		zip := strings.ToUpper(strings.ReplaceAll(ship.Zip, " ", ""))
		if len(zip) >= 3 {
			candidates = append([]string{zip[:3]}, candidates...)
		}
		candidates = append([]string{ship.City}, candidates...)
	}
	for _, c := range candidates {
		if code, ok := NormalizeCounty(c); ok {
			return code
		}
	}
	return ""
}

func parseDispatch(s string, now time.Time) (time.Time, bool) {
	if s == "" {
		return now, true
	}
	for _, layout := range dispatchLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cleanPhone(s string) string {
	return nonDigitsRe.ReplaceAllString(strings.ReplaceAll(s, "+", "00"), "")
}

func cleanAddressField(s string) string {
	return strings.TrimSpace(addressCharsRe.ReplaceAllString(s, ""))
}
