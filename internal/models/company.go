package models

import (
	"strings"
	"time"
)

type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Company is a tenant. Integration credentials are stored per company.
type Company struct {
	ID          uint64
	Name        string
	Website     string
	Street      string
	Town        string
	Postcode    string
	Country     string
	Phone       string
	MainContact *Contact

	ShopifyDomain     string
	ShopifyWebhookKey string
	ShopifyAPIKey     string
	ShopifyPassword   string
	ShopifyLocationID int64

	DHLAccountCode string
	DHLAPIKey      string
	DHLPassword    string

	EFClientID     string
	EFClientSecret string
	EFUsername     string
	EFPassword     string

	CreatedAt time.Time
}

func (c *Company) HasShopify() bool {
	return c.ShopifyDomain != "" && c.ShopifyAPIKey != "" && c.ShopifyPassword != ""
}

func (c *Company) HasDHL() bool {
	return c.DHLAPIKey != "" && c.DHLAccountCode != ""
}

func (c *Company) HasExpressFreight() bool {
	return c.EFClientID != "" && c.EFClientSecret != ""
}

// NormalizeShopDomain lowercases a shop domain and drops scheme, path and trailing dots.
func NormalizeShopDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, ".")
}
