package pgorders

import (
	"context"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const companyColumns = `
  c.id, c.name, c.website, c.street, c.town, c.postcode, c.country, c.phone,
  mc.first_name, mc.last_name, mc.email,
  c.shopify_domain, c.shopify_webhook_key, c.shopify_api_key, c.shopify_password, c.shopify_location_id,
  c.dhl_account_code, c.dhl_api_key, c.dhl_password,
  c.ef_client_id, c.ef_client_secret, c.ef_username, c.ef_password,
  c.created_at
FROM companies c
LEFT JOIN users mc ON mc.id = c.main_contact_id
`

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	var mcFirst, mcLast, mcEmail *string
	if err := row.Scan(
		&c.ID, &c.Name, &c.Website, &c.Street, &c.Town, &c.Postcode, &c.Country, &c.Phone,
		&mcFirst, &mcLast, &mcEmail,
		&c.ShopifyDomain, &c.ShopifyWebhookKey, &c.ShopifyAPIKey, &c.ShopifyPassword, &c.ShopifyLocationID,
		&c.DHLAccountCode, &c.DHLAPIKey, &c.DHLPassword,
		&c.EFClientID, &c.EFClientSecret, &c.EFUsername, &c.EFPassword,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	if mcEmail != nil {
		c.MainContact = &models.Contact{
			FirstName: deref(mcFirst),
			LastName:  deref(mcLast),
			Email:     *mcEmail,
		}
	}
	return &c, nil
}

func (s *Storage) GetCompany(ctx context.Context, id uint64) (*models.Company, error) {
	c, err := scanCompany(s.db.QueryRow(ctx, `SELECT `+companyColumns+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "select company")
	}
	return c, nil
}

// GetCompanyByShopDomain matches the normalized shop domain. When several
// companies share a domain the oldest wins.
func (s *Storage) GetCompanyByShopDomain(ctx context.Context, domain string) (*models.Company, error) {
	domain = models.NormalizeShopDomain(domain)
	if domain == "" {
		return nil, errors.Wrap(models.ErrNotFound, "select company by domain")
	}
	c, err := scanCompany(s.db.QueryRow(ctx,
		`SELECT `+companyColumns+` WHERE c.shopify_domain = $1 ORDER BY c.id LIMIT 1`, domain))
	if err != nil {
		return nil, wrapErr(err, "select company by domain")
	}
	return c, nil
}

// ListShopifyCompanies returns companies with complete Shopify API credentials.
func (s *Storage) ListShopifyCompanies(ctx context.Context) ([]*models.Company, error) {
	rows, err := s.db.Query(ctx, `SELECT `+companyColumns+`
WHERE c.shopify_domain <> '' AND c.shopify_api_key <> '' AND c.shopify_password <> ''
ORDER BY c.id`)
	if err != nil {
		return nil, errors.Wrap(err, "select shopify companies")
	}
	defer rows.Close()

	var out []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan company")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateCompany stores a tenant. The shop domain is normalized on write so
// webhook lookups can compare exactly.
func (s *Storage) CreateCompany(ctx context.Context, c *models.Company) (*models.Company, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO companies (
  name, website, street, town, postcode, country, phone,
  shopify_domain, shopify_webhook_key, shopify_api_key, shopify_password, shopify_location_id,
  dhl_account_code, dhl_api_key, dhl_password,
  ef_client_id, ef_client_secret, ef_username, ef_password
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING id
`, c.Name, c.Website, c.Street, c.Town, c.Postcode, c.Country, c.Phone,
		models.NormalizeShopDomain(c.ShopifyDomain), c.ShopifyWebhookKey, c.ShopifyAPIKey, c.ShopifyPassword, c.ShopifyLocationID,
		c.DHLAccountCode, c.DHLAPIKey, c.DHLPassword,
		c.EFClientID, c.EFClientSecret, c.EFUsername, c.EFPassword,
	).Scan(&id)
	if err != nil {
		return nil, wrapErr(err, "insert company")
	}
	return s.GetCompany(ctx, id)
}

func (s *Storage) SetCompanyMainContact(ctx context.Context, companyID, userID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE companies SET main_contact_id = $2 WHERE id = $1`, companyID, userID)
	return errors.Wrap(err, "set main contact")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
