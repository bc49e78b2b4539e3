package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  company_id BIGINT NULL,
  email TEXT NOT NULL,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  password TEXT NOT NULL DEFAULT '',
  administrator BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_email ON users(lower(email))`,
		`CREATE INDEX IF NOT EXISTS idx_users_company_name ON users(company_id, lower(first_name), lower(last_name))`,
		`
CREATE TABLE IF NOT EXISTS companies (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  website TEXT NOT NULL DEFAULT '',
  street TEXT NOT NULL DEFAULT '',
  town TEXT NOT NULL DEFAULT '',
  postcode TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  main_contact_id BIGINT NULL REFERENCES users(id) ON DELETE SET NULL,
  shopify_domain TEXT NOT NULL DEFAULT '',
  shopify_webhook_key TEXT NOT NULL DEFAULT '',
  shopify_api_key TEXT NOT NULL DEFAULT '',
  shopify_password TEXT NOT NULL DEFAULT '',
  shopify_location_id BIGINT NOT NULL DEFAULT 0,
  dhl_account_code TEXT NOT NULL DEFAULT '',
  dhl_api_key TEXT NOT NULL DEFAULT '',
  dhl_password TEXT NOT NULL DEFAULT '',
  ef_client_id TEXT NOT NULL DEFAULT '',
  ef_client_secret TEXT NOT NULL DEFAULT '',
  ef_username TEXT NOT NULL DEFAULT '',
  ef_password TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_companies_shopify_domain ON companies(shopify_domain)`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
  shopify_id BIGINT NULL,
  shipping_id TEXT NOT NULL DEFAULT '',
  tracking_url TEXT NOT NULL DEFAULT '',
  carrier TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'unfulfilled',
  extra_data JSONB NULL,
  user_id BIGINT NULL REFERENCES users(id) ON DELETE SET NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (company_id, shopify_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_company_status ON orders(company_id, status, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS order_labels (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  content BYTEA NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_labels_order_id ON order_labels(order_id)`,
		`
CREATE TABLE IF NOT EXISTS products (
  id BIGSERIAL PRIMARY KEY,
  company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
  batch_code TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (company_id, batch_code)
)`,
		`
CREATE TABLE IF NOT EXISTS product_orders (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  quantity INT NOT NULL CHECK (quantity >= 0),
  UNIQUE (order_id, product_id)
)`,
		`
CREATE TABLE IF NOT EXISTS package_templates (
  id BIGSERIAL PRIMARY KEY,
  company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  width NUMERIC(6,2) NOT NULL,
  length NUMERIC(6,2) NOT NULL,
  height NUMERIC(6,2) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_package_templates_company ON package_templates(company_id, name)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
