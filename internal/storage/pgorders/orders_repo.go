package pgorders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `
  id, company_id, shopify_id, shipping_id, tracking_url, carrier, status,
  extra_data, user_id, created_at, updated_at
`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var extra []byte
	if err := row.Scan(
		&o.ID, &o.CompanyID, &o.ShopifyID, &o.ShippingID, &o.TrackingURL, &o.Carrier, &o.Status,
		&extra, &o.UserID, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		o.ExtraData = json.RawMessage(extra)
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()
	out := []*models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateOrder inserts a new order. A second order with the same
// (company, shopify id) fails with models.ErrDuplicate.
func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	now := time.Now().UTC()
	created := o.CreatedAt
	if created.IsZero() {
		created = now
	}
	status := o.Status
	if status == "" {
		status = models.OrderStatusUnfulfilled
	}

	out, err := scanOrder(s.db.QueryRow(ctx, `
INSERT INTO orders (
  company_id, shopify_id, shipping_id, tracking_url, carrier, status, extra_data, user_id, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING `+orderColumns,
		o.CompanyID, o.ShopifyID, o.ShippingID, o.TrackingURL, o.Carrier, status,
		nullJSON(o.ExtraData), o.UserID, created, now))
	if err != nil {
		return nil, wrapErr(err, "insert order")
	}
	return out, nil
}

func (s *Storage) GetOrder(ctx context.Context, companyID, orderID uint64) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE company_id = $1 AND id = $2`,
		companyID, orderID))
	if err != nil {
		return nil, wrapErr(err, "select order")
	}
	return o, nil
}

// FindOrdersByShopifyID returns every match ordered by id. The unique
// constraint keeps this to one row, callers still take the first.
func (s *Storage) FindOrdersByShopifyID(ctx context.Context, companyID uint64, shopifyID int64) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+`
FROM orders
WHERE company_id = $1 AND shopify_id = $2
ORDER BY id
`, companyID, shopifyID)
	if err != nil {
		return nil, errors.Wrap(err, "select orders by shopify id")
	}
	return collectOrders(rows)
}

func (s *Storage) ListOrders(ctx context.Context, companyID uint64, status string, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+`
FROM orders
WHERE company_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`, companyID, status, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	return collectOrders(rows)
}

// OrderIDsByShopifyIDs maps shopify ids onto local order ids for one company.
func (s *Storage) OrderIDsByShopifyIDs(ctx context.Context, companyID uint64, shopifyIDs []int64) (map[int64]uint64, error) {
	out := make(map[int64]uint64, len(shopifyIDs))
	if len(shopifyIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT shopify_id, id FROM orders WHERE company_id = $1 AND shopify_id = ANY($2)
`, companyID, shopifyIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select order ids")
	}
	defer rows.Close()
	for rows.Next() {
		var sid int64
		var id uint64
		if err := rows.Scan(&sid, &id); err != nil {
			return nil, errors.Wrap(err, "scan order id")
		}
		out[sid] = id
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CancelOrders flips every matching order to cancelled and returns how many changed.
func (s *Storage) CancelOrders(ctx context.Context, companyID uint64, shopifyID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE orders SET status = $3, updated_at = now()
WHERE company_id = $1 AND shopify_id = $2 AND status <> $3
`, companyID, shopifyID, models.OrderStatusCancelled)
	if err != nil {
		return 0, errors.Wrap(err, "cancel orders")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) SetOrderStatus(ctx context.Context, orderID uint64, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, status)
	return errors.Wrap(err, "set order status")
}

// SetOrderUser links a customer only while the order has none.
func (s *Storage) SetOrderUser(ctx context.Context, orderID, userID uint64) error {
	_, err := s.db.Exec(ctx, `
UPDATE orders SET user_id = $2, updated_at = now() WHERE id = $1 AND user_id IS NULL
`, orderID, userID)
	return errors.Wrap(err, "set order user")
}

// UpdateOrderSnapshot stores the latest platform payload. createdAt is kept
// when nil.
func (s *Storage) UpdateOrderSnapshot(ctx context.Context, orderID uint64, data json.RawMessage, createdAt *time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE orders
SET extra_data = $2, created_at = COALESCE($3, created_at), updated_at = now()
WHERE id = $1
`, orderID, nullJSON(data), createdAt)
	return errors.Wrap(err, "update order snapshot")
}

// ShipmentRecord is the local bookkeeping written after a carrier accepted a shipment.
type ShipmentRecord struct {
	CompanyID   uint64
	ShopifyID   *int64
	UserID      *uint64
	Carrier     string
	ShippingID  string
	TrackingURL string
	Labels      []models.OrderLabel
}

// UpsertShipment creates the order, or attaches the tracking fields to the
// existing order with the same shopify id, and stores the labels in one tx.
func (s *Storage) UpsertShipment(ctx context.Context, rec ShipmentRecord) (*models.Order, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `
INSERT INTO orders (
  company_id, shopify_id, shipping_id, tracking_url, carrier, status, user_id, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
ON CONFLICT (company_id, shopify_id)
DO UPDATE SET
  shipping_id = EXCLUDED.shipping_id,
  tracking_url = EXCLUDED.tracking_url,
  carrier = EXCLUDED.carrier,
  user_id = COALESCE(orders.user_id, EXCLUDED.user_id),
  updated_at = EXCLUDED.updated_at
RETURNING `+orderColumns,
		rec.CompanyID, rec.ShopifyID, rec.ShippingID, rec.TrackingURL, rec.Carrier,
		models.OrderStatusUnfulfilled, rec.UserID, now))
	if err != nil {
		return nil, wrapErr(err, "upsert shipment order")
	}

	for _, l := range rec.Labels {
		if _, err := tx.Exec(ctx, `
INSERT INTO order_labels (order_id, name, content, created_at) VALUES ($1,$2,$3,$4)
`, o.ID, l.Name, l.Content, now); err != nil {
			return nil, errors.Wrap(err, "insert label")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return o, nil
}

func nullJSON(b json.RawMessage) []byte {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
