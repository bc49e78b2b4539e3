package pgorders

import (
	"context"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) CreateProduct(ctx context.Context, companyID uint64, batchCode string) (*models.Product, error) {
	p := models.Product{CompanyID: companyID, BatchCode: batchCode}
	err := s.db.QueryRow(ctx, `
INSERT INTO products (company_id, batch_code) VALUES ($1,$2) RETURNING id, created_at
`, companyID, batchCode).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "insert product")
	}
	return &p, nil
}

func (s *Storage) ListProductOrders(ctx context.Context, orderID uint64) ([]*models.ProductOrder, error) {
	rows, err := s.db.Query(ctx, `
SELECT po.id, po.order_id, po.product_id, p.batch_code, po.quantity
FROM product_orders po
JOIN products p ON p.id = po.product_id
WHERE po.order_id = $1
ORDER BY po.id
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select product orders")
	}
	defer rows.Close()

	out := []*models.ProductOrder{}
	for rows.Next() {
		var po models.ProductOrder
		if err := rows.Scan(&po.ID, &po.OrderID, &po.ProductID, &po.BatchCode, &po.Quantity); err != nil {
			return nil, errors.Wrap(err, "scan product order")
		}
		out = append(out, &po)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SetProductOrder upserts the packed quantity of a batch for an order; zero
// removes the row. Both the order and the product must belong to companyID.
func (s *Storage) SetProductOrder(ctx context.Context, companyID, orderID, productID uint64, quantity int) error {
	if quantity <= 0 {
		_, err := s.db.Exec(ctx, `
DELETE FROM product_orders po
USING orders o
WHERE po.order_id = o.id AND o.company_id = $1 AND po.order_id = $2 AND po.product_id = $3
`, companyID, orderID, productID)
		return errors.Wrap(err, "delete product order")
	}

	tag, err := s.db.Exec(ctx, `
INSERT INTO product_orders (order_id, product_id, quantity)
SELECT o.id, p.id, $4
FROM orders o
JOIN products p ON p.company_id = o.company_id
WHERE o.company_id = $1 AND o.id = $2 AND p.id = $3
ON CONFLICT (order_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
`, companyID, orderID, productID, quantity)
	if err != nil {
		return errors.Wrap(err, "upsert product order")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "upsert product order")
	}
	return nil
}
