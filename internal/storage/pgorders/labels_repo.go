package pgorders

import (
	"context"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) ListOrderLabels(ctx context.Context, orderID uint64) ([]*models.OrderLabel, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, order_id, name, octet_length(content), created_at
FROM order_labels
WHERE order_id = $1
ORDER BY id
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select labels")
	}
	defer rows.Close()

	out := []*models.OrderLabel{}
	for rows.Next() {
		var l models.OrderLabel
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Name, &l.Size, &l.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan label")
		}
		out = append(out, &l)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetOrderLabel loads a label with its content, scoped to the company.
func (s *Storage) GetOrderLabel(ctx context.Context, companyID, orderID, labelID uint64) (*models.OrderLabel, error) {
	var l models.OrderLabel
	err := s.db.QueryRow(ctx, `
SELECT l.id, l.order_id, l.name, l.content, l.created_at
FROM order_labels l
JOIN orders o ON o.id = l.order_id
WHERE o.company_id = $1 AND l.order_id = $2 AND l.id = $3
`, companyID, orderID, labelID).Scan(&l.ID, &l.OrderID, &l.Name, &l.Content, &l.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "select label")
	}
	l.Size = len(l.Content)
	return &l, nil
}
