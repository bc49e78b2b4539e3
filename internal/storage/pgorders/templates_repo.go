package pgorders

import (
	"context"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const templateColumns = `id, company_id, name, width::text, length::text, height::text, created_at`

func scanTemplate(row pgx.Row) (*models.PackageTemplate, error) {
	var t models.PackageTemplate
	var w, l, h string
	if err := row.Scan(&t.ID, &t.CompanyID, &t.Name, &w, &l, &h, &t.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Width, err = decimal.NewFromString(w); err != nil {
		return nil, errors.Wrap(err, "parse width")
	}
	if t.Length, err = decimal.NewFromString(l); err != nil {
		return nil, errors.Wrap(err, "parse length")
	}
	if t.Height, err = decimal.NewFromString(h); err != nil {
		return nil, errors.Wrap(err, "parse height")
	}
	return &t, nil
}

func (s *Storage) ListPackageTemplates(ctx context.Context, companyID uint64) ([]*models.PackageTemplate, error) {
	rows, err := s.db.Query(ctx, `SELECT `+templateColumns+` FROM package_templates WHERE company_id = $1 ORDER BY name, id`, companyID)
	if err != nil {
		return nil, errors.Wrap(err, "select package templates")
	}
	defer rows.Close()

	out := []*models.PackageTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan package template")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetPackageTemplate(ctx context.Context, companyID, id uint64) (*models.PackageTemplate, error) {
	t, err := scanTemplate(s.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM package_templates WHERE company_id = $1 AND id = $2`,
		companyID, id))
	if err != nil {
		return nil, wrapErr(err, "select package template")
	}
	return t, nil
}

func (s *Storage) CreatePackageTemplate(ctx context.Context, t *models.PackageTemplate) (*models.PackageTemplate, error) {
	out, err := scanTemplate(s.db.QueryRow(ctx, `
INSERT INTO package_templates (company_id, name, width, length, height)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric)
RETURNING `+templateColumns,
		t.CompanyID, t.Name, t.Width.String(), t.Length.String(), t.Height.String()))
	if err != nil {
		return nil, wrapErr(err, "insert package template")
	}
	return out, nil
}

func (s *Storage) UpdatePackageTemplate(ctx context.Context, t *models.PackageTemplate) (*models.PackageTemplate, error) {
	out, err := scanTemplate(s.db.QueryRow(ctx, `
UPDATE package_templates
SET name = $3, width = $4::numeric, length = $5::numeric, height = $6::numeric
WHERE company_id = $1 AND id = $2
RETURNING `+templateColumns,
		t.CompanyID, t.ID, t.Name, t.Width.String(), t.Length.String(), t.Height.String()))
	if err != nil {
		return nil, wrapErr(err, "update package template")
	}
	return out, nil
}

func (s *Storage) DeletePackageTemplate(ctx context.Context, companyID, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM package_templates WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return errors.Wrap(err, "delete package template")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "delete package template")
	}
	return nil
}
