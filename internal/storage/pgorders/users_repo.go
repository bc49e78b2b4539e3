package pgorders

import (
	"context"
	"strings"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const userColumns = `id, COALESCE(company_id, 0), email, first_name, last_name, password, administrator, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.CompanyID, &u.Email, &u.FirstName, &u.LastName, &u.Password, &u.Administrator, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindCustomerByEmail matches case-insensitively within the company. Staff
// accounts are never customers.
func (s *Storage) FindCustomerByEmail(ctx context.Context, companyID uint64, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE company_id = $1 AND NOT administrator AND lower(email) = lower($2)
LIMIT 1
`, companyID, strings.TrimSpace(email)))
	if err != nil {
		return nil, wrapErr(err, "select user by email")
	}
	return u, nil
}

// FindCustomerByName returns the oldest non-staff user of the company with that name.
func (s *Storage) FindCustomerByName(ctx context.Context, companyID uint64, firstName, lastName string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE company_id = $1 AND NOT administrator
  AND lower(first_name) = lower($2) AND lower(last_name) = lower($3)
ORDER BY id
LIMIT 1
`, companyID, strings.TrimSpace(firstName), strings.TrimSpace(lastName)))
	if err != nil {
		return nil, wrapErr(err, "select user by name")
	}
	return u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	var companyID *uint64
	if u.CompanyID != 0 {
		companyID = &u.CompanyID
	}
	out, err := scanUser(s.db.QueryRow(ctx, `
INSERT INTO users (company_id, email, first_name, last_name, password, administrator)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING `+userColumns,
		companyID, u.Email, u.FirstName, u.LastName, u.Password, u.Administrator))
	if err != nil {
		return nil, wrapErr(err, "insert user")
	}
	return out, nil
}

func (s *Storage) UpdateUserEmail(ctx context.Context, userID uint64, email string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET email = $2 WHERE id = $1`, userID, email)
	if err != nil {
		return wrapErr(err, "update user email")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update user email")
	}
	return nil
}
