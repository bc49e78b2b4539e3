package orders

import (
	"context"
	"strings"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/validation"
	"github.com/pkg/errors"
)

func (s *Service) ListTemplates(ctx context.Context, companyID uint64) ([]*models.PackageTemplate, error) {
	return s.repo.ListPackageTemplates(ctx, companyID)
}

func (s *Service) GetTemplate(ctx context.Context, companyID, id uint64) (*models.PackageTemplate, error) {
	return s.repo.GetPackageTemplate(ctx, companyID, id)
}

func (s *Service) CreateTemplate(ctx context.Context, companyID uint64, t models.PackageTemplate) (*models.PackageTemplate, error) {
	t.ID = 0
	t.CompanyID = companyID
	if err := s.checkTemplate(&t); err != nil {
		return nil, err
	}
	return s.repo.CreatePackageTemplate(ctx, &t)
}

func (s *Service) UpdateTemplate(ctx context.Context, companyID, id uint64, t models.PackageTemplate) (*models.PackageTemplate, error) {
	t.ID = id
	t.CompanyID = companyID
	if err := s.checkTemplate(&t); err != nil {
		return nil, err
	}
	return s.repo.UpdatePackageTemplate(ctx, &t)
}

func (s *Service) DeleteTemplate(ctx context.Context, companyID, id uint64) error {
	return s.repo.DeletePackageTemplate(ctx, companyID, id)
}

func (s *Service) checkTemplate(t *models.PackageTemplate) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Width = t.Width.Round(2)
	t.Length = t.Length.Round(2)
	t.Height = t.Height.Round(2)

	verr := &validation.Error{}
	if err := s.validate.Struct(t, "", verr); err != nil {
		return errors.Wrap(err, "validate template")
	}
	return verr.OrNil()
}
