package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service implements Source over a Repository and adds the admin writes.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListProvinces(ctx context.Context) ([]Province, error) {
	return s.repo.ListProvinces(ctx)
}

func (s *Service) ListDistricts(ctx context.Context, provinceID string) ([]District, error) {
	return s.repo.ListDistricts(ctx, provinceID)
}

func (s *Service) ListWards(ctx context.Context, districtID string) ([]Ward, error) {
	return s.repo.ListWards(ctx, districtID)
}

func (s *Service) SaveProvince(ctx context.Context, p *Province) error {
	if err := normalize(&p.ID, &p.Name); err != nil {
		return err
	}
	return s.repo.UpsertProvince(ctx, p)
}

func (s *Service) SaveDistrict(ctx context.Context, d *District) error {
	if err := normalize(&d.ID, &d.Name); err != nil {
		return err
	}
	d.ProvinceID = strings.TrimSpace(d.ProvinceID)
	if _, err := s.repo.GetProvince(ctx, d.ProvinceID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: unknown province %q", ErrInvalid, d.ProvinceID)
		}
		return err
	}
	return s.repo.UpsertDistrict(ctx, d)
}

func (s *Service) SaveWard(ctx context.Context, w *Ward) error {
	if err := normalize(&w.ID, &w.Name); err != nil {
		return err
	}
	w.DistrictID = strings.TrimSpace(w.DistrictID)
	if _, err := s.repo.GetDistrict(ctx, w.DistrictID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: unknown district %q", ErrInvalid, w.DistrictID)
		}
		return err
	}
	return s.repo.UpsertWard(ctx, w)
}

func (s *Service) DeleteProvince(ctx context.Context, id string) error {
	return s.repo.DeleteProvince(ctx, id)
}

func (s *Service) DeleteDistrict(ctx context.Context, id string) error {
	return s.repo.DeleteDistrict(ctx, id)
}

func (s *Service) DeleteWard(ctx context.Context, id string) error {
	return s.repo.DeleteWard(ctx, id)
}

func normalize(id, name *string) error {
	*id = strings.TrimSpace(*id)
	*name = strings.TrimSpace(*name)
	if *id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if *name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return nil
}
