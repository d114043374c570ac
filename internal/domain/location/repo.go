package location

import "context"

type Repository interface {
	ListProvinces(ctx context.Context) ([]Province, error)
	ListDistricts(ctx context.Context, provinceID string) ([]District, error)
	ListWards(ctx context.Context, districtID string) ([]Ward, error)

	GetProvince(ctx context.Context, id string) (*Province, error)
	GetDistrict(ctx context.Context, id string) (*District, error)

	UpsertProvince(ctx context.Context, p *Province) error
	UpsertDistrict(ctx context.Context, d *District) error
	UpsertWard(ctx context.Context, w *Ward) error

	DeleteProvince(ctx context.Context, id string) error
	DeleteDistrict(ctx context.Context, id string) error
	DeleteWard(ctx context.Context, id string) error
}
