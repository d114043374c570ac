package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodbank/bloodbank/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) ListProvinces(ctx context.Context) ([]Province, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM province ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list provinces: %w", err)
	}
	defer rows.Close()
	items := []Province{}
	for rows.Next() {
		var p Province
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) ListDistricts(ctx context.Context, provinceID string) ([]District, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, province_id FROM district WHERE province_id = $1 ORDER BY name`, provinceID)
	if err != nil {
		return nil, fmt.Errorf("list districts: %w", err)
	}
	defer rows.Close()
	items := []District{}
	for rows.Next() {
		var d District
		if err := rows.Scan(&d.ID, &d.Name, &d.ProvinceID); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) ListWards(ctx context.Context, districtID string) ([]Ward, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, district_id FROM ward WHERE district_id = $1 ORDER BY name`, districtID)
	if err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	defer rows.Close()
	items := []Ward{}
	for rows.Next() {
		var w Ward
		if err := rows.Scan(&w.ID, &w.Name, &w.DistrictID); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *repoPG) GetProvince(ctx context.Context, id string) (*Province, error) {
	var p Province
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name FROM province WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) GetDistrict(ctx context.Context, id string) (*District, error) {
	var d District
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, province_id FROM district WHERE id = $1`, id).Scan(&d.ID, &d.Name, &d.ProvinceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) UpsertProvince(ctx context.Context, p *Province) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO province (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()`,
		p.ID, p.Name)
	return err
}

func (r *repoPG) UpsertDistrict(ctx context.Context, d *District) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO district (id, province_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET province_id = EXCLUDED.province_id, name = EXCLUDED.name, updated_at = NOW()`,
		d.ID, d.ProvinceID, d.Name)
	return err
}

func (r *repoPG) UpsertWard(ctx context.Context, w *Ward) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ward (id, district_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET district_id = EXCLUDED.district_id, name = EXCLUDED.name, updated_at = NOW()`,
		w.ID, w.DistrictID, w.Name)
	return err
}

func (r *repoPG) DeleteProvince(ctx context.Context, id string) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM province WHERE id = $1`, id))
}

func (r *repoPG) DeleteDistrict(ctx context.Context, id string) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM district WHERE id = $1`, id))
}

func (r *repoPG) DeleteWard(ctx context.Context, id string) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM ward WHERE id = $1`, id))
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
