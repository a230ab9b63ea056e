package postgres

import (
	"context"
	"database/sql"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository"

	"github.com/lib/pq"
)

type catalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) repository.CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetUnit(ctx context.Context, id string) (*domain.LodgingUnit, error) {
	var u domain.LodgingUnit
	err := r.db.QueryRowContext(ctx, `SELECT id, name, capacity FROM lodging_units WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Capacity)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (r *catalogRepository) ListUnits(ctx context.Context, ids []string) ([]domain.LodgingUnit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, capacity FROM lodging_units WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []domain.LodgingUnit
	for rows.Next() {
		var u domain.LodgingUnit
		if err := rows.Scan(&u.ID, &u.Name, &u.Capacity); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *catalogRepository) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	var p domain.Package
	query := `SELECT id, name, unit_ids, weekday_rate_cents, weekend_rate_cents FROM packages WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.Name, pq.Array(&p.UnitIDs), &p.WeekdayRateCents, &p.WeekendRateCents)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *catalogRepository) UpsertUnit(ctx context.Context, u *domain.LodgingUnit) error {
	query := `INSERT INTO lodging_units (id, name, capacity) VALUES ($1, $2, $3)
	          ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, capacity = EXCLUDED.capacity`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Name, u.Capacity)
	return err
}

func (r *catalogRepository) UpsertPackage(ctx context.Context, p *domain.Package) error {
	query := `INSERT INTO packages (id, name, unit_ids, weekday_rate_cents, weekend_rate_cents) VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, unit_ids = EXCLUDED.unit_ids,
	          weekday_rate_cents = EXCLUDED.weekday_rate_cents, weekend_rate_cents = EXCLUDED.weekend_rate_cents`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, pq.Array(p.UnitIDs), p.WeekdayRateCents, p.WeekendRateCents)
	return err
}
