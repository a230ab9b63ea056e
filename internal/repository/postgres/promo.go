package postgres

import (
	"context"
	"database/sql"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository"

	"github.com/lib/pq"
)

const promoColumns = `id, code, package_ids, start_date, end_date, discount_type, discount_amount, min_bookings, is_active`

type promoRepository struct {
	db *sql.DB
}

func NewPromoRepository(db *sql.DB) repository.PromoRepository {
	return &promoRepository{db: db}
}

func scanPromo(row rowScanner) (*domain.Promo, error) {
	var p domain.Promo
	err := row.Scan(&p.ID, &p.Code, pq.Array(&p.PackageIDs), &p.StartDate, &p.EndDate, &p.DiscountType,
		&p.DiscountAmount, &p.MinBookings, &p.IsActive)
	if err != nil {
		return nil, err
	}
	p.StartDate = domain.TruncateDate(p.StartDate)
	p.EndDate = domain.TruncateDate(p.EndDate)
	return &p, nil
}

func (r *promoRepository) GetByID(ctx context.Context, id string) (*domain.Promo, error) {
	p, err := scanPromo(r.db.QueryRowContext(ctx, `SELECT `+promoColumns+` FROM promos WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *promoRepository) GetByCode(ctx context.Context, code string) (*domain.Promo, error) {
	p, err := scanPromo(r.db.QueryRowContext(ctx, `SELECT `+promoColumns+` FROM promos WHERE code = $1`, code))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *promoRepository) Upsert(ctx context.Context, p *domain.Promo) error {
	query := `INSERT INTO promos (` + promoColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, package_ids = EXCLUDED.package_ids,
	          start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, discount_type = EXCLUDED.discount_type,
	          discount_amount = EXCLUDED.discount_amount, min_bookings = EXCLUDED.min_bookings, is_active = EXCLUDED.is_active`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Code, pq.Array(p.PackageIDs), p.StartDate, p.EndDate,
		p.DiscountType, p.DiscountAmount, p.MinBookings, p.IsActive)
	return mapError(err)
}

func (r *promoRepository) ListActive(ctx context.Context) ([]domain.Promo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+promoColumns+` FROM promos WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []domain.Promo
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, *p)
	}
	return promos, rows.Err()
}
