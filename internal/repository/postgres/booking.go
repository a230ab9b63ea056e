package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"

	"github.com/lib/pq"
)

const bookingColumns = `id, renter_id, package_id, unit_ids, check_in, check_out, guest_count, status,
	subtotal_cents, discount_cents, total_price_cents, promo_id, paid_cents, fully_paid, cancel_reason,
	version, created_on, updated_on, completed_on`

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) repository.BookingRepository {
	return &bookingRepository{db: db}
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	var promoID sql.NullString
	var completedOn sql.NullTime
	err := row.Scan(&b.ID, &b.RenterID, &b.PackageID, pq.Array(&b.UnitIDs), &b.CheckIn, &b.CheckOut, &b.GuestCount, &b.Status,
		&b.SubtotalCents, &b.DiscountCents, &b.TotalPriceCents, &promoID, &b.PaidCents, &b.FullyPaid, &b.CancelReason,
		&b.Version, &b.CreatedOn, &b.UpdatedOn, &completedOn)
	if err != nil {
		return nil, err
	}
	b.CheckIn = domain.TruncateDate(b.CheckIn)
	b.CheckOut = domain.TruncateDate(b.CheckOut)
	if promoID.Valid {
		b.PromoID = &promoID.String
	}
	if completedOn.Valid {
		b.CompletedOn = &completedOn.Time
	}
	return &b, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Create", "bookingID", b.ID)
	now := time.Now().UTC()
	if b.CreatedOn.IsZero() {
		b.CreatedOn = now
	}
	b.UpdatedOn = now
	b.Version = 1

	query := `INSERT INTO bookings (` + bookingColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.db.ExecContext(ctx, query, b.ID, b.RenterID, b.PackageID, pq.Array(b.UnitIDs), b.CheckIn, b.CheckOut,
		b.GuestCount, b.Status, b.SubtotalCents, b.DiscountCents, b.TotalPriceCents, b.PromoID, b.PaidCents, b.FullyPaid,
		b.CancelReason, b.Version, b.CreatedOn, b.UpdatedOn, b.CompletedOn)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Create", err, "bookingID", b.ID)
		return mapError(err)
	}
	logger.ExitMethod("bookingRepository.Create", "bookingID", b.ID)
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return b, nil
}

// Update writes the mutable booking fields guarded by the stored version.
func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking, expectedVersion int64) error {
	now := time.Now().UTC()
	query := `UPDATE bookings SET status = $1, paid_cents = $2, fully_paid = $3, cancel_reason = $4, completed_on = $5,
	          version = version + 1, updated_on = $6
	          WHERE id = $7 AND version = $8`
	logger.DatabaseCall("bookings.update", query, "bookingID", b.ID, "expectedVersion", expectedVersion)
	res, err := r.db.ExecContext(ctx, query, b.Status, b.PaidCents, b.FullyPaid, b.CancelReason, b.CompletedOn, now, b.ID, expectedVersion)
	if err != nil {
		logger.DatabaseResult("bookings.update", 0, err)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("bookings.update", n, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrConflict(ctx, b.ID)
	}
	b.Version = expectedVersion + 1
	b.UpdatedOn = now
	return nil
}

func (r *bookingRepository) missingOrConflict(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrVersionConflict
}

func (r *bookingRepository) ListByRenter(ctx context.Context, renterID string, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where := ` WHERE renter_id = $1`
	args := []any{renterID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bookings`+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings` + where + ` ORDER BY created_on DESC`
	if status != "" {
		query += ` LIMIT $3 OFFSET $4`
	} else {
		query += ` LIMIT $2 OFFSET $3`
	}
	args = append(args, pageSize, offset)

	bookings, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return bookings, count, nil
}

func (r *bookingRepository) ListExpirable(ctx context.Context, cutoff time.Time, limit int32) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b
	          WHERE b.status = $1 AND b.created_on < $2
	            AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.booking_id = b.id AND p.verification <> $3)
	          ORDER BY b.created_on LIMIT $4`
	return r.query(ctx, query, domain.BookingStatusTentative, cutoff, domain.PaymentRejected, limit)
}

func (r *bookingRepository) ListCompletable(ctx context.Context, day time.Time, limit int32) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE status = $1 AND fully_paid AND check_out <= $2
	          ORDER BY created_on LIMIT $3`
	return r.query(ctx, query, domain.BookingStatusConfirmed, domain.TruncateDate(day), limit)
}

func (r *bookingRepository) ListUpdatedAfter(ctx context.Context, after repository.BookingCursor, limit int32) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE (updated_on, id) > ($1, $2)
	          ORDER BY updated_on, id LIMIT $3`
	return r.query(ctx, query, after.UpdatedOn, after.ID, limit)
}

func (r *bookingRepository) CountQualifyingByRenter(ctx context.Context, renterID string) (int32, error) {
	query := `SELECT count(*) FROM bookings WHERE renter_id = $1 AND status = ANY($2)`
	statuses := []string{string(domain.BookingStatusConfirmed), string(domain.BookingStatusCompleted)}
	var count int32
	err := r.db.QueryRowContext(ctx, query, renterID, pq.Array(statuses)).Scan(&count)
	return count, err
}

func (r *bookingRepository) query(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
