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

const paymentColumns = `id, booking_id, amount_cents, method, verification, proof_refs, rejection_reason, verified_by,
	version, created_on, updated_on, verified_on`

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var verifiedOn sql.NullTime
	err := row.Scan(&p.ID, &p.BookingID, &p.AmountCents, &p.Method, &p.Verification, pq.Array(&p.ProofRefs),
		&p.RejectionReason, &p.VerifiedBy, &p.Version, &p.CreatedOn, &p.UpdatedOn, &verifiedOn)
	if err != nil {
		return nil, err
	}
	if verifiedOn.Valid {
		p.VerifiedOn = &verifiedOn.Time
	}
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	logger.EnterMethod("paymentRepository.Create", "paymentID", p.ID, "bookingID", p.BookingID)
	now := time.Now().UTC()
	if p.CreatedOn.IsZero() {
		p.CreatedOn = now
	}
	p.UpdatedOn = now
	p.Version = 1

	query := `INSERT INTO payments (` + paymentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.BookingID, p.AmountCents, p.Method, p.Verification, pq.Array(p.ProofRefs),
		p.RejectionReason, p.VerifiedBy, p.Version, p.CreatedOn, p.UpdatedOn, p.VerifiedOn)
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.Create", err, "paymentID", p.ID)
		return mapError(err)
	}
	logger.ExitMethod("paymentRepository.Create", "paymentID", p.ID)
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *domain.Payment, expectedVersion int64) error {
	now := time.Now().UTC()
	query := `UPDATE payments SET verification = $1, proof_refs = $2, rejection_reason = $3, verified_by = $4, verified_on = $5,
	          version = version + 1, updated_on = $6
	          WHERE id = $7 AND version = $8`
	logger.DatabaseCall("payments.update", query, "paymentID", p.ID, "expectedVersion", expectedVersion)
	res, err := r.db.ExecContext(ctx, query, p.Verification, pq.Array(p.ProofRefs), p.RejectionReason, p.VerifiedBy,
		p.VerifiedOn, now, p.ID, expectedVersion)
	if err != nil {
		logger.DatabaseResult("payments.update", 0, err)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("payments.update", n, err)
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM payments WHERE id = $1`, p.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	p.UpdatedOn = now
	return nil
}

func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_on`
	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
