package postgres

import (
	"database/sql"
	"errors"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository"

	"github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.CellRepository
	repository.BookingRepository
	repository.PaymentRepository
	repository.PromoRepository
	repository.CatalogRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                db,
		CellRepository:    NewCellRepository(db),
		BookingRepository: NewBookingRepository(db),
		PaymentRepository: NewPaymentRepository(db),
		PromoRepository:   NewPromoRepository(db),
		CatalogRepository: NewCatalogRepository(db),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const uniqueViolation = "23505"

// mapError translates driver errors into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrVersionConflict
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
