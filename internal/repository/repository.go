package repository

import (
	"context"
	"time"

	"homestay-booking/internal/domain"
)

// CellRepository is the per-document versioned store behind the availability ledger.
// It offers single-document reads and conditional single-document writes only.
type CellRepository interface {
	// Get returns the cell, or a FREE cell with Version 0 when it was never written.
	Get(ctx context.Context, key domain.CellKey) (*domain.AvailabilityCell, error)
	// CompareAndSwap writes cell only if the stored version equals expectedVersion
	// (0 means the cell must not exist yet). On success cell.Version is expectedVersion+1.
	// A lost race returns domain.ErrVersionConflict.
	CompareAndSwap(ctx context.Context, cell *domain.AvailabilityCell, expectedVersion int64) error
	// ListRange returns stored cells for the units within [from, to); absent cells are omitted.
	ListRange(ctx context.Context, unitIDs []string, from, to time.Time) ([]domain.AvailabilityCell, error)
}

// BookingCursor is a keyset position for ListUpdatedAfter. A cursor with an empty ID
// includes bookings updated exactly at UpdatedOn.
type BookingCursor struct {
	UpdatedOn time.Time
	ID        string
}

// CursorOf returns the position just past b.
func CursorOf(b *domain.Booking) BookingCursor {
	return BookingCursor{UpdatedOn: b.UpdatedOn, ID: b.ID}
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// Update persists b only if the stored version equals expectedVersion.
	Update(ctx context.Context, b *domain.Booking, expectedVersion int64) error
	ListByRenter(ctx context.Context, renterID string, status string, page, pageSize int32) ([]domain.Booking, int32, error)
	// ListExpirable returns tentative bookings created before cutoff that have no pending or
	// verified payment, oldest first.
	ListExpirable(ctx context.Context, cutoff time.Time, limit int32) ([]domain.Booking, error)
	// ListCompletable returns confirmed, fully paid bookings checking out on or before day, oldest first.
	ListCompletable(ctx context.Context, day time.Time, limit int32) ([]domain.Booking, error)
	// ListUpdatedAfter pages through bookings in any status ordered by (UpdatedOn, ID),
	// starting strictly after the cursor.
	ListUpdatedAfter(ctx context.Context, after BookingCursor, limit int32) ([]domain.Booking, error)
	// CountQualifyingByRenter counts CONFIRMED and COMPLETED bookings for promo thresholds.
	CountQualifyingByRenter(ctx context.Context, renterID string) (int32, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment, expectedVersion int64) error
	ListByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error)
}

type PromoRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Promo, error)
	GetByCode(ctx context.Context, code string) (*domain.Promo, error)
	Upsert(ctx context.Context, p *domain.Promo) error
	ListActive(ctx context.Context) ([]domain.Promo, error)
}

type CatalogRepository interface {
	GetUnit(ctx context.Context, id string) (*domain.LodgingUnit, error)
	ListUnits(ctx context.Context, ids []string) ([]domain.LodgingUnit, error)
	GetPackage(ctx context.Context, id string) (*domain.Package, error)
	UpsertUnit(ctx context.Context, u *domain.LodgingUnit) error
	UpsertPackage(ctx context.Context, p *domain.Package) error
}
