package postgres_test

import (
	"context"
	"testing"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository"
	"homestay-booking/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingCols = []string{"id", "renter_id", "package_id", "unit_ids", "check_in", "check_out", "guest_count", "status",
	"subtotal_cents", "discount_cents", "total_price_cents", "promo_id", "paid_cents", "fully_paid", "cancel_reason",
	"version", "created_on", "updated_on", "completed_on"}

func bookingRow(rows *sqlmock.Rows, id, status string) *sqlmock.Rows {
	return rows.AddRow(id, "r1", "villa", "{U1,U2}", night, night.AddDate(0, 0, 2), 3, status,
		260000, 0, 260000, nil, 0, false, "", 1, time.Now(), time.Now(), nil)
}

func TestBookingRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		b := &domain.Booking{ID: "b1", RenterID: "r1", PackageID: "villa", UnitIDs: []string{"U1"},
			CheckIn: night, CheckOut: night.AddDate(0, 0, 2), GuestCount: 2, Status: domain.BookingStatusTentative,
			TotalPriceCents: 100000}
		mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, b))
		assert.Equal(t, int64(1), b.Version)
		assert.False(t, b.CreatedOn.IsZero())
	})

	t.Run("Duplicate id", func(t *testing.T) {
		b := &domain.Booking{ID: "b1", Status: domain.BookingStatusTentative}
		mock.ExpectExec("INSERT INTO bookings").WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.Create(ctx, b), domain.ErrVersionConflict)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("b1").
			WillReturnRows(bookingRow(sqlmock.NewRows(bookingCols), "b1", "CONFIRMED"))

		b, err := repo.GetByID(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
		assert.Equal(t, []string{"U1", "U2"}, b.UnitIDs)
		assert.Nil(t, b.PromoID)
		assert.Nil(t, b.CompletedOn)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(bookingCols))

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		b := &domain.Booking{ID: "b1", Status: domain.BookingStatusConfirmed, PaidCents: 100000, FullyPaid: true}
		mock.ExpectExec("UPDATE bookings SET (.+) WHERE id = \\$7 AND version = \\$8").
			WithArgs(domain.BookingStatusConfirmed, int64(100000), true, "", nil, sqlmock.AnyArg(), "b1", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, b, 2))
		assert.Equal(t, int64(3), b.Version)
	})

	t.Run("Version conflict", func(t *testing.T) {
		b := &domain.Booking{ID: "b1", Status: domain.BookingStatusCancelled}
		mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT 1 FROM bookings").WithArgs("b1").
			WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		assert.ErrorIs(t, repo.Update(ctx, b, 2), domain.ErrVersionConflict)
	})

	t.Run("Missing booking", func(t *testing.T) {
		b := &domain.Booking{ID: "gone", Status: domain.BookingStatusCancelled}
		mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT 1 FROM bookings").WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"one"}))

		assert.ErrorIs(t, repo.Update(ctx, b, 1), domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListByRenter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings WHERE renter_id = \\$1 AND status = \\$2").
		WithArgs("r1", "TENTATIVE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	rows := sqlmock.NewRows(bookingCols)
	bookingRow(rows, "b1", "TENTATIVE")
	bookingRow(rows, "b2", "TENTATIVE")
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE renter_id = \\$1 AND status = \\$2 ORDER BY created_on DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("r1", "TENTATIVE", int32(2), int32(2)).
		WillReturnRows(rows)

	bookings, count, err := repo.ListByRenter(context.Background(), "r1", "TENTATIVE", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), count)
	assert.Len(t, bookings, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListExpirable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	cutoff := time.Date(2025, 5, 19, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM bookings b\\s+WHERE b.status = \\$1 AND b.created_on < \\$2\\s+" +
		"AND NOT EXISTS \\(SELECT 1 FROM payments p WHERE p.booking_id = b.id AND p.verification <> \\$3\\)").
		WithArgs(domain.BookingStatusTentative, cutoff, domain.PaymentRejected, int32(50)).
		WillReturnRows(bookingRow(sqlmock.NewRows(bookingCols), "b1", "TENTATIVE"))

	bookings, err := repo.ListExpirable(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "b1", bookings[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListCompletable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	now := time.Date(2025, 6, 3, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM bookings\\s+WHERE status = \\$1 AND fully_paid AND check_out <= \\$2").
		WithArgs(domain.BookingStatusConfirmed, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), int32(20)).
		WillReturnRows(bookingRow(sqlmock.NewRows(bookingCols), "b1", "CONFIRMED"))

	bookings, err := repo.ListCompletable(context.Background(), now, 20)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, domain.BookingStatusConfirmed, bookings[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListUpdatedAfter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	cursor := repository.BookingCursor{UpdatedOn: time.Date(2025, 5, 19, 3, 0, 0, 0, time.UTC), ID: "b0"}

	mock.ExpectQuery("SELECT (.+) FROM bookings\\s+WHERE \\(updated_on, id\\) > \\(\\$1, \\$2\\)\\s+ORDER BY updated_on, id LIMIT \\$3").
		WithArgs(cursor.UpdatedOn, "b0", int32(200)).
		WillReturnRows(bookingRow(bookingRow(sqlmock.NewRows(bookingCols), "b1", "CANCELLED"), "b2", "CONFIRMED"))

	bookings, err := repo.ListUpdatedAfter(context.Background(), cursor, 200)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, domain.BookingStatusCancelled, bookings[0].Status)
	assert.Equal(t, "b2", repository.CursorOf(&bookings[1]).ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_CountQualifyingByRenter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewBookingRepository(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings WHERE renter_id = \\$1 AND status = ANY\\(\\$2\\)").
		WithArgs("r1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountQualifyingByRenter(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int32(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
