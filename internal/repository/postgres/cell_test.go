package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var night = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestCellRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewCellRepository(db)
	ctx := context.Background()
	key := domain.CellKey{UnitID: "U1", Date: night}

	t.Run("Stored", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"status", "booking_id", "version", "updated_on"}).
			AddRow("HELD", "b1", 3, time.Now())
		mock.ExpectQuery("SELECT (.+) FROM availability_cells WHERE unit_id = \\$1 AND night = \\$2").
			WithArgs("U1", night).
			WillReturnRows(rows)

		cell, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.CellStatusHeld, cell.Status)
		assert.Equal(t, "b1", cell.BookingID)
		assert.Equal(t, int64(3), cell.Version)
	})

	t.Run("Never written", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM availability_cells").
			WithArgs("U1", night).
			WillReturnRows(sqlmock.NewRows([]string{"status", "booking_id", "version", "updated_on"}))

		cell, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.CellStatusFree, cell.Status)
		assert.Equal(t, int64(0), cell.Version)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCellRepository_CompareAndSwap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewCellRepository(db)
	ctx := context.Background()

	t.Run("Insert first version", func(t *testing.T) {
		cell := &domain.AvailabilityCell{UnitID: "U1", Date: night, Status: domain.CellStatusHeld, BookingID: "b1"}
		mock.ExpectExec("INSERT INTO availability_cells (.+) ON CONFLICT").
			WithArgs("U1", night, domain.CellStatusHeld, "b1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.CompareAndSwap(ctx, cell, 0))
		assert.Equal(t, int64(1), cell.Version)
	})

	t.Run("Insert loses race", func(t *testing.T) {
		cell := &domain.AvailabilityCell{UnitID: "U1", Date: night, Status: domain.CellStatusHeld, BookingID: "b2"}
		mock.ExpectExec("INSERT INTO availability_cells").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.CompareAndSwap(ctx, cell, 0)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.Equal(t, int64(0), cell.Version)
	})

	t.Run("Update guarded by version", func(t *testing.T) {
		cell := &domain.AvailabilityCell{UnitID: "U1", Date: night, Status: domain.CellStatusFree}
		mock.ExpectExec("UPDATE availability_cells SET (.+) WHERE unit_id = \\$4 AND night = \\$5 AND version = \\$6").
			WithArgs(domain.CellStatusFree, nil, sqlmock.AnyArg(), "U1", night, int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.CompareAndSwap(ctx, cell, 4))
		assert.Equal(t, int64(5), cell.Version)
	})

	t.Run("Stale version", func(t *testing.T) {
		cell := &domain.AvailabilityCell{UnitID: "U1", Date: night, Status: domain.CellStatusBooked, BookingID: "b1"}
		mock.ExpectExec("UPDATE availability_cells").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.CompareAndSwap(ctx, cell, 2), domain.ErrVersionConflict)
	})

	t.Run("Invalid cell never reaches the database", func(t *testing.T) {
		cell := &domain.AvailabilityCell{UnitID: "U1", Date: night, Status: domain.CellStatusBooked}
		assert.ErrorIs(t, repo.CompareAndSwap(ctx, cell, 1), domain.ErrValidation)
	})

	t.Run("Driver error", func(t *testing.T) {
		cell := &domain.AvailabilityCell{UnitID: "U1", Date: night, Status: domain.CellStatusBlocked}
		mock.ExpectExec("UPDATE availability_cells").WillReturnError(errors.New("connection reset"))

		err := repo.CompareAndSwap(ctx, cell, 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrVersionConflict)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCellRepository_ListRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewCellRepository(db)

	rows := sqlmock.NewRows([]string{"unit_id", "night", "status", "booking_id", "version", "updated_on"}).
		AddRow("U1", night, "BOOKED", "b1", 2, time.Now()).
		AddRow("U2", night.AddDate(0, 0, 1), "BLOCKED", nil, 1, time.Now())
	mock.ExpectQuery("SELECT (.+) FROM availability_cells WHERE unit_id = ANY\\(\\$1\\)").
		WithArgs(sqlmock.AnyArg(), night, night.AddDate(0, 0, 3)).
		WillReturnRows(rows)

	cells, err := repo.ListRange(context.Background(), []string{"U1", "U2"}, night, night.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, "b1", cells[0].BookingID)
	assert.Equal(t, domain.CellStatusBlocked, cells[1].Status)
	assert.Empty(t, cells[1].BookingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
