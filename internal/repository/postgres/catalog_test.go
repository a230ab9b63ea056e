package postgres_test

import (
	"context"
	"testing"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewCatalogRepository(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO lodging_units (.+) ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs("U1", "Garden room", int32(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertUnit(ctx, &domain.LodgingUnit{ID: "U1", Name: "Garden room", Capacity: 2}))

	mock.ExpectQuery("SELECT id, name, unit_ids, weekday_rate_cents, weekend_rate_cents FROM packages WHERE id = \\$1").
		WithArgs("villa").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "unit_ids", "weekday_rate_cents", "weekend_rate_cents"}).
			AddRow("villa", "Whole villa", "{U1,U2}", 50000, 80000))
	pkg, err := repo.GetPackage(ctx, "villa")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, pkg.UnitIDs)
	assert.Equal(t, int64(80000), pkg.WeekendRateCents)

	mock.ExpectQuery("SELECT id, name, capacity FROM lodging_units WHERE id = \\$1").
		WithArgs("U9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity"}))
	_, err = repo.GetUnit(ctx, "U9")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectQuery("SELECT id, name, capacity FROM lodging_units WHERE id = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity"}).AddRow("U1", "Garden room", 2).AddRow("U2", "Loft", 4))
	units, err := repo.ListUnits(ctx, []string{"U1", "U2"})
	require.NoError(t, err)
	assert.Len(t, units, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewPromoRepository(db)
	ctx := context.Background()
	cols := []string{"id", "code", "package_ids", "start_date", "end_date", "discount_type", "discount_amount", "min_bookings", "is_active"}

	mock.ExpectQuery("SELECT (.+) FROM promos WHERE code = \\$1").
		WithArgs("LONGSTAY").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("promo-1", "LONGSTAY", "{villa}", night, night.AddDate(0, 1, 0), "PERCENTAGE", 10, 2, true))
	p, err := repo.GetByCode(ctx, "LONGSTAY")
	require.NoError(t, err)
	assert.Equal(t, domain.DiscountTypePercentage, p.DiscountType)
	assert.True(t, p.AppliesToPackage("villa"))
	assert.Equal(t, int32(2), p.MinBookings)

	mock.ExpectQuery("SELECT (.+) FROM promos WHERE code = \\$1").
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.GetByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectExec("INSERT INTO promos (.+) ON CONFLICT \\(id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Upsert(ctx, p))

	mock.ExpectQuery("SELECT (.+) FROM promos WHERE is_active").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("promo-1", "LONGSTAY", "{villa}", night, night.AddDate(0, 1, 0), "PERCENTAGE", 10, 2, true))
	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}
