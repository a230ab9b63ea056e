package jobs

import (
	"context"
	"testing"
	"time"

	"homestay-booking/internal/config"
	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository/memory"
	"homestay-booking/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event domain.Event) error { return nil }

type jobFixture struct {
	store    *memory.Store
	ledger   service.AvailabilityLedger
	bookings service.BookingService
	payments service.PaymentService
	runner   *JobRunner
	clock    time.Time
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	f := &jobFixture{store: memory.NewStore(), clock: time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.clock }

	ctx := context.Background()
	for _, u := range []domain.LodgingUnit{{ID: "U1", Capacity: 2}, {ID: "U2", Capacity: 2}} {
		require.NoError(t, f.store.UpsertUnit(ctx, &u))
	}
	require.NoError(t, f.store.UpsertPackage(ctx, &domain.Package{
		ID:               "villa",
		UnitIDs:          []string{"U1", "U2"},
		WeekdayRateCents: 50000,
		WeekendRateCents: 80000,
	}))

	cfg := &config.Config{Booking: config.BookingConfig{
		HoldDuration:      24 * time.Hour,
		JobBatchSize:      50,
		ReconcileLookback: 26 * time.Hour,
	}}
	f.ledger = service.NewAvailabilityLedger(f.store.CellRepository, service.LedgerOptions{MaxCells: 60, Attempts: 3})
	promos := service.NewPromoService(f.store.PromoRepository, f.store.BookingRepository)
	f.bookings = service.NewBookingService(f.store.BookingRepository, f.store.PaymentRepository, f.store.CatalogRepository,
		f.ledger, promos, nopPublisher{}, service.BookingOptions{HoldDuration: cfg.Booking.HoldDuration, Clock: clock})
	f.payments = service.NewPaymentService(f.store.PaymentRepository, f.store.BookingRepository, f.bookings, nopPublisher{},
		service.PaymentOptions{Attempts: 5, Clock: clock})

	f.runner = NewJobRunner(f.store.BookingRepository, f.bookings, cfg)
	f.runner.now = clock
	return f
}

func (f *jobFixture) book(t *testing.T, unit, checkIn, checkOut string) *domain.Booking {
	t.Helper()
	stay, err := domain.ParseStay(checkIn, checkOut)
	require.NoError(t, err)
	b, err := f.bookings.CreateBooking(context.Background(), service.CreateBookingRequest{
		RenterID:   "renter-1",
		PackageID:  "villa",
		UnitIDs:    []string{unit},
		Stay:       stay,
		GuestCount: 1,
	})
	require.NoError(t, err)
	return b
}

func (f *jobFixture) status(t *testing.T, id string) domain.BookingStatus {
	t.Helper()
	b, err := f.store.BookingRepository.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func (f *jobFixture) cells(t *testing.T, b *domain.Booking) []domain.AvailabilityCell {
	t.Helper()
	cells, err := f.ledger.Query(context.Background(), b.UnitIDs, b.Stay())
	require.NoError(t, err)
	return cells
}

func TestExpireTentativeBookings(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	lapsed := f.book(t, "U1", "2025-06-01", "2025-06-03")
	awaiting := f.book(t, "U2", "2025-06-01", "2025-06-03")
	_, err := f.payments.SubmitPayment(ctx, awaiting.ID, 10000, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	f.clock = f.clock.Add(20 * time.Hour)
	fresh := f.book(t, "U1", "2025-07-01", "2025-07-03")

	f.clock = f.clock.Add(5 * time.Hour)
	f.runner.ExpireTentativeBookings()

	assert.Equal(t, domain.BookingStatusExpired, f.status(t, lapsed.ID))
	assert.Equal(t, domain.BookingStatusTentative, f.status(t, awaiting.ID))
	assert.Equal(t, domain.BookingStatusTentative, f.status(t, fresh.ID))
	for _, c := range f.cells(t, lapsed) {
		assert.Equal(t, domain.CellStatusFree, c.Status)
	}
}

func TestCompleteFinishedBookings(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	paid := f.book(t, "U1", "2025-06-01", "2025-06-03")
	p, err := f.payments.SubmitPayment(ctx, paid.ID, paid.TotalPriceCents, domain.PaymentMethodCash, "")
	require.NoError(t, err)
	_, b, err := f.payments.VerifyPayment(ctx, p.ID, "staff-1")
	require.NoError(t, err)
	require.Equal(t, domain.BookingStatusConfirmed, b.Status)
	require.True(t, b.FullyPaid)

	partial := f.book(t, "U2", "2025-06-01", "2025-06-03")
	p, err = f.payments.SubmitPayment(ctx, partial.ID, 10000, domain.PaymentMethodCash, "")
	require.NoError(t, err)
	_, _, err = f.payments.VerifyPayment(ctx, p.ID, "staff-1")
	require.NoError(t, err)

	f.runner.CompleteFinishedBookings()
	assert.Equal(t, domain.BookingStatusConfirmed, f.status(t, paid.ID), "stay not over yet")

	f.clock = time.Date(2025, 6, 3, 11, 0, 0, 0, time.UTC)
	f.runner.CompleteFinishedBookings()

	assert.Equal(t, domain.BookingStatusCompleted, f.status(t, paid.ID))
	assert.Equal(t, domain.BookingStatusConfirmed, f.status(t, partial.ID))
	for _, c := range f.cells(t, paid) {
		assert.Equal(t, domain.CellStatusBooked, c.Status)
	}
}

func TestReconcileReservations(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	confirmed := f.book(t, "U1", "2025-06-01", "2025-06-03")
	_, err := f.bookings.ConfirmBooking(ctx, confirmed.ID)
	require.NoError(t, err)
	// crash between the status write and the upgrade
	require.NoError(t, f.ledger.Downgrade(ctx, confirmed.UnitIDs, confirmed.Stay(), confirmed.ID))

	abandoned := f.book(t, "U2", "2025-06-01", "2025-06-03")
	b, err := f.store.BookingRepository.GetByID(ctx, abandoned.ID)
	require.NoError(t, err)
	b.Status = domain.BookingStatusCancelled
	// crash between the status write and the release
	require.NoError(t, f.store.BookingRepository.Update(ctx, b, b.Version))

	f.runner.ReconcileReservations()

	for _, c := range f.cells(t, confirmed) {
		assert.Equal(t, domain.CellStatusBooked, c.Status)
		assert.Equal(t, confirmed.ID, c.BookingID)
	}
	for _, c := range f.cells(t, abandoned) {
		assert.Equal(t, domain.CellStatusFree, c.Status)
	}
}

func TestRunWithRecovery(t *testing.T) {
	f := newJobFixture(t)
	assert.NotPanics(t, func() {
		f.runner.runWithRecovery("boom", func() { panic("boom") })
	})
}

func TestExpireTentativeBookings_SkippedHoldsDoNotStarveBatch(t *testing.T) {
	f := newJobFixture(t)
	f.runner.config.Booking.JobBatchSize = 1
	ctx := context.Background()

	for _, unit := range []string{"U1", "U2"} {
		awaiting := f.book(t, unit, "2025-06-01", "2025-06-03")
		_, err := f.payments.SubmitPayment(ctx, awaiting.ID, 10000, domain.PaymentMethodBankTransfer, "")
		require.NoError(t, err)
	}
	f.clock = f.clock.Add(time.Hour)
	first := f.book(t, "U1", "2025-07-01", "2025-07-03")
	second := f.book(t, "U2", "2025-07-01", "2025-07-03")

	f.clock = f.clock.Add(25 * time.Hour)
	f.runner.ExpireTentativeBookings()

	assert.Equal(t, domain.BookingStatusExpired, f.status(t, first.ID))
	assert.Equal(t, domain.BookingStatusExpired, f.status(t, second.ID))
}

func TestCompleteFinishedBookings_FutureCheckoutsDoNotStarveBatch(t *testing.T) {
	f := newJobFixture(t)
	f.runner.config.Booking.JobBatchSize = 1
	ctx := context.Background()

	for _, unit := range []string{"U1", "U2"} {
		later := f.book(t, unit, "2025-08-01", "2025-08-03")
		_, err := f.bookings.ConfirmBooking(ctx, later.ID)
		require.NoError(t, err)
	}

	f.clock = f.clock.Add(time.Hour)
	var finished []*domain.Booking
	for _, unit := range []string{"U1", "U2"} {
		b := f.book(t, unit, "2025-06-01", "2025-06-03")
		p, err := f.payments.SubmitPayment(ctx, b.ID, b.TotalPriceCents, domain.PaymentMethodCash, "")
		require.NoError(t, err)
		_, _, err = f.payments.VerifyPayment(ctx, p.ID, "staff-1")
		require.NoError(t, err)
		finished = append(finished, b)
	}

	f.clock = time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC)
	f.runner.CompleteFinishedBookings()

	for _, b := range finished {
		assert.Equal(t, domain.BookingStatusCompleted, f.status(t, b.ID))
	}
}

func TestReconcileReservations_PagesPastHealthyBookings(t *testing.T) {
	f := newJobFixture(t)
	f.runner.config.Booking.JobBatchSize = 1
	ctx := context.Background()

	f.book(t, "U1", "2025-06-01", "2025-06-03")
	f.book(t, "U2", "2025-06-01", "2025-06-03")
	f.book(t, "U1", "2025-06-05", "2025-06-07")

	broken := f.book(t, "U2", "2025-06-05", "2025-06-07")
	_, err := f.bookings.ConfirmBooking(ctx, broken.ID)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Downgrade(ctx, broken.UnitIDs, broken.Stay(), broken.ID))

	f.runner.ReconcileReservations()

	for _, c := range f.cells(t, broken) {
		assert.Equal(t, domain.CellStatusBooked, c.Status)
	}
}
