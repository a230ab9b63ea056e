package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository"
	"homestay-booking/internal/repository/memory"
	"homestay-booking/internal/service"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

func date(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func stay(in, out string) domain.Stay {
	return domain.NewStay(date(in), date(out))
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) count(t domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// flakyCells loses the CAS calls whose sequence numbers are listed in fail.
type flakyCells struct {
	repository.CellRepository
	calls atomic.Int32
	fail  map[int32]bool
}

func (f *flakyCells) CompareAndSwap(ctx context.Context, cell *domain.AvailabilityCell, expectedVersion int64) error {
	n := f.calls.Add(1)
	if f.fail[n] {
		return domain.ErrVersionConflict
	}
	return f.CellRepository.CompareAndSwap(ctx, cell, expectedVersion)
}

type fixture struct {
	store    *memory.Store
	events   *recorder
	ledger   service.AvailabilityLedger
	promos   service.PromoService
	bookings service.BookingService
	payments service.PaymentService
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, 0)
}

func newFixtureWith(t *testing.T, cells repository.CellRepository, downPaymentPercent int64) *fixture {
	t.Helper()
	store := memory.NewStore()
	if cells == nil {
		cells = store.CellRepository
	}
	clock := now
	f := &fixture{store: store, events: &recorder{}, clock: &clock}
	f.ledger = service.NewAvailabilityLedger(cells, service.LedgerOptions{MaxCells: 60, Attempts: 3})
	f.promos = service.NewPromoService(store.PromoRepository, store.BookingRepository)
	f.bookings = service.NewBookingService(store.BookingRepository, store.PaymentRepository, store.CatalogRepository,
		f.ledger, f.promos, f.events, service.BookingOptions{
			HoldDuration:       24 * time.Hour,
			HorizonDays:        365,
			MaxNights:          14,
			TransitionAttempts: 5,
			DownPaymentPercent: downPaymentPercent,
			Clock:              func() time.Time { return *f.clock },
		})
	f.payments = service.NewPaymentService(store.PaymentRepository, store.BookingRepository, f.bookings, f.events,
		service.PaymentOptions{Attempts: 5, Clock: func() time.Time { return *f.clock }})

	ctx := context.Background()
	for _, u := range []domain.LodgingUnit{{ID: "U1", Capacity: 2}, {ID: "U2", Capacity: 4}} {
		require.NoError(t, store.UpsertUnit(ctx, &u))
	}
	require.NoError(t, store.UpsertPackage(ctx, &domain.Package{
		ID:               "villa",
		UnitIDs:          []string{"U1", "U2"},
		WeekdayRateCents: 50000,
		WeekendRateCents: 80000,
	}))
	return f
}

func (f *fixture) book(t *testing.T, renterID string, units []string, s domain.Stay) *domain.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), service.CreateBookingRequest{
		RenterID:   renterID,
		PackageID:  "villa",
		UnitIDs:    units,
		Stay:       s,
		GuestCount: 2,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) statuses(t *testing.T, units []string, s domain.Stay) []domain.CellStatus {
	t.Helper()
	cells, err := f.ledger.Query(context.Background(), units, s)
	require.NoError(t, err)
	out := make([]domain.CellStatus, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.Status)
	}
	return out
}

func repeat(status domain.CellStatus, n int) []domain.CellStatus {
	out := make([]domain.CellStatus, n)
	for i := range out {
		out[i] = status
	}
	return out
}
