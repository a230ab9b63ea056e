package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository/memory"
	"homestay-booking/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityLedger_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("Success holds every cell", func(t *testing.T) {
		f := newFixture(t)
		s := stay("2025-06-01", "2025-06-04")
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U1", "U2"}, s, "b1", domain.CellStatusHeld))

		cells, err := f.ledger.Query(ctx, []string{"U1", "U2"}, s)
		require.NoError(t, err)
		require.Len(t, cells, 6)
		for _, c := range cells {
			assert.Equal(t, domain.CellStatusHeld, c.Status)
			assert.Equal(t, "b1", c.BookingID)
		}
	})

	t.Run("Overlap fails with the first unavailable cell", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U1"}, stay("2025-06-01", "2025-06-04"), "b1", domain.CellStatusHeld))

		err := f.ledger.Reserve(ctx, []string{"U1"}, stay("2025-06-02", "2025-06-05"), "b2", domain.CellStatusHeld)
		var unavailable *domain.CellUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, "U1", unavailable.UnitID)
		assert.Equal(t, date("2025-06-02"), unavailable.Date)
		assert.Equal(t, domain.CellStatusHeld, unavailable.Status)

		// the free tail of the rejected request was not touched
		assert.Equal(t, []domain.CellStatus{domain.CellStatusFree}, f.statuses(t, []string{"U1"}, stay("2025-06-04", "2025-06-05")))
	})

	t.Run("Too many cells", func(t *testing.T) {
		f := newFixture(t)
		err := f.ledger.Reserve(ctx, []string{"U1", "U2"}, stay("2025-06-01", "2025-08-01"), "b1", domain.CellStatusHeld)
		assert.ErrorIs(t, err, domain.ErrReservationTooLarge)
	})

	t.Run("Invalid target", func(t *testing.T) {
		f := newFixture(t)
		err := f.ledger.Reserve(ctx, []string{"U1"}, stay("2025-06-01", "2025-06-02"), "b1", domain.CellStatusBlocked)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Cancelled before probe leaves cells free", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := f.ledger.Reserve(cctx, []string{"U1"}, stay("2025-06-01", "2025-06-03"), "b1", domain.CellStatusHeld)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, repeat(domain.CellStatusFree, 2), f.statuses(t, []string{"U1"}, stay("2025-06-01", "2025-06-03")))
	})

	t.Run("Lost race is rolled back and retried", func(t *testing.T) {
		store := memory.NewStore()
		// third write of the first attempt loses
		cells := &flakyCells{CellRepository: store.CellRepository, fail: map[int32]bool{3: true}}
		ledger := service.NewAvailabilityLedger(cells, service.LedgerOptions{MaxCells: 60, Attempts: 3})

		s := stay("2025-06-01", "2025-06-05")
		require.NoError(t, ledger.Reserve(ctx, []string{"U1"}, s, "b1", domain.CellStatusHeld))

		got, err := ledger.Query(ctx, []string{"U1"}, s)
		require.NoError(t, err)
		for _, c := range got {
			assert.Equal(t, domain.CellStatusHeld, c.Status)
			assert.Equal(t, "b1", c.BookingID)
		}
	})

	t.Run("Persistent contention surfaces ReservationConflict with nothing held", func(t *testing.T) {
		store := memory.NewStore()
		cells := &flakyCells{CellRepository: store.CellRepository, fail: map[int32]bool{2: true, 5: true, 8: true}}
		ledger := service.NewAvailabilityLedger(cells, service.LedgerOptions{MaxCells: 60, Attempts: 3})

		s := stay("2025-06-01", "2025-06-04")
		err := ledger.Reserve(ctx, []string{"U1"}, s, "b1", domain.CellStatusHeld)
		assert.ErrorIs(t, err, domain.ErrReservationConflict)

		got, err := ledger.Query(ctx, []string{"U1"}, s)
		require.NoError(t, err)
		for _, c := range got {
			assert.Equal(t, domain.CellStatusFree, c.Status)
			assert.Empty(t, c.BookingID)
		}
	})
}

func TestAvailabilityLedger_ConcurrentReservationsHaveAtMostOneWinner(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		const contenders = 8

		var wg sync.WaitGroup
		errs := make([]error, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// every request overlaps on 2025-06-03
				s := stay(fmt.Sprintf("2025-06-%02d", 1+i%3), fmt.Sprintf("2025-06-%02d", 4+i%2))
				errs[i] = f.ledger.Reserve(ctx, []string{"U1"}, s, fmt.Sprintf("b%d", i), domain.CellStatusHeld)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			var unavailable *domain.CellUnavailableError
			assert.True(t, errors.As(err, &unavailable) || errors.Is(err, domain.ErrReservationConflict), "unexpected error %v", err)
		}
		require.LessOrEqual(t, winners, 1, "round %d", round)

		// held cells belong to the winner, if any
		cells, err := f.ledger.Query(ctx, []string{"U1"}, stay("2025-06-01", "2025-06-06"))
		require.NoError(t, err)
		owners := map[string]bool{}
		for _, c := range cells {
			if c.Status != domain.CellStatusFree {
				owners[c.BookingID] = true
			}
		}
		assert.Len(t, owners, winners)
	}
}

func TestAvailabilityLedger_Release(t *testing.T) {
	ctx := context.Background()
	s := stay("2025-06-01", "2025-06-03")

	t.Run("Frees owned cells", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U1"}, s, "b1", domain.CellStatusBooked))
		require.NoError(t, f.ledger.Release(ctx, []string{"U1"}, s, "b1"))
		assert.Equal(t, repeat(domain.CellStatusFree, 2), f.statuses(t, []string{"U1"}, s))
	})

	t.Run("Idempotent on free cells", func(t *testing.T) {
		f := newFixture(t)
		assert.NoError(t, f.ledger.Release(ctx, []string{"U1", "U2"}, s, "b1"))
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U1"}, s, "b1", domain.CellStatusHeld))
		assert.NoError(t, f.ledger.Release(ctx, []string{"U1"}, s, "b1"))
		assert.NoError(t, f.ledger.Release(ctx, []string{"U1"}, s, "b1"))
	})

	t.Run("Cells of another booking are reported and kept", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U1"}, s, "b1", domain.CellStatusHeld))
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U2"}, s, "b2", domain.CellStatusHeld))

		err := f.ledger.Release(ctx, []string{"U1", "U2"}, s, "b1")
		var stale *domain.StaleReleaseError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, "b1", stale.BookingID)
		assert.Len(t, stale.Cells, 2)
		assert.Equal(t, "U2", stale.Cells[0].UnitID)

		assert.Equal(t, repeat(domain.CellStatusFree, 2), f.statuses(t, []string{"U1"}, s))
		assert.Equal(t, repeat(domain.CellStatusHeld, 2), f.statuses(t, []string{"U2"}, s))
	})
}

func TestAvailabilityLedger_UpgradeDowngrade(t *testing.T) {
	ctx := context.Background()
	s := stay("2025-06-01", "2025-06-03")

	t.Run("Upgrade is idempotent", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U1"}, s, "b1", domain.CellStatusHeld))
		require.NoError(t, f.ledger.Upgrade(ctx, []string{"U1"}, s, "b1"))
		require.NoError(t, f.ledger.Upgrade(ctx, []string{"U1"}, s, "b1"))
		assert.Equal(t, repeat(domain.CellStatusBooked, 2), f.statuses(t, []string{"U1"}, s))

		require.NoError(t, f.ledger.Downgrade(ctx, []string{"U1"}, s, "b1"))
		assert.Equal(t, repeat(domain.CellStatusHeld, 2), f.statuses(t, []string{"U1"}, s))
	})

	t.Run("Upgrade of released cells is stale and reverts", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Reserve(ctx, []string{"U1"}, s, "b1", domain.CellStatusHeld))
		require.NoError(t, f.ledger.Release(ctx, []string{"U1"}, stay("2025-06-02", "2025-06-03"), "b1"))

		err := f.ledger.Upgrade(ctx, []string{"U1"}, s, "b1")
		assert.ErrorIs(t, err, domain.ErrStaleTransition)
		assert.Equal(t, []domain.CellStatus{domain.CellStatusHeld, domain.CellStatusFree}, f.statuses(t, []string{"U1"}, s))
	})
}

func TestAvailabilityLedger_BlockUnblock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := stay("2025-06-10", "2025-06-12")

	require.NoError(t, f.ledger.Block(ctx, "U2", s))
	assert.Equal(t, repeat(domain.CellStatusBlocked, 2), f.statuses(t, []string{"U2"}, s))

	err := f.ledger.Reserve(ctx, []string{"U2"}, s, "b1", domain.CellStatusHeld)
	var unavailable *domain.CellUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, domain.CellStatusBlocked, unavailable.Status)

	// a booking cannot release a block
	var stale *domain.StaleReleaseError
	assert.ErrorAs(t, f.ledger.Release(ctx, []string{"U2"}, s, "b1"), &stale)

	require.NoError(t, f.ledger.Unblock(ctx, "U2", s))
	assert.Equal(t, repeat(domain.CellStatusFree, 2), f.statuses(t, []string{"U2"}, s))
	require.NoError(t, f.ledger.Reserve(ctx, []string{"U2"}, s, "b1", domain.CellStatusHeld))
}

func TestAvailabilityLedger_QueryIsNotBoundedBySpanLimit(t *testing.T) {
	f := newFixture(t)
	cells, err := f.ledger.Query(context.Background(), []string{"U1", "U2"}, stay("2025-06-01", "2025-09-01"))
	require.NoError(t, err)
	assert.Len(t, cells, 2*92)
}
