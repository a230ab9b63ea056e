package service

import (
	"context"
	"errors"
	"fmt"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"
)

type LedgerOptions struct {
	// MaxCells bounds unit count × night count of a single reservation.
	MaxCells int
	// Attempts is how many times a reservation re-runs probe and commit after losing a race.
	Attempts int
}

type availabilityLedger struct {
	cells    repository.CellRepository
	maxCells int
	attempts int
}

func NewAvailabilityLedger(cells repository.CellRepository, opts LedgerOptions) AvailabilityLedger {
	if opts.MaxCells <= 0 {
		opts.MaxCells = 120
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	return &availabilityLedger{cells: cells, maxCells: opts.MaxCells, attempts: opts.Attempts}
}

func cellKeys(unitIDs []string, stay domain.Stay) ([]domain.CellKey, error) {
	if len(unitIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one unit is required", domain.ErrValidation)
	}
	if !stay.Valid() {
		return nil, fmt.Errorf("%w: empty date range %s", domain.ErrValidation, stay)
	}
	return domain.CellKeys(unitIDs, stay), nil
}

// keys is cellKeys bounded by the reservation span limit.
func (l *availabilityLedger) keys(unitIDs []string, stay domain.Stay) ([]domain.CellKey, error) {
	keys, err := cellKeys(unitIDs, stay)
	if err != nil {
		return nil, err
	}
	if len(keys) > l.maxCells {
		return nil, fmt.Errorf("%w: %d cells requested, limit is %d", domain.ErrReservationTooLarge, len(keys), l.maxCells)
	}
	return keys, nil
}

func (l *availabilityLedger) Reserve(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string, target domain.CellStatus) error {
	logger.EnterMethod("availabilityLedger.Reserve", "bookingID", bookingID, "units", unitIDs, "stay", stay.String())
	if bookingID == "" || !target.Occupied() {
		err := fmt.Errorf("%w: reservation needs a booking and a HELD or BOOKED target", domain.ErrValidation)
		logger.ExitMethodWithError("availabilityLedger.Reserve", err, "bookingID", bookingID)
		return err
	}
	keys, err := l.keys(unitIDs, stay)
	if err != nil {
		logger.ExitMethodWithError("availabilityLedger.Reserve", err, "bookingID", bookingID)
		return err
	}
	if err := l.acquire(ctx, keys, target, bookingID); err != nil {
		logger.ExitMethodWithError("availabilityLedger.Reserve", err, "bookingID", bookingID)
		return err
	}
	logger.ExitMethod("availabilityLedger.Reserve", "bookingID", bookingID, "cells", len(keys))
	return nil
}

func (l *availabilityLedger) Block(ctx context.Context, unitID string, stay domain.Stay) error {
	keys, err := l.keys([]string{unitID}, stay)
	if err != nil {
		return err
	}
	if err := l.acquire(ctx, keys, domain.CellStatusBlocked, ""); err != nil {
		return err
	}
	logger.Info("Unit blocked", "unitID", unitID, "stay", stay.String())
	return nil
}

// acquire runs probe then commit, repeating the whole sequence when a conditional write loses.
// Cancellation is honoured only before the first probe; afterwards the sequence always ends in
// full commit or full rollback.
func (l *availabilityLedger) acquire(ctx context.Context, keys []domain.CellKey, target domain.CellStatus, bookingID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	for attempt := 1; attempt <= l.attempts; attempt++ {
		probed, err := l.probe(ctx, keys)
		if err != nil {
			return err
		}

		err = l.commit(ctx, probed, target, bookingID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		logger.Contention("ledger.reserve", "bookingID", bookingID, "attempt", attempt)
	}
	return fmt.Errorf("%w: gave up after %d attempts", domain.ErrReservationConflict, l.attempts)
}

func (l *availabilityLedger) probe(ctx context.Context, keys []domain.CellKey) ([]*domain.AvailabilityCell, error) {
	probed := make([]*domain.AvailabilityCell, 0, len(keys))
	for _, key := range keys {
		cell, err := l.cells.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read cell %s: %w", key, err)
		}
		if cell.Status != domain.CellStatusFree {
			return nil, &domain.CellUnavailableError{UnitID: key.UnitID, Date: key.Date, Status: cell.Status}
		}
		probed = append(probed, cell)
	}
	return probed, nil
}

func (l *availabilityLedger) commit(ctx context.Context, probed []*domain.AvailabilityCell, target domain.CellStatus, bookingID string) error {
	committed := make([]*domain.AvailabilityCell, 0, len(probed))
	for _, cell := range probed {
		next := *cell
		next.Status = target
		next.BookingID = bookingID
		if err := l.cells.CompareAndSwap(ctx, &next, cell.Version); err != nil {
			l.rollback(ctx, committed, bookingID)
			return err
		}
		committed = append(committed, &next)
	}
	return nil
}

// rollback returns cells committed by this operation to FREE. A cell touched by someone else
// in between is left to them.
func (l *availabilityLedger) rollback(ctx context.Context, committed []*domain.AvailabilityCell, bookingID string) {
	for _, cell := range committed {
		owned := func(c *domain.AvailabilityCell) bool {
			return c.Status == cell.Status && c.BookingID == bookingID
		}
		if _, err := l.transition(ctx, cell.Key(), owned, domain.CellStatusFree, ""); err != nil {
			logger.Error("Failed to roll back reserved cell", "cell", cell.Key().ID(), "bookingID", bookingID, "error", err)
		}
	}
}

// transition moves one cell to (status, bookingID) if match accepts its current state, retrying
// on lost races. It reports false without writing when match rejects the cell.
func (l *availabilityLedger) transition(ctx context.Context, key domain.CellKey, match func(*domain.AvailabilityCell) bool, status domain.CellStatus, bookingID string) (bool, error) {
	for attempt := 1; attempt <= l.attempts; attempt++ {
		cell, err := l.cells.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("failed to read cell %s: %w", key, err)
		}
		if cell.Status == status && cell.BookingID == bookingID {
			return true, nil
		}
		if !match(cell) {
			return false, nil
		}
		next := *cell
		next.Status = status
		next.BookingID = bookingID
		err = l.cells.CompareAndSwap(ctx, &next, cell.Version)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return false, fmt.Errorf("failed to write cell %s: %w", key, err)
		}
		logger.Contention("ledger.transition", "cell", key.ID(), "attempt", attempt)
	}
	return false, fmt.Errorf("%w: cell %s kept changing", domain.ErrReservationConflict, key)
}

func (l *availabilityLedger) Release(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string) error {
	logger.EnterMethod("availabilityLedger.Release", "bookingID", bookingID, "stay", stay.String())
	keys, err := cellKeys(unitIDs, stay)
	if err != nil {
		logger.ExitMethodWithError("availabilityLedger.Release", err, "bookingID", bookingID)
		return err
	}
	ctx = context.WithoutCancel(ctx)

	owned := func(c *domain.AvailabilityCell) bool {
		return c.Status.Occupied() && c.BookingID == bookingID
	}
	var stale []domain.CellKey
	for _, key := range keys {
		ok, err := l.transition(ctx, key, owned, domain.CellStatusFree, "")
		if err != nil {
			logger.ExitMethodWithError("availabilityLedger.Release", err, "bookingID", bookingID)
			return err
		}
		if !ok {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		err := &domain.StaleReleaseError{BookingID: bookingID, Cells: stale}
		logger.Warn("Release skipped cells owned elsewhere", "bookingID", bookingID, "error", err)
		return err
	}
	logger.ExitMethod("availabilityLedger.Release", "bookingID", bookingID, "cells", len(keys))
	return nil
}

// Upgrade turns the booking's HELD cells into BOOKED ones. Cells already BOOKED for the
// booking are left as they are. If any cell is not owned by the booking the cells upgraded
// so far are reverted and domain.ErrStaleTransition is returned.
func (l *availabilityLedger) Upgrade(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string) error {
	return l.retag(ctx, unitIDs, stay, bookingID, domain.CellStatusHeld, domain.CellStatusBooked)
}

// Downgrade is the inverse of Upgrade.
func (l *availabilityLedger) Downgrade(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string) error {
	return l.retag(ctx, unitIDs, stay, bookingID, domain.CellStatusBooked, domain.CellStatusHeld)
}

func (l *availabilityLedger) retag(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string, from, to domain.CellStatus) error {
	keys, err := cellKeys(unitIDs, stay)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	var done []domain.CellKey
	for _, key := range keys {
		ok, err := l.transition(ctx, key, func(c *domain.AvailabilityCell) bool {
			return c.Status == from && c.BookingID == bookingID
		}, to, bookingID)
		if err == nil && ok {
			done = append(done, key)
			continue
		}
		for _, k := range done {
			if _, rerr := l.transition(ctx, k, func(c *domain.AvailabilityCell) bool {
				return c.Status == to && c.BookingID == bookingID
			}, from, bookingID); rerr != nil {
				logger.Error("Failed to revert cell", "cell", k.ID(), "bookingID", bookingID, "error", rerr)
			}
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: cell %s is no longer %s for booking %s", domain.ErrStaleTransition, key, from, bookingID)
	}
	return nil
}

func (l *availabilityLedger) Unblock(ctx context.Context, unitID string, stay domain.Stay) error {
	keys, err := cellKeys([]string{unitID}, stay)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	blocked := func(c *domain.AvailabilityCell) bool { return c.Status == domain.CellStatusBlocked }
	var skipped []domain.CellKey
	for _, key := range keys {
		ok, err := l.transition(ctx, key, blocked, domain.CellStatusFree, "")
		if err != nil {
			return err
		}
		if !ok {
			skipped = append(skipped, key)
		}
	}
	if len(skipped) > 0 {
		return &domain.StaleReleaseError{Cells: skipped}
	}
	logger.Info("Unit unblocked", "unitID", unitID, "stay", stay.String())
	return nil
}

// Query returns one cell per unit and night in CellKeys order. It is a snapshot for display;
// Reserve probes again.
func (l *availabilityLedger) Query(ctx context.Context, unitIDs []string, stay domain.Stay) ([]domain.AvailabilityCell, error) {
	keys, err := cellKeys(unitIDs, stay)
	if err != nil {
		return nil, err
	}
	stored, err := l.cells.ListRange(ctx, unitIDs, stay.CheckIn, stay.CheckOut)
	if err != nil {
		return nil, fmt.Errorf("failed to list cells: %w", err)
	}
	byID := make(map[string]domain.AvailabilityCell, len(stored))
	for _, c := range stored {
		byID[c.Key().ID()] = c
	}
	out := make([]domain.AvailabilityCell, 0, len(keys))
	for _, key := range keys {
		if c, ok := byID[key.ID()]; ok {
			out = append(out, c)
			continue
		}
		out = append(out, *domain.NewFreeCell(key))
	}
	return out, nil
}
