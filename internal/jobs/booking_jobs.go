package jobs

import (
	"context"
	"errors"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"
)

// ExpireTentativeBookings releases the nights of tentative bookings whose hold has lapsed.
// Bookings with payments awaiting verification are left to staff and never listed.
func (jr *JobRunner) ExpireTentativeBookings() {
	jr.runWithRecovery("ExpireTentativeBookings", func() {
		ctx := context.Background()
		cutoff := jr.now().Add(-jr.config.Booking.HoldDuration)

		expired, skipped := 0, 0
		err := jr.drain(func() ([]domain.Booking, error) {
			return jr.bookingRepo.ListExpirable(ctx, cutoff, jr.batchSize())
		}, func(b *domain.Booking) bool {
			_, err := jr.bookings.ExpireBooking(ctx, b.ID)
			switch {
			case err == nil:
				expired++
				return true
			case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrStaleTransition):
				logger.Debug("Hold not expired", "bookingID", b.ID, "reason", err)
				skipped++
			default:
				logger.Error("Failed to expire booking", "bookingID", b.ID, "error", err)
			}
			return false
		})
		if err != nil {
			logger.Error("Failed to list lapsed holds", "error", err)
		}
		logger.Info("Expired lapsed holds", "expired", expired, "skipped", skipped)
	})
}

// CompleteFinishedBookings closes confirmed bookings that are paid in full once checkout has passed.
func (jr *JobRunner) CompleteFinishedBookings() {
	jr.runWithRecovery("CompleteFinishedBookings", func() {
		ctx := context.Background()
		today := domain.TruncateDate(jr.now())

		completed := 0
		err := jr.drain(func() ([]domain.Booking, error) {
			return jr.bookingRepo.ListCompletable(ctx, today, jr.batchSize())
		}, func(b *domain.Booking) bool {
			if _, err := jr.bookings.CompleteBooking(ctx, b.ID); err != nil {
				logger.Error("Failed to complete booking", "bookingID", b.ID, "error", err)
				return false
			}
			completed++
			return true
		})
		if err != nil {
			logger.Error("Failed to list finished bookings", "error", err)
		}
		logger.Info("Completed finished bookings", "completed", completed)
	})
}

// drain keeps fetching batches while each full batch moved at least one booking out of
// the listed set. A batch where nothing moved would be fetched again unchanged.
func (jr *JobRunner) drain(list func() ([]domain.Booking, error), handle func(*domain.Booking) bool) error {
	for {
		batch, err := list()
		if err != nil {
			return err
		}
		moved := 0
		for i := range batch {
			if handle(&batch[i]) {
				moved++
			}
		}
		if int32(len(batch)) < jr.batchSize() || moved == 0 {
			return nil
		}
	}
}

// ReconcileReservations re-drives the cells of recently changed bookings so that an
// interrupted transition does not leave nights held for a dead booking, or held instead of booked.
func (jr *JobRunner) ReconcileReservations() {
	jr.runWithRecovery("ReconcileReservations", func() {
		ctx := context.Background()
		cursor := repository.BookingCursor{UpdatedOn: jr.now().Add(-jr.config.Booking.ReconcileLookback)}
		// updated_on is stamped by the store's clock; later changes wait for the next run
		startedAt := time.Now().UTC()

		checked, repaired, stale := 0, 0, 0
		for done := false; !done; {
			page, err := jr.bookingRepo.ListUpdatedAfter(ctx, cursor, jr.batchSize())
			if err != nil {
				logger.Error("Failed to list changed bookings", "error", err)
				break
			}
			done = int32(len(page)) < jr.batchSize()
			for i := range page {
				b := &page[i]
				if b.UpdatedOn.After(startedAt) {
					done = true
					break
				}
				cursor = repository.CursorOf(b)
				checked++
				if b.Status == domain.BookingStatusCompleted {
					continue
				}
				report, err := jr.bookings.ReconcileBooking(ctx, b.ID)
				if err != nil {
					logger.Error("Failed to reconcile booking", "bookingID", b.ID, "error", err)
					continue
				}
				if report.Repaired {
					repaired++
				}
				stale += len(report.Stale)
			}
		}
		logger.Info("Reconciled reservations", "checked", checked, "repaired", repaired, "staleCells", stale)
	})
}
