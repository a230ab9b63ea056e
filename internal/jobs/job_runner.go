package jobs

import (
	"time"

	"homestay-booking/internal/config"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"
	"homestay-booking/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	bookingRepo repository.BookingRepository
	bookings    service.BookingService
	config      *config.Config
	now         func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(bookingRepo repository.BookingRepository, bookings service.BookingService, cfg *config.Config) *JobRunner {
	return &JobRunner{
		bookingRepo: bookingRepo,
		bookings:    bookings,
		config:      cfg,
		now:         time.Now,
	}
}

// Config exposes the schedules the runner was built with.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

func (jr *JobRunner) batchSize() int32 {
	if n := jr.config.Booking.JobBatchSize; n > 0 {
		return n
	}
	return 100
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ExpireTentativeBookings()
	jr.CompleteFinishedBookings()
	jr.ReconcileReservations()
}
