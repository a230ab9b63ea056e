package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidPricingInput = errors.New("invalid pricing input")
	ErrReservationConflict = errors.New("reservation conflict")
	ErrReservationTooLarge = errors.New("reservation exceeds maximum span")
	ErrStaleTransition     = errors.New("stale transition")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrBookingNotPayable   = errors.New("booking does not accept payments")
	// ErrVersionConflict is returned by repositories when a conditional write loses.
	ErrVersionConflict = errors.New("version conflict")
)

// CellUnavailableError reports the first cell found not FREE during a reservation probe.
type CellUnavailableError struct {
	UnitID string
	Date   time.Time
	Status CellStatus
}

func (e *CellUnavailableError) Error() string {
	return fmt.Sprintf("cell unavailable: unit %s on %s is %s", e.UnitID, e.Date.Format(DateLayout), e.Status)
}

// StaleReleaseError lists cells a release skipped because another booking owns them.
type StaleReleaseError struct {
	BookingID string
	Cells     []CellKey
}

func (e *StaleReleaseError) Error() string {
	ids := make([]string, 0, len(e.Cells))
	for _, c := range e.Cells {
		ids = append(ids, c.ID())
	}
	return fmt.Sprintf("stale release for booking %s: cells %s not owned", e.BookingID, strings.Join(ids, ","))
}

// BookingUnavailableError is the terminal failure of a booking request that lost its cells.
type BookingUnavailableError struct {
	Cause error
}

func (e *BookingUnavailableError) Error() string {
	return fmt.Sprintf("booking unavailable: %v", e.Cause)
}

func (e *BookingUnavailableError) Unwrap() error {
	return e.Cause
}
