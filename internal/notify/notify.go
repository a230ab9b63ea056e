// Package notify delivers lifecycle events to renters and staff.
// Formatting and wording live in the downstream templates, not here.
package notify

import (
	"context"
	"errors"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// staffEvents are the types staff are told about. Renters hear about every event of their own.
var staffEvents = map[domain.EventType]bool{
	domain.EventBookingCreated:   true,
	domain.EventBookingCancelled: true,
	domain.EventBookingExpired:   true,
}

func forStaff(t domain.EventType) bool {
	return staffEvents[t]
}

// LogPublisher writes events to the application log. It is the fallback when no transport is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	logger.InfoContext(ctx, "Event", "type", event.Type, "bookingID", event.BookingID,
		"renterID", event.RenterID, "paymentID", event.PaymentID, "stage", event.Stage)
	return nil
}

// Fanout hands every event to each publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
