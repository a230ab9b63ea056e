package domain

import "time"

type EventType string

const (
	EventBookingCreated   EventType = "BOOKING_CREATED"
	EventBookingConfirmed EventType = "BOOKING_CONFIRMED"
	EventBookingCancelled EventType = "BOOKING_CANCELLED"
	EventBookingExpired   EventType = "BOOKING_EXPIRED"
	EventBookingCompleted EventType = "BOOKING_COMPLETED"
	EventPaymentVerified  EventType = "PAYMENT_VERIFIED"
	EventPaymentRejected  EventType = "PAYMENT_REJECTED"
	EventPromoApplied     EventType = "PROMO_APPLIED"
)

// Event is a lifecycle fact emitted by the core. Delivery and formatting belong to the
// notification collaborator.
type Event struct {
	Type       EventType           `json:"type"`
	BookingID  string              `json:"booking_id"`
	RenterID   string              `json:"renter_id,omitempty"`
	PaymentID  string              `json:"payment_id,omitempty"`
	PromoID    string              `json:"promo_id,omitempty"`
	Stage      PaymentVerification `json:"stage,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Attributes flattens the event into string pairs for transports that only carry strings.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{
		"type":        string(e.Type),
		"booking_id":  e.BookingID,
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339),
	}
	if e.RenterID != "" {
		attrs["renter_id"] = e.RenterID
	}
	if e.PaymentID != "" {
		attrs["payment_id"] = e.PaymentID
	}
	if e.PromoID != "" {
		attrs["promo_id"] = e.PromoID
	}
	if e.Stage != "" {
		attrs["stage"] = string(e.Stage)
	}
	return attrs
}
