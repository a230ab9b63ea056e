package domain

import "time"

type BookingStatus string

const (
	BookingStatusTentative BookingStatus = "TENTATIVE"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusTentative: {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted: {},
	BookingStatusCancelled: {},
	BookingStatusExpired:   {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s.IsValid() && len(bookingTransitions[s]) == 0
}

// HoldsCells reports whether a booking in this status owns live reservations.
func (s BookingStatus) HoldsCells() bool {
	return s == BookingStatusTentative || s == BookingStatusConfirmed
}

type Booking struct {
	ID              string        `json:"id"`
	RenterID        string        `json:"renter_id"`
	PackageID       string        `json:"package_id"`
	UnitIDs         []string      `json:"unit_ids"`
	CheckIn         time.Time     `json:"check_in"`
	CheckOut        time.Time     `json:"check_out"`
	GuestCount      int32         `json:"guest_count"`
	Status          BookingStatus `json:"status"`
	SubtotalCents   int64         `json:"subtotal_cents"`
	DiscountCents   int64         `json:"discount_cents"`
	TotalPriceCents int64         `json:"total_price_cents"`
	PromoID         *string       `json:"promo_id,omitempty"`
	// PaidCents caches the cumulative verified payment amount. Payments are the source of truth.
	PaidCents    int64      `json:"paid_cents"`
	FullyPaid    bool       `json:"fully_paid"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	Version      int64      `json:"version"`
	CreatedOn    time.Time  `json:"created_on"`
	UpdatedOn    time.Time  `json:"updated_on"`
	CompletedOn  *time.Time `json:"completed_on,omitempty"`
}

func (b *Booking) Stay() Stay {
	return Stay{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (b *Booking) Clone() *Booking {
	c := *b
	c.UnitIDs = append([]string(nil), b.UnitIDs...)
	if b.PromoID != nil {
		p := *b.PromoID
		c.PromoID = &p
	}
	if b.CompletedOn != nil {
		t := *b.CompletedOn
		c.CompletedOn = &t
	}
	return &c
}
