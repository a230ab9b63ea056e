package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStay(t *testing.T) {
	s, err := ParseStay("2025-06-01", "2025-06-04")
	require.NoError(t, err)
	assert.True(t, s.Valid())
	assert.Equal(t, 3, s.NightCount())
	assert.Equal(t, "[2025-06-01, 2025-06-04)", s.String())

	_, err = ParseStay("06/01/2025", "2025-06-04")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ParseStay("2025-06-01", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStay(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	s := NewStay(time.Date(2025, 6, 1, 23, 30, 0, 0, jakarta), time.Date(2025, 6, 3, 1, 0, 0, 0, jakarta))
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), s.CheckIn)

	nights := s.Nights()
	require.Len(t, nights, 2)
	assert.Equal(t, "2025-06-02", nights[1].Format(DateLayout))

	empty := NewStay(s.CheckIn, s.CheckIn)
	assert.False(t, empty.Valid())
	assert.Equal(t, 0, empty.NightCount())
	assert.Empty(t, empty.Nights())

	assert.True(t, s.Overlaps(NewStay(s.CheckOut.AddDate(0, 0, -1), s.CheckOut.AddDate(0, 0, 2))))
	// checkout day is free for the next check-in
	assert.False(t, s.Overlaps(NewStay(s.CheckOut, s.CheckOut.AddDate(0, 0, 2))))
}

func TestCellKeys(t *testing.T) {
	s, err := ParseStay("2025-06-01", "2025-06-03")
	require.NoError(t, err)

	keys := CellKeys([]string{"U2", "U1", "U2"}, s)
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ID())
	}
	assert.Equal(t, []string{"U1_2025-06-01", "U1_2025-06-02", "U2_2025-06-01", "U2_2025-06-02"}, ids)
}

func TestAvailabilityCell_Validate(t *testing.T) {
	d := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		cell  AvailabilityCell
		valid bool
	}{
		{"Free", AvailabilityCell{UnitID: "U1", Date: d, Status: CellStatusFree}, true},
		{"Held with booking", AvailabilityCell{UnitID: "U1", Date: d, Status: CellStatusHeld, BookingID: "b1"}, true},
		{"Booked without booking", AvailabilityCell{UnitID: "U1", Date: d, Status: CellStatusBooked}, false},
		{"Free with booking", AvailabilityCell{UnitID: "U1", Date: d, Status: CellStatusFree, BookingID: "b1"}, false},
		{"Blocked", AvailabilityCell{UnitID: "U1", Date: d, Status: CellStatusBlocked}, true},
		{"Unknown status", AvailabilityCell{UnitID: "U1", Date: d, Status: "GONE"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cell.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestBookingStatus_Transitions(t *testing.T) {
	allowed := map[BookingStatus][]BookingStatus{
		BookingStatusTentative: {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
		BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
	}
	all := []BookingStatus{BookingStatusTentative, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled, BookingStatusExpired}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, BookingStatusCompleted.IsTerminal())
	assert.False(t, BookingStatusConfirmed.IsTerminal())
	assert.False(t, BookingStatus("tentative").IsValid())
	assert.True(t, BookingStatusConfirmed.HoldsCells())
	assert.False(t, BookingStatusCompleted.HoldsCells())
}

func TestPaymentVerification_Transitions(t *testing.T) {
	assert.True(t, PaymentPending.CanTransitionTo(PaymentDP))
	assert.True(t, PaymentPending.CanTransitionTo(PaymentRejected))
	assert.True(t, PaymentDP.CanTransitionTo(PaymentFullyPaid))
	assert.False(t, PaymentDP.CanTransitionTo(PaymentRejected))
	assert.False(t, PaymentRejected.CanTransitionTo(PaymentDP))
	assert.False(t, PaymentFullyPaid.CanTransitionTo(PaymentDP))
	assert.True(t, PaymentRejected.IsTerminal())
	assert.False(t, PaymentRejected.CountsTowardTotal())
	assert.True(t, PaymentDP.CountsTowardTotal())
}

func TestBooking_Clone(t *testing.T) {
	promo := "p1"
	b := &Booking{ID: "b1", UnitIDs: []string{"U1"}, PromoID: &promo}
	c := b.Clone()
	c.UnitIDs[0] = "U9"
	*c.PromoID = "p2"
	assert.Equal(t, "U1", b.UnitIDs[0])
	assert.Equal(t, "p1", *b.PromoID)
}

func TestErrors(t *testing.T) {
	cause := &CellUnavailableError{UnitID: "U1", Date: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), Status: CellStatusHeld}
	err := &BookingUnavailableError{Cause: cause}
	var target *CellUnavailableError
	require.True(t, errors.As(err, &target))
	assert.Contains(t, err.Error(), "U1 on 2025-06-02 is HELD")

	stale := &StaleReleaseError{BookingID: "b1", Cells: []CellKey{{UnitID: "U1", Date: cause.Date}}}
	assert.Contains(t, stale.Error(), "U1_2025-06-02")
}

func TestEvent_Attributes(t *testing.T) {
	e := Event{Type: EventPaymentVerified, BookingID: "b1", PaymentID: "p1", Stage: PaymentDP, OccurredAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	attrs := e.Attributes()
	assert.Equal(t, "PAYMENT_VERIFIED", attrs["type"])
	assert.Equal(t, "DP", attrs["stage"])
	assert.Equal(t, "2025-06-01T08:00:00Z", attrs["occurred_at"])
	_, hasRenter := attrs["renter_id"]
	assert.False(t, hasRenter)
}
