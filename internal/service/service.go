package service

import (
	"context"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/utils"
)

// AvailabilityLedger owns per-unit, per-date occupancy and the at-most-one-holder guarantee.
type AvailabilityLedger interface {
	// Reserve moves every FREE cell of unitIDs × stay to target (HELD or BOOKED) for bookingID,
	// or leaves all of them untouched.
	Reserve(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string, target domain.CellStatus) error
	// Release frees the cells owned by bookingID. Cells owned by someone else are reported
	// through *domain.StaleReleaseError and left alone.
	Release(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string) error
	Upgrade(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string) error
	Downgrade(ctx context.Context, unitIDs []string, stay domain.Stay, bookingID string) error
	Query(ctx context.Context, unitIDs []string, stay domain.Stay) ([]domain.AvailabilityCell, error)
	Block(ctx context.Context, unitID string, stay domain.Stay) error
	Unblock(ctx context.Context, unitID string, stay domain.Stay) error
}

type CreateBookingRequest struct {
	RenterID   string
	PackageID  string
	UnitIDs    []string
	Stay       domain.Stay
	GuestCount int32
	PromoCode  string
}

// Quote is a priced, non-binding offer for a stay.
type Quote struct {
	PackageID   string                    `json:"package_id"`
	UnitIDs     []string                  `json:"unit_ids"`
	Stay        domain.Stay               `json:"stay"`
	Price       utils.StayPrice           `json:"price"`
	Promo       *domain.Promo             `json:"promo,omitempty"`
	Eligibility *domain.EligibilityResult `json:"eligibility,omitempty"`
}

type BookingService interface {
	Quote(ctx context.Context, req CreateBookingRequest) (*Quote, error)
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	ListBookingsByRenter(ctx context.Context, renterID, status string, page, pageSize int32) ([]domain.Booking, int32, error)
	ConfirmBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID, reason string) (*domain.Booking, error)
	ExpireBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	// SyncPayments recomputes the cached paid marker from verified payments and confirms the
	// booking once the down-payment threshold is reached.
	SyncPayments(ctx context.Context, bookingID string) (*domain.Booking, error)
	// ReconcileBooking repairs cell ownership left behind by an interrupted transition.
	ReconcileBooking(ctx context.Context, bookingID string) (*ReconcileReport, error)
}

type PaymentService interface {
	SubmitPayment(ctx context.Context, bookingID string, amountCents int64, method domain.PaymentMethod, proofRef string) (*domain.Payment, error)
	AttachProof(ctx context.Context, paymentID, proofRef string) (*domain.Payment, error)
	VerifyPayment(ctx context.Context, paymentID, staffID string) (*domain.Payment, *domain.Booking, error)
	RejectPayment(ctx context.Context, paymentID, staffID, reason string) (*domain.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error)
}

type PromoService interface {
	IsEligible(promo *domain.Promo, packageID string, bookingDate time.Time, bookingCount int32) domain.EligibilityResult
	ResolvePromo(ctx context.Context, code, packageID string, bookingDate time.Time, renterID string) (*domain.Promo, domain.EligibilityResult, error)
	SavePromo(ctx context.Context, promo *domain.Promo) error
	ListActivePromos(ctx context.Context) ([]domain.Promo, error)
}

type CatalogService interface {
	GetPackage(ctx context.Context, id string) (*domain.Package, error)
	SavePackage(ctx context.Context, pkg *domain.Package) error
	SaveUnit(ctx context.Context, unit *domain.LodgingUnit) error
}

// EventPublisher hands lifecycle events to the notification collaborator.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
