package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"

	"github.com/google/uuid"
)

type PaymentOptions struct {
	// Attempts bounds re-reads after a payment write loses a version race.
	Attempts int
	Clock    func() time.Time
}

type paymentService struct {
	paymentRepo repository.PaymentRepository
	bookingRepo repository.BookingRepository
	bookings    BookingService
	events      EventPublisher
	opts        PaymentOptions
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	bookingRepo repository.BookingRepository,
	bookings BookingService,
	events EventPublisher,
	opts PaymentOptions,
) PaymentService {
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &paymentService{
		paymentRepo: paymentRepo,
		bookingRepo: bookingRepo,
		bookings:    bookings,
		events:      events,
		opts:        opts,
	}
}

func (s *paymentService) SubmitPayment(ctx context.Context, bookingID string, amountCents int64, method domain.PaymentMethod, proofRef string) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.SubmitPayment", "bookingID", bookingID, "amountCents", amountCents)
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", domain.ErrValidation)
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrValidation, method)
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.SubmitPayment", err, "bookingID", bookingID)
		return nil, err
	}
	if !b.Status.HoldsCells() {
		err := fmt.Errorf("%w: booking %s is %s", domain.ErrBookingNotPayable, b.ID, b.Status)
		logger.ExitMethodWithError("paymentService.SubmitPayment", err, "bookingID", bookingID)
		return nil, err
	}

	p := &domain.Payment{
		ID:           uuid.NewString(),
		BookingID:    b.ID,
		AmountCents:  amountCents,
		Method:       method,
		Verification: domain.PaymentPending,
	}
	if ref := strings.TrimSpace(proofRef); ref != "" {
		p.ProofRefs = []string{ref}
	}
	if err := s.paymentRepo.Create(ctx, p); err != nil {
		err = fmt.Errorf("failed to save payment: %w", err)
		logger.ExitMethodWithError("paymentService.SubmitPayment", err, "bookingID", bookingID)
		return nil, err
	}

	logger.ExitMethod("paymentService.SubmitPayment", "bookingID", bookingID, "paymentID", p.ID)
	return p, nil
}

// AttachProof appends a proof reference. Proofs stay appendable after verification ends.
func (s *paymentService) AttachProof(ctx context.Context, paymentID, proofRef string) (*domain.Payment, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, fmt.Errorf("%w: proof reference is required", domain.ErrValidation)
	}
	return s.mutate(ctx, paymentID, func(p *domain.Payment) (bool, error) {
		for _, ref := range p.ProofRefs {
			if ref == proofRef {
				return false, nil
			}
		}
		p.ProofRefs = append(p.ProofRefs, proofRef)
		return true, nil
	})
}

// VerifyPayment marks a payment DP or FULLY_PAID depending on whether the verified total,
// this payment included, covers the booking price. The booking's paid marker is then
// recomputed, which confirms the booking once the down payment is reached.
func (s *paymentService) VerifyPayment(ctx context.Context, paymentID, staffID string) (*domain.Payment, *domain.Booking, error) {
	logger.EnterMethod("paymentService.VerifyPayment", "paymentID", paymentID, "staffID", staffID)

	var changed bool
	var renterID string
	p, err := s.mutate(ctx, paymentID, func(p *domain.Payment) (bool, error) {
		changed = false
		b, err := s.bookingRepo.GetByID(ctx, p.BookingID)
		if err != nil {
			return false, err
		}
		renterID = b.RenterID
		if p.Verification == domain.PaymentFullyPaid {
			return false, nil
		}
		if p.Verification == domain.PaymentPending && !b.Status.HoldsCells() {
			return false, fmt.Errorf("%w: booking %s is %s", domain.ErrBookingNotPayable, b.ID, b.Status)
		}
		others, err := s.verifiedTotal(ctx, p.BookingID, p.ID)
		if err != nil {
			return false, err
		}

		stage := domain.PaymentDP
		if others+p.AmountCents >= b.TotalPriceCents {
			stage = domain.PaymentFullyPaid
		}
		if p.Verification == stage {
			return false, nil
		}
		if !p.Verification.CanTransitionTo(stage) {
			return false, fmt.Errorf("%w: payment %s is %s, cannot become %s", domain.ErrInvalidTransition, p.ID, p.Verification, stage)
		}
		now := s.opts.Clock().UTC()
		p.Verification = stage
		p.VerifiedBy = staffID
		p.VerifiedOn = &now
		changed = true
		return true, nil
	})
	if err != nil {
		logger.ExitMethodWithError("paymentService.VerifyPayment", err, "paymentID", paymentID)
		return nil, nil, err
	}

	if changed {
		s.emit(ctx, domain.Event{Type: domain.EventPaymentVerified, BookingID: p.BookingID, RenterID: renterID, PaymentID: p.ID, Stage: p.Verification})
	}

	b, err := s.bookings.SyncPayments(ctx, p.BookingID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.VerifyPayment", err, "paymentID", paymentID)
		return p, nil, err
	}

	logger.ExitMethod("paymentService.VerifyPayment", "paymentID", paymentID, "stage", p.Verification, "bookingStatus", b.Status)
	return p, b, nil
}

// RejectPayment ends a pending payment. The booking is left as it is so the renter can pay again.
func (s *paymentService) RejectPayment(ctx context.Context, paymentID, staffID, reason string) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.RejectPayment", "paymentID", paymentID, "staffID", staffID)
	var changed bool
	p, err := s.mutate(ctx, paymentID, func(p *domain.Payment) (bool, error) {
		changed = false
		if p.Verification == domain.PaymentRejected {
			return false, nil
		}
		if !p.Verification.CanTransitionTo(domain.PaymentRejected) {
			return false, fmt.Errorf("%w: payment %s is %s, cannot be rejected", domain.ErrInvalidTransition, p.ID, p.Verification)
		}
		now := s.opts.Clock().UTC()
		p.Verification = domain.PaymentRejected
		p.RejectionReason = reason
		p.VerifiedBy = staffID
		p.VerifiedOn = &now
		changed = true
		return true, nil
	})
	if err != nil {
		logger.ExitMethodWithError("paymentService.RejectPayment", err, "paymentID", paymentID)
		return nil, err
	}

	if changed {
		b, err := s.bookingRepo.GetByID(ctx, p.BookingID)
		renterID := ""
		if err == nil {
			renterID = b.RenterID
		}
		s.emit(ctx, domain.Event{Type: domain.EventPaymentRejected, BookingID: p.BookingID, RenterID: renterID, PaymentID: p.ID})
	}
	logger.ExitMethod("paymentService.RejectPayment", "paymentID", paymentID)
	return p, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.paymentRepo.GetByID(ctx, paymentID)
}

func (s *paymentService) ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	if _, err := s.bookingRepo.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByBooking(ctx, bookingID)
}

func (s *paymentService) verifiedTotal(ctx context.Context, bookingID, excludeID string) (int64, error) {
	payments, err := s.paymentRepo.ListByBooking(ctx, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to list payments: %w", err)
	}
	var total int64
	for _, p := range payments {
		if p.ID != excludeID && p.Verification.CountsTowardTotal() {
			total += p.AmountCents
		}
	}
	return total, nil
}

// mutate applies change to the latest version of a payment, re-reading after lost races.
// change reports whether it modified the payment.
func (s *paymentService) mutate(ctx context.Context, paymentID string, change func(*domain.Payment) (bool, error)) (*domain.Payment, error) {
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		p, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		modified, err := change(p)
		if err != nil {
			return nil, err
		}
		if !modified {
			return p, nil
		}
		err = s.paymentRepo.Update(ctx, p, p.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			logger.Contention("payment.update", "paymentID", paymentID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: payment %s kept changing", domain.ErrStaleTransition, paymentID)
}

func (s *paymentService) emit(ctx context.Context, event domain.Event) {
	emitEvent(ctx, s.events, s.opts.Clock, event)
}
