package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"
	"homestay-booking/internal/utils"

	"github.com/google/uuid"
)

type BookingOptions struct {
	HoldDuration time.Duration
	HorizonDays  int
	MaxNights    int
	// TransitionAttempts bounds re-reads after a booking write loses a version race.
	TransitionAttempts int
	// DownPaymentPercent is the share of the total that verified payments must reach before a
	// tentative booking is confirmed. 0 means any verified payment.
	DownPaymentPercent int64
	Clock              func() time.Time
}

// ReconcileReport describes what ReconcileBooking found and changed.
type ReconcileReport struct {
	BookingID string               `json:"booking_id"`
	Status    domain.BookingStatus `json:"status"`
	Repaired  bool                 `json:"repaired"`
	// Missing lists cells the booking should own but does not.
	Missing []string `json:"missing,omitempty"`
	Stale   []string `json:"stale,omitempty"`
}

type bookingService struct {
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository
	catalogRepo repository.CatalogRepository
	ledger      AvailabilityLedger
	promos      PromoService
	events      EventPublisher
	opts        BookingOptions
}

func NewBookingService(
	bookingRepo repository.BookingRepository,
	paymentRepo repository.PaymentRepository,
	catalogRepo repository.CatalogRepository,
	ledger AvailabilityLedger,
	promos PromoService,
	events EventPublisher,
	opts BookingOptions,
) BookingService {
	if opts.HoldDuration <= 0 {
		opts.HoldDuration = 24 * time.Hour
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 365
	}
	if opts.MaxNights <= 0 {
		opts.MaxNights = 30
	}
	if opts.TransitionAttempts <= 0 {
		opts.TransitionAttempts = 5
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &bookingService{
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		catalogRepo: catalogRepo,
		ledger:      ledger,
		promos:      promos,
		events:      events,
		opts:        opts,
	}
}

type pricedRequest struct {
	pkg         *domain.Package
	unitIDs     []string
	promo       *domain.Promo
	eligibility *domain.EligibilityResult
	price       utils.StayPrice
}

func (s *bookingService) prepare(ctx context.Context, req CreateBookingRequest) (*pricedRequest, error) {
	if req.RenterID == "" || req.PackageID == "" {
		return nil, fmt.Errorf("%w: renter and package are required", domain.ErrValidation)
	}
	unitIDs := normalizeUnits(req.UnitIDs)
	if len(unitIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one unit is required", domain.ErrValidation)
	}
	if !req.Stay.Valid() {
		return nil, fmt.Errorf("%w: check-out must be after check-in", domain.ErrValidation)
	}
	today := domain.TruncateDate(s.opts.Clock())
	if req.Stay.CheckIn.Before(today) {
		return nil, fmt.Errorf("%w: check-in %s is in the past", domain.ErrValidation, req.Stay.CheckIn.Format(domain.DateLayout))
	}
	if req.Stay.CheckOut.After(today.AddDate(0, 0, s.opts.HorizonDays)) {
		return nil, fmt.Errorf("%w: stay ends beyond the %d day booking horizon", domain.ErrValidation, s.opts.HorizonDays)
	}
	if req.Stay.NightCount() > s.opts.MaxNights {
		return nil, fmt.Errorf("%w: %d nights requested, limit is %d", domain.ErrReservationTooLarge, req.Stay.NightCount(), s.opts.MaxNights)
	}

	pkg, err := s.catalogRepo.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load package %s: %w", req.PackageID, err)
	}
	if !pkg.Covers(unitIDs) {
		return nil, fmt.Errorf("%w: package %s does not include all requested units", domain.ErrValidation, pkg.ID)
	}
	units, err := s.catalogRepo.ListUnits(ctx, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	var capacity int32
	for _, u := range units {
		capacity += u.Capacity
	}
	if req.GuestCount < 1 || req.GuestCount > capacity {
		return nil, fmt.Errorf("%w: guest count %d outside 1..%d", domain.ErrValidation, req.GuestCount, capacity)
	}

	pr := &pricedRequest{pkg: pkg, unitIDs: unitIDs}
	var applied *domain.Promo
	if strings.TrimSpace(req.PromoCode) != "" {
		promo, result, err := s.promos.ResolvePromo(ctx, req.PromoCode, pkg.ID, req.Stay.CheckIn, req.RenterID)
		if err != nil {
			return nil, err
		}
		pr.promo = promo
		pr.eligibility = &result
		if result.Eligible {
			applied = promo
		}
	}

	pr.price, err = utils.CalculateStayPrice(pkg, req.Stay, applied)
	if err != nil {
		return nil, err
	}
	return pr, nil
}

func normalizeUnits(unitIDs []string) []string {
	seen := make(map[string]struct{}, len(unitIDs))
	out := make([]string, 0, len(unitIDs))
	for _, id := range unitIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *bookingService) Quote(ctx context.Context, req CreateBookingRequest) (*Quote, error) {
	pr, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Quote{
		PackageID:   pr.pkg.ID,
		UnitIDs:     pr.unitIDs,
		Stay:        req.Stay,
		Price:       pr.price,
		Promo:       pr.promo,
		Eligibility: pr.eligibility,
	}, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CreateBooking", "renterID", req.RenterID, "packageID", req.PackageID, "stay", req.Stay.String())

	pr, err := s.prepare(ctx, req)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "renterID", req.RenterID)
		return nil, err
	}

	bookingID := uuid.NewString()
	if err := s.ledger.Reserve(ctx, pr.unitIDs, req.Stay, bookingID, domain.CellStatusHeld); err != nil {
		var unavailable *domain.CellUnavailableError
		if errors.As(err, &unavailable) || errors.Is(err, domain.ErrReservationConflict) {
			err = &domain.BookingUnavailableError{Cause: err}
		}
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "renterID", req.RenterID)
		return nil, err
	}

	booking := &domain.Booking{
		ID:              bookingID,
		RenterID:        req.RenterID,
		PackageID:       pr.pkg.ID,
		UnitIDs:         pr.unitIDs,
		CheckIn:         req.Stay.CheckIn,
		CheckOut:        req.Stay.CheckOut,
		GuestCount:      req.GuestCount,
		Status:          domain.BookingStatusTentative,
		SubtotalCents:   pr.price.SubtotalCents,
		DiscountCents:   pr.price.DiscountCents,
		TotalPriceCents: pr.price.TotalCents,
		CreatedOn:       s.opts.Clock().UTC(),
	}
	if pr.eligibility != nil && pr.eligibility.Eligible {
		promoID := pr.promo.ID
		booking.PromoID = &promoID
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		if rerr := s.ledger.Release(context.WithoutCancel(ctx), pr.unitIDs, req.Stay, bookingID); rerr != nil {
			logger.Error("Failed to release cells of unsaved booking", "bookingID", bookingID, "error", rerr)
		}
		err = fmt.Errorf("failed to save booking: %w", err)
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "renterID", req.RenterID)
		return nil, err
	}

	s.emit(ctx, domain.Event{Type: domain.EventBookingCreated, BookingID: booking.ID, RenterID: booking.RenterID})
	if booking.PromoID != nil {
		s.emit(ctx, domain.Event{Type: domain.EventPromoApplied, BookingID: booking.ID, RenterID: booking.RenterID, PromoID: *booking.PromoID})
	}

	logger.ExitMethod("bookingService.CreateBooking", "bookingID", booking.ID, "totalCents", booking.TotalPriceCents)
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.bookingRepo.GetByID(ctx, bookingID)
}

func (s *bookingService) ListBookingsByRenter(ctx context.Context, renterID, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	if status != "" && !domain.BookingStatus(status).IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown booking status %q", domain.ErrValidation, status)
	}
	return s.bookingRepo.ListByRenter(ctx, renterID, status, page, pageSize)
}

// refuse builds the error for a booking that cannot take target. A status that changed under
// us while retrying is a lost race rather than a caller mistake.
func refuse(b *domain.Booking, target domain.BookingStatus, attempt int) error {
	if attempt > 1 {
		return fmt.Errorf("%w: booking %s became %s", domain.ErrStaleTransition, b.ID, b.Status)
	}
	return fmt.Errorf("%w: booking %s is %s, cannot become %s", domain.ErrInvalidTransition, b.ID, b.Status, target)
}

// ConfirmBooking upgrades the booking's cells to BOOKED and then moves it to CONFIRMED. The
// status write is the linearization point against a concurrent cancel or expiry.
func (s *bookingService) ConfirmBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	log := logger.WithBooking(bookingID)
	for attempt := 1; attempt <= s.opts.TransitionAttempts; attempt++ {
		b, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		switch b.Status {
		case domain.BookingStatusConfirmed, domain.BookingStatusCompleted:
			return b, nil
		case domain.BookingStatusTentative:
		default:
			return nil, refuse(b, domain.BookingStatusConfirmed, attempt)
		}

		if err := s.ledger.Upgrade(ctx, b.UnitIDs, b.Stay(), b.ID); err != nil {
			log.Warn("Confirm lost its cells", "error", err)
			return nil, err
		}

		expected := b.Version
		b.Status = domain.BookingStatusConfirmed
		err = s.bookingRepo.Update(ctx, b, expected)
		if errors.Is(err, domain.ErrVersionConflict) {
			logger.Contention("booking.confirm", "bookingID", bookingID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to confirm booking: %w", err)
		}

		log.Info("Booking confirmed", "paidCents", b.PaidCents)
		s.emit(ctx, domain.Event{Type: domain.EventBookingConfirmed, BookingID: b.ID, RenterID: b.RenterID})
		return b, nil
	}
	return nil, fmt.Errorf("%w: booking %s kept changing", domain.ErrStaleTransition, bookingID)
}

func (s *bookingService) CompleteBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	for attempt := 1; attempt <= s.opts.TransitionAttempts; attempt++ {
		b, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status == domain.BookingStatusCompleted {
			return b, nil
		}
		if !b.Status.CanTransitionTo(domain.BookingStatusCompleted) {
			return nil, refuse(b, domain.BookingStatusCompleted, attempt)
		}

		expected := b.Version
		now := s.opts.Clock().UTC()
		b.Status = domain.BookingStatusCompleted
		b.CompletedOn = &now
		err = s.bookingRepo.Update(ctx, b, expected)
		if errors.Is(err, domain.ErrVersionConflict) {
			logger.Contention("booking.complete", "bookingID", bookingID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to complete booking: %w", err)
		}

		logger.WithBooking(bookingID).Info("Booking completed")
		s.emit(ctx, domain.Event{Type: domain.EventBookingCompleted, BookingID: b.ID, RenterID: b.RenterID})
		return b, nil
	}
	return nil, fmt.Errorf("%w: booking %s kept changing", domain.ErrStaleTransition, bookingID)
}

func (s *bookingService) CancelBooking(ctx context.Context, bookingID, reason string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CancelBooking", "bookingID", bookingID)
	b, err := s.terminate(ctx, bookingID, domain.BookingStatusCancelled, func(b *domain.Booking) error {
		b.CancelReason = reason
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.CancelBooking", err, "bookingID", bookingID)
		return nil, err
	}
	logger.ExitMethod("bookingService.CancelBooking", "bookingID", bookingID)
	return b, nil
}

// ExpireBooking ends a tentative booking whose hold has lapsed without any payment.
// Payments still awaiting verification keep the hold alive.
func (s *bookingService) ExpireBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.terminate(ctx, bookingID, domain.BookingStatusExpired, func(b *domain.Booking) error {
		if age := s.opts.Clock().Sub(b.CreatedOn); age < s.opts.HoldDuration {
			return fmt.Errorf("%w: hold of booking %s has %s left", domain.ErrInvalidTransition, b.ID, s.opts.HoldDuration-age)
		}
		payments, err := s.paymentRepo.ListByBooking(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("failed to list payments: %w", err)
		}
		for _, p := range payments {
			if p.Verification == domain.PaymentPending || p.Verification.CountsTowardTotal() {
				return fmt.Errorf("%w: booking %s has payment %s in %s", domain.ErrInvalidTransition, b.ID, p.ID, p.Verification)
			}
		}
		return nil
	})
}

// terminate moves a booking to CANCELLED or EXPIRED and then returns its cells to the pool.
// Repeating it on a booking already in target only re-runs the release.
func (s *bookingService) terminate(ctx context.Context, bookingID string, target domain.BookingStatus, guard func(*domain.Booking) error) (*domain.Booking, error) {
	for attempt := 1; attempt <= s.opts.TransitionAttempts; attempt++ {
		b, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status == target {
			s.releaseCells(ctx, b)
			return b, nil
		}
		if !b.Status.CanTransitionTo(target) {
			return nil, refuse(b, target, attempt)
		}
		if err := guard(b); err != nil {
			return nil, err
		}

		expected := b.Version
		b.Status = target
		err = s.bookingRepo.Update(ctx, b, expected)
		if errors.Is(err, domain.ErrVersionConflict) {
			logger.Contention("booking.terminate", "bookingID", bookingID, "target", target, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update booking: %w", err)
		}

		s.releaseCells(ctx, b)
		logger.WithBooking(bookingID).Info("Booking ended", "status", target)

		eventType := domain.EventBookingCancelled
		if target == domain.BookingStatusExpired {
			eventType = domain.EventBookingExpired
		}
		s.emit(ctx, domain.Event{Type: eventType, BookingID: b.ID, RenterID: b.RenterID})
		return b, nil
	}
	return nil, fmt.Errorf("%w: booking %s kept changing", domain.ErrStaleTransition, bookingID)
}

// releaseCells frees the booking's cells once its status is terminal. Failures here leave the
// booking terminal; the reconcile job frees whatever is left.
func (s *bookingService) releaseCells(ctx context.Context, b *domain.Booking) {
	err := s.ledger.Release(context.WithoutCancel(ctx), b.UnitIDs, b.Stay(), b.ID)
	if err == nil {
		return
	}
	var stale *domain.StaleReleaseError
	if errors.As(err, &stale) {
		logger.WithBooking(b.ID).Warn("Cells now owned by another booking were left untouched", "cells", len(stale.Cells))
		return
	}
	logger.WithBooking(b.ID).Error("Failed to release cells", "error", err)
}

// SyncPayments recomputes the booking's paid marker from its verified payments. Once they
// cover the total, DP payments are restamped FULLY_PAID and a tentative booking past the
// down payment is confirmed.
func (s *bookingService) SyncPayments(ctx context.Context, bookingID string) (*domain.Booking, error) {
	var b *domain.Booking
	var payments []domain.Payment
	for attempt := 1; ; attempt++ {
		if attempt > s.opts.TransitionAttempts {
			return nil, fmt.Errorf("%w: booking %s kept changing", domain.ErrStaleTransition, bookingID)
		}
		var err error
		b, err = s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		// Payments are read after the booking so a racing writer either sees our
		// payment or fails its version check.
		payments, err = s.paymentRepo.ListByBooking(ctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("failed to list payments: %w", err)
		}
		var paid int64
		for _, p := range payments {
			if p.Verification.CountsTowardTotal() {
				paid += p.AmountCents
			}
		}
		fullyPaid := paid > 0 && paid >= b.TotalPriceCents
		if paid == b.PaidCents && fullyPaid == b.FullyPaid {
			break
		}

		expected := b.Version
		b.PaidCents = paid
		b.FullyPaid = fullyPaid
		err = s.bookingRepo.Update(ctx, b, expected)
		if errors.Is(err, domain.ErrVersionConflict) {
			logger.Contention("booking.sync_payments", "bookingID", bookingID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update paid amount: %w", err)
		}
		break
	}

	if b.FullyPaid {
		if err := s.promoteInstallments(ctx, payments); err != nil {
			logger.WithBooking(bookingID).Warn("DP payments left for the next sync", "error", err)
		}
	}

	if b.Status == domain.BookingStatusTentative && b.PaidCents > 0 && b.PaidCents >= s.downPayment(b) {
		return s.ConfirmBooking(ctx, bookingID)
	}
	return b, nil
}

// promoteInstallments restamps DP payments as FULLY_PAID.
func (s *bookingService) promoteInstallments(ctx context.Context, payments []domain.Payment) error {
	for i := range payments {
		p := &payments[i]
		for attempt := 1; p.Verification == domain.PaymentDP; attempt++ {
			if attempt > s.opts.TransitionAttempts {
				return fmt.Errorf("%w: payment %s kept changing", domain.ErrStaleTransition, p.ID)
			}
			expected := p.Version
			p.Verification = domain.PaymentFullyPaid
			err := s.paymentRepo.Update(ctx, p, expected)
			if err == nil {
				break
			}
			if !errors.Is(err, domain.ErrVersionConflict) {
				return fmt.Errorf("failed to promote payment %s: %w", p.ID, err)
			}
			logger.Contention("payment.promote", "paymentID", p.ID, "attempt", attempt)
			fresh, err := s.paymentRepo.GetByID(ctx, p.ID)
			if err != nil {
				return err
			}
			*p = *fresh
		}
	}
	return nil
}

func (s *bookingService) downPayment(b *domain.Booking) int64 {
	pct := s.opts.DownPaymentPercent
	if pct <= 0 {
		return 0
	}
	if pct > 100 {
		pct = 100
	}
	return (b.TotalPriceCents*pct + 99) / 100
}

func (s *bookingService) ReconcileBooking(ctx context.Context, bookingID string) (*ReconcileReport, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{BookingID: b.ID, Status: b.Status}

	cells, err := s.ledger.Query(ctx, b.UnitIDs, b.Stay())
	if err != nil {
		return nil, err
	}
	want := domain.CellStatusBooked
	if b.Status == domain.BookingStatusTentative {
		want = domain.CellStatusHeld
	}
	var owned, misplaced int
	for _, c := range cells {
		if !c.Status.Occupied() || c.BookingID != b.ID {
			report.Missing = append(report.Missing, c.Key().ID())
			continue
		}
		owned++
		if c.Status != want {
			misplaced++
		}
	}

	switch b.Status {
	case domain.BookingStatusCancelled, domain.BookingStatusExpired:
		report.Missing = nil
		if owned == 0 {
			return report, nil
		}
		err := s.ledger.Release(ctx, b.UnitIDs, b.Stay(), b.ID)
		var stale *domain.StaleReleaseError
		if errors.As(err, &stale) {
			for _, k := range stale.Cells {
				report.Stale = append(report.Stale, k.ID())
			}
			err = nil
		}
		if err != nil {
			return nil, err
		}
		report.Repaired = true
	default:
		if misplaced == 0 {
			break
		}
		if want == domain.CellStatusHeld {
			err = s.ledger.Downgrade(ctx, b.UnitIDs, b.Stay(), b.ID)
		} else {
			err = s.ledger.Upgrade(ctx, b.UnitIDs, b.Stay(), b.ID)
		}
		if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
			return nil, err
		}
		report.Repaired = err == nil
	}

	if report.Repaired || len(report.Missing) > 0 || len(report.Stale) > 0 {
		logger.WithBooking(b.ID).Warn("Reconciled booking cells", "status", b.Status, "repaired", report.Repaired,
			"missing", len(report.Missing), "stale", len(report.Stale))
	}
	return report, nil
}

// emit never fails the lifecycle operation that produced the event.
func (s *bookingService) emit(ctx context.Context, event domain.Event) {
	emitEvent(ctx, s.events, s.opts.Clock, event)
}

func emitEvent(ctx context.Context, events EventPublisher, clock func() time.Time, event domain.Event) {
	if events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = clock().UTC()
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event", "type", event.Type, "bookingID", event.BookingID, "error", err)
	}
}
