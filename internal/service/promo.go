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
)

type promoService struct {
	promoRepo   repository.PromoRepository
	bookingRepo repository.BookingRepository
}

func NewPromoService(promoRepo repository.PromoRepository, bookingRepo repository.BookingRepository) PromoService {
	return &promoService{promoRepo: promoRepo, bookingRepo: bookingRepo}
}

// IsEligible evaluates the four promo conditions in order and reports the first that fails.
func (s *promoService) IsEligible(promo *domain.Promo, packageID string, bookingDate time.Time, bookingCount int32) domain.EligibilityResult {
	return CheckEligibility(promo, packageID, bookingDate, bookingCount)
}

func CheckEligibility(promo *domain.Promo, packageID string, bookingDate time.Time, bookingCount int32) domain.EligibilityResult {
	switch {
	case promo == nil || !promo.IsActive:
		return domain.EligibilityResult{Reason: domain.EligibilityPromoInactive}
	case !promo.AppliesToPackage(packageID):
		return domain.EligibilityResult{Reason: domain.EligibilityPackageNotApplicable}
	case !promo.ValidOn(bookingDate):
		return domain.EligibilityResult{Reason: domain.EligibilityOutsideValidityWindow}
	case bookingCount < promo.MinBookings:
		return domain.EligibilityResult{Reason: domain.EligibilityMinBookingsNotMet}
	}
	return domain.EligibilityResult{Eligible: true, Reason: domain.EligibilityOK}
}

// ResolvePromo looks a promo code up and checks it against the renter's qualifying booking count.
// An ineligible promo is returned together with the reason so callers can price without it.
func (s *promoService) ResolvePromo(ctx context.Context, code, packageID string, bookingDate time.Time, renterID string) (*domain.Promo, domain.EligibilityResult, error) {
	code = strings.TrimSpace(code)
	promo, err := s.promoRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.EligibilityResult{}, fmt.Errorf("%w: unknown promo code %q", domain.ErrValidation, code)
		}
		return nil, domain.EligibilityResult{}, fmt.Errorf("failed to load promo: %w", err)
	}

	count, err := s.bookingRepo.CountQualifyingByRenter(ctx, renterID)
	if err != nil {
		return nil, domain.EligibilityResult{}, fmt.Errorf("failed to count bookings: %w", err)
	}

	result := CheckEligibility(promo, packageID, bookingDate, count)
	if !result.Eligible {
		logger.Info("Promo not applied", "promoID", promo.ID, "renterID", renterID, "reason", result.Reason)
	}
	return promo, result, nil
}

func (s *promoService) SavePromo(ctx context.Context, promo *domain.Promo) error {
	if promo.ID == "" || strings.TrimSpace(promo.Code) == "" {
		return fmt.Errorf("%w: promo id and code are required", domain.ErrValidation)
	}
	if promo.DiscountType != domain.DiscountTypePercentage && promo.DiscountType != domain.DiscountTypeFixed {
		return fmt.Errorf("%w: unknown discount type %q", domain.ErrValidation, promo.DiscountType)
	}
	if promo.DiscountAmount < 0 || promo.MinBookings < 0 {
		return fmt.Errorf("%w: discount and minimum bookings must not be negative", domain.ErrValidation)
	}
	if promo.EndDate.Before(promo.StartDate) {
		return fmt.Errorf("%w: promo ends before it starts", domain.ErrValidation)
	}
	promo.StartDate = domain.TruncateDate(promo.StartDate)
	promo.EndDate = domain.TruncateDate(promo.EndDate)
	return s.promoRepo.Upsert(ctx, promo)
}

func (s *promoService) ListActivePromos(ctx context.Context) ([]domain.Promo, error) {
	return s.promoRepo.ListActive(ctx)
}
