package utils

import (
	"fmt"
	"time"

	"homestay-booking/internal/domain"
)

// StayPrice provides the detailed price breakdown of a stay
type StayPrice struct {
	WeekdayNights int   `json:"weekday_nights"`
	WeekendNights int   `json:"weekend_nights"`
	WeekdayCents  int64 `json:"weekday_cents"`
	WeekendCents  int64 `json:"weekend_cents"`
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// IsWeekendNight reports whether the night starting on date is charged the weekend rate.
// Friday and Saturday nights are weekend nights.
func IsWeekendNight(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Friday || wd == time.Saturday
}

// CountNights splits the nights of a stay into weekday and weekend nights
func CountNights(stay domain.Stay) (weekday, weekend int) {
	for _, night := range stay.Nights() {
		if IsWeekendNight(night) {
			weekend++
		} else {
			weekday++
		}
	}
	return weekday, weekend
}

// CalculateStayPrice prices a stay for a package, applying promo when non-nil.
// The promo must already be resolved as eligible; it is still ignored when the check-in
// date falls outside its validity window.
func CalculateStayPrice(pkg *domain.Package, stay domain.Stay, promo *domain.Promo) (StayPrice, error) {
	if pkg == nil {
		return StayPrice{}, fmt.Errorf("%w: package is required", domain.ErrInvalidPricingInput)
	}
	if !stay.Valid() {
		return StayPrice{}, fmt.Errorf("%w: empty date range %s", domain.ErrInvalidPricingInput, stay)
	}
	if pkg.WeekdayRateCents <= 0 || pkg.WeekendRateCents <= 0 {
		return StayPrice{}, fmt.Errorf("%w: package %s rates must be positive", domain.ErrInvalidPricingInput, pkg.ID)
	}

	weekday, weekend := CountNights(stay)
	price := StayPrice{
		WeekdayNights: weekday,
		WeekendNights: weekend,
		WeekdayCents:  int64(weekday) * pkg.WeekdayRateCents,
		WeekendCents:  int64(weekend) * pkg.WeekendRateCents,
	}
	price.SubtotalCents = price.WeekdayCents + price.WeekendCents

	if promo != nil && promo.ValidOn(stay.CheckIn) {
		price.DiscountCents = CalculateDiscount(price.SubtotalCents, promo)
	}

	price.TotalCents = price.SubtotalCents - price.DiscountCents
	if price.TotalCents < 0 {
		price.TotalCents = 0
	}
	return price, nil
}

// CalculateDiscount returns the discount a promo grants on subtotal
func CalculateDiscount(subtotal int64, promo *domain.Promo) int64 {
	if subtotal <= 0 || promo == nil {
		return 0
	}
	switch promo.DiscountType {
	case domain.DiscountTypePercentage:
		pct := promo.DiscountAmount
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return subtotal * pct / 100
	case domain.DiscountTypeFixed:
		if promo.DiscountAmount <= 0 {
			return 0
		}
		if promo.DiscountAmount > subtotal {
			return subtotal
		}
		return promo.DiscountAmount
	default:
		return 0
	}
}
