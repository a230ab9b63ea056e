package domain

import "time"

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// Promo is a time- and condition-bounded discount rule. DiscountAmount is whole percent points
// for PERCENTAGE promos and cents for FIXED promos.
type Promo struct {
	ID             string       `json:"id"`
	Code           string       `json:"code"`
	PackageIDs     []string     `json:"package_ids"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountAmount int64        `json:"discount_amount"`
	MinBookings    int32        `json:"min_bookings"`
	IsActive       bool         `json:"is_active"`
}

func (p *Promo) AppliesToPackage(packageID string) bool {
	for _, id := range p.PackageIDs {
		if id == packageID {
			return true
		}
	}
	return false
}

// ValidOn reports whether the date falls inside [StartDate, EndDate], both inclusive.
func (p *Promo) ValidOn(date time.Time) bool {
	d := TruncateDate(date)
	return !d.Before(TruncateDate(p.StartDate)) && !d.After(TruncateDate(p.EndDate))
}

type EligibilityReason string

const (
	EligibilityOK                    EligibilityReason = "ELIGIBLE"
	EligibilityPromoInactive         EligibilityReason = "PROMO_INACTIVE"
	EligibilityPackageNotApplicable  EligibilityReason = "PACKAGE_NOT_APPLICABLE"
	EligibilityOutsideValidityWindow EligibilityReason = "OUTSIDE_VALIDITY_WINDOW"
	EligibilityMinBookingsNotMet     EligibilityReason = "MIN_BOOKINGS_NOT_MET"
)

type EligibilityResult struct {
	Eligible bool              `json:"eligible"`
	Reason   EligibilityReason `json:"reason"`
}
