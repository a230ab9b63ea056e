package http

import (
	"fmt"
	"net/http"
	"time"

	"homestay-booking/internal/domain"

	"github.com/gorilla/mux"
)

type unitRequest struct {
	Name     string `json:"name"`
	Capacity int32  `json:"capacity"`
}

type packageRequest struct {
	Name             string   `json:"name"`
	UnitIDs          []string `json:"unit_ids"`
	WeekdayRateCents int64    `json:"weekday_rate_cents"`
	WeekendRateCents int64    `json:"weekend_rate_cents"`
}

type stayRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type promoRequest struct {
	Code           string              `json:"code"`
	PackageIDs     []string            `json:"package_ids"`
	StartDate      string              `json:"start_date"`
	EndDate        string              `json:"end_date"`
	DiscountType   domain.DiscountType `json:"discount_type"`
	DiscountAmount int64               `json:"discount_amount"`
	MinBookings    int32               `json:"min_bookings"`
	IsActive       bool                `json:"is_active"`
}

type eligibilityResponse struct {
	Promo       *domain.Promo            `json:"promo"`
	Eligibility domain.EligibilityResult `json:"eligibility"`
}

func (s *Server) saveUnit(w http.ResponseWriter, r *http.Request) {
	var body unitRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	unit := &domain.LodgingUnit{ID: mux.Vars(r)["id"], Name: body.Name, Capacity: body.Capacity}
	if err := s.deps.Catalog.SaveUnit(r.Context(), unit); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (s *Server) savePackage(w http.ResponseWriter, r *http.Request) {
	var body packageRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	pkg := &domain.Package{
		ID:               mux.Vars(r)["id"],
		Name:             body.Name,
		UnitIDs:          body.UnitIDs,
		WeekdayRateCents: body.WeekdayRateCents,
		WeekendRateCents: body.WeekendRateCents,
	}
	if err := s.deps.Catalog.SavePackage(r.Context(), pkg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) blockUnit(w http.ResponseWriter, r *http.Request) {
	s.changeBlock(w, r, true)
}

func (s *Server) unblockUnit(w http.ResponseWriter, r *http.Request) {
	s.changeBlock(w, r, false)
}

func (s *Server) changeBlock(w http.ResponseWriter, r *http.Request, block bool) {
	var body stayRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	stay, err := domain.ParseStay(body.CheckIn, body.CheckOut)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unitID := mux.Vars(r)["id"]
	if block {
		err = s.deps.Ledger.Block(r.Context(), unitID, stay)
	} else {
		err = s.deps.Ledger.Unblock(r.Context(), unitID, stay)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) savePromo(w http.ResponseWriter, r *http.Request) {
	var body promoRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDate("end_date", body.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	promo := &domain.Promo{
		ID:             mux.Vars(r)["id"],
		Code:           body.Code,
		PackageIDs:     body.PackageIDs,
		StartDate:      start,
		EndDate:        end,
		DiscountType:   body.DiscountType,
		DiscountAmount: body.DiscountAmount,
		MinBookings:    body.MinBookings,
		IsActive:       body.IsActive,
	}
	if err := s.deps.Promos.SavePromo(r.Context(), promo); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promo)
}

func (s *Server) listPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := s.deps.Promos.ListActivePromos(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if promos == nil {
		promos = []domain.Promo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"promos": promos})
}

// promoEligibility checks a code for the caller. booking_date is the check-in date and defaults to today.
func (s *Server) promoEligibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	packageID := q.Get("package_id")
	if packageID == "" {
		writeError(w, r, fmt.Errorf("%w: package_id is required", domain.ErrValidation))
		return
	}
	date := domain.TruncateDate(s.deps.Clock())
	if raw := q.Get("booking_date"); raw != "" {
		parsed, err := parseDate("booking_date", raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		date = parsed
	}

	renterID := ClaimsFromContext(r.Context()).UserID()
	promo, result, err := s.deps.Promos.ResolvePromo(r.Context(), mux.Vars(r)["code"], packageID, date, renterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{Promo: promo, Eligibility: result})
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, field, raw)
	}
	return t, nil
}
