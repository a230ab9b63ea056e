package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/service"

	"github.com/gorilla/mux"
)

type bookingRequest struct {
	PackageID  string   `json:"package_id"`
	UnitIDs    []string `json:"unit_ids"`
	CheckIn    string   `json:"check_in"`
	CheckOut   string   `json:"check_out"`
	GuestCount int32    `json:"guest_count"`
	PromoCode  string   `json:"promo_code,omitempty"`
}

func (req bookingRequest) toService(renterID string) (service.CreateBookingRequest, error) {
	stay, err := domain.ParseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return service.CreateBookingRequest{}, err
	}
	return service.CreateBookingRequest{
		RenterID:   renterID,
		PackageID:  req.PackageID,
		UnitIDs:    req.UnitIDs,
		Stay:       stay,
		GuestCount: req.GuestCount,
		PromoCode:  req.PromoCode,
	}, nil
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type bookingListResponse struct {
	Bookings []domain.Booking `json:"bookings"`
	Total    int32            `json:"total"`
	Page     int32            `json:"page"`
	PageSize int32            `json:"page_size"`
}

func (s *Server) queryAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stay, err := domain.ParseStay(q.Get("check_in"), q.Get("check_out"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var unitIDs []string
	for _, id := range strings.Split(q.Get("unit_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			unitIDs = append(unitIDs, id)
		}
	}
	if len(unitIDs) == 0 {
		writeError(w, r, fmt.Errorf("%w: unit_ids is required", domain.ErrValidation))
		return
	}

	cells, err := s.deps.Ledger.Query(r.Context(), unitIDs, stay)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// owners stay private on the public calendar
	for i := range cells {
		cells[i].BookingID = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": cells})
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.toService(ClaimsFromContext(r.Context()).UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	quote, err := s.deps.Bookings.Quote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.toService(ClaimsFromContext(r.Context()).UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.deps.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.ownedBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	renterID := ClaimsFromContext(r.Context()).UserID()
	if other := q.Get("renter_id"); other != "" && other != renterID {
		if !isStaff(r.Context()) {
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		renterID = other
	}
	status := strings.ToUpper(q.Get("status"))
	if status != "" && !domain.BookingStatus(status).IsValid() {
		writeError(w, r, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status))
		return
	}
	page := queryInt32(q.Get("page"), 1)
	pageSize := queryInt32(q.Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	bookings, total, err := s.deps.Bookings.ListBookingsByRenter(r.Context(), renterID, status, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	writeJSON(w, http.StatusOK, bookingListResponse{Bookings: bookings, Total: total, Page: page, PageSize: pageSize})
}

func queryInt32(raw string, fallback int32) int32 {
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 1 {
		return fallback
	}
	return int32(n)
}

func (s *Server) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.ownedBooking(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	var body reasonRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, err)
			return
		}
	}
	b, err := s.deps.Bookings.CancelBooking(r.Context(), id, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) confirmBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.ConfirmBooking)
}

func (s *Server) completeBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.CompleteBooking)
}

func (s *Server) expireBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.ExpireBooking)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) (*domain.Booking, error)) {
	b, err := apply(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) reconcileBooking(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Bookings.ReconcileBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
