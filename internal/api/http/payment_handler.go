package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/storage"

	"github.com/gorilla/mux"
)

type submitPaymentRequest struct {
	AmountCents int64                `json:"amount_cents"`
	Method      domain.PaymentMethod `json:"method"`
	ProofRef    string               `json:"proof_ref,omitempty"`
}

type proofRequest struct {
	ProofRef string `json:"proof_ref"`
}

type uploadURLRequest struct {
	ContentType string `json:"content_type"`
}

type uploadURLResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type verifyResponse struct {
	Payment *domain.Payment `json:"payment"`
	Booking *domain.Booking `json:"booking"`
}

// checkProof accepts only keys minted for this booking that have actually been uploaded.
func (s *Server) checkProof(ctx context.Context, bookingID, ref string) error {
	if storage.BookingOfKey(ref) != bookingID {
		return fmt.Errorf("%w: proof %q does not belong to booking %s", domain.ErrValidation, ref, bookingID)
	}
	exists, _, err := s.deps.Proofs.FileExists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: proof %q has not been uploaded", domain.ErrValidation, ref)
	}
	return nil
}

func (s *Server) submitPayment(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]
	if _, err := s.ownedBooking(r.Context(), bookingID); err != nil {
		writeError(w, r, err)
		return
	}
	var body submitPaymentRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.ProofRef != "" {
		if err := s.checkProof(r.Context(), bookingID, body.ProofRef); err != nil {
			writeError(w, r, err)
			return
		}
	}
	p, err := s.deps.Payments.SubmitPayment(r.Context(), bookingID, body.AmountCents, body.Method, body.ProofRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]
	if _, err := s.ownedBooking(r.Context(), bookingID); err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := s.deps.Payments.ListPayments(r.Context(), bookingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (s *Server) proofUploadURL(w http.ResponseWriter, r *http.Request) {
	b, err := s.ownedBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !b.Status.HoldsCells() {
		writeError(w, r, fmt.Errorf("%w: booking %s is %s", domain.ErrBookingNotPayable, b.ID, b.Status))
		return
	}
	var body uploadURLRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if !s.deps.StorageConfig.Allows(body.ContentType) {
		writeError(w, r, fmt.Errorf("%w: content type %q is not accepted", domain.ErrValidation, body.ContentType))
		return
	}

	key := storage.ProofKey(b.ID, body.ContentType)
	url, err := s.deps.Proofs.GenerateUploadURL(r.Context(), key, body.ContentType, s.deps.URLExpiry)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadURLResponse{Key: key, UploadURL: url, ExpiresAt: s.deps.Clock().Add(s.deps.URLExpiry).UTC()})
}

func (s *Server) attachProof(w http.ResponseWriter, r *http.Request) {
	paymentID := mux.Vars(r)["id"]
	p, err := s.deps.Payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ownedBooking(r.Context(), p.BookingID); err != nil {
		writeError(w, r, err)
		return
	}
	var body proofRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkProof(r.Context(), p.BookingID, body.ProofRef); err != nil {
		writeError(w, r, err)
		return
	}
	p, err = s.deps.Payments.AttachProof(r.Context(), paymentID, body.ProofRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	staffID := ClaimsFromContext(r.Context()).UserID()
	p, b, err := s.deps.Payments.VerifyPayment(r.Context(), mux.Vars(r)["id"], staffID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Payment: p, Booking: b})
}

func (s *Server) rejectPayment(w http.ResponseWriter, r *http.Request) {
	var body reasonRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	staffID := ClaimsFromContext(r.Context()).UserID()
	p, err := s.deps.Payments.RejectPayment(r.Context(), mux.Vars(r)["id"], staffID, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
