package http

import (
	"net/http"
	"time"

	"homestay-booking/internal/logger"
	"homestay-booking/internal/security"
	"homestay-booking/internal/service"
	"homestay-booking/internal/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Dependencies struct {
	Bookings service.BookingService
	Payments service.PaymentService
	Promos   service.PromoService
	Catalog  service.CatalogService
	Ledger   service.AvailabilityLedger
	Tokens   security.TokenManager
	// Proofs is required. When it also implements storage.LocalUploads the upload and
	// download endpoints are served by this process.
	Proofs        storage.ProofStorage
	StorageConfig storage.Config
	URLExpiry     time.Duration
	Clock         func() time.Time
}

type Server struct {
	deps Dependencies
}

func NewServer(deps Dependencies) *Server {
	if deps.URLExpiry <= 0 {
		deps.URLExpiry = 15 * time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Server{deps: deps}
}

// Router builds the API router. Every route is named; the name selects its security level.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogger, s.recoverer, s.authenticate)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet).Name("health")

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/availability", s.queryAvailability).Methods(http.MethodGet).Name("availability.query")
	api.HandleFunc("/quotes", s.quote).Methods(http.MethodPost).Name("quote")
	api.HandleFunc("/promos", s.listPromos).Methods(http.MethodGet).Name("promos.list")
	api.HandleFunc("/promos/{code}/eligibility", s.promoEligibility).Methods(http.MethodGet).Name("promo.eligibility")
	api.HandleFunc("/promos/{id}", s.savePromo).Methods(http.MethodPut).Name("promos.save")

	api.HandleFunc("/bookings", s.createBooking).Methods(http.MethodPost).Name("bookings.create")
	api.HandleFunc("/bookings", s.listBookings).Methods(http.MethodGet).Name("bookings.list")
	api.HandleFunc("/bookings/{id}", s.getBooking).Methods(http.MethodGet).Name("bookings.get")
	api.HandleFunc("/bookings/{id}/cancel", s.cancelBooking).Methods(http.MethodPost).Name("bookings.cancel")
	api.HandleFunc("/bookings/{id}/confirm", s.confirmBooking).Methods(http.MethodPost).Name("bookings.confirm")
	api.HandleFunc("/bookings/{id}/complete", s.completeBooking).Methods(http.MethodPost).Name("bookings.complete")
	api.HandleFunc("/bookings/{id}/expire", s.expireBooking).Methods(http.MethodPost).Name("bookings.expire")
	api.HandleFunc("/bookings/{id}/reconcile", s.reconcileBooking).Methods(http.MethodPost).Name("bookings.reconcile")

	api.HandleFunc("/bookings/{id}/payments", s.submitPayment).Methods(http.MethodPost).Name("payments.submit")
	api.HandleFunc("/bookings/{id}/payments", s.listPayments).Methods(http.MethodGet).Name("payments.list")
	api.HandleFunc("/bookings/{id}/proof-uploads", s.proofUploadURL).Methods(http.MethodPost).Name("payments.upload_url")
	api.HandleFunc("/payments/{id}/proofs", s.attachProof).Methods(http.MethodPost).Name("payments.proof")
	api.HandleFunc("/payments/{id}/verify", s.verifyPayment).Methods(http.MethodPost).Name("payments.verify")
	api.HandleFunc("/payments/{id}/reject", s.rejectPayment).Methods(http.MethodPost).Name("payments.reject")

	api.HandleFunc("/units/{id}", s.saveUnit).Methods(http.MethodPut).Name("units.save")
	api.HandleFunc("/units/{id}/block", s.blockUnit).Methods(http.MethodPost).Name("units.block")
	api.HandleFunc("/units/{id}/unblock", s.unblockUnit).Methods(http.MethodPost).Name("units.unblock")
	api.HandleFunc("/packages/{id}", s.savePackage).Methods(http.MethodPut).Name("packages.save")

	if local, ok := s.deps.Proofs.(storage.LocalUploads); ok {
		s.registerProofRoutes(api, local)
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "Handler panic", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "INTERNAL"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requestLogger tags the request context with an id that every context-aware log line carries.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logger.WithAttrs(r.Context(), "request_id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		route := ""
		if current := mux.CurrentRoute(r); current != nil {
			route = current.GetName()
		}
		logger.InfoContext(ctx, "HTTP request", "method", r.Method, "route", route, "status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
