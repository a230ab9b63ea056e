package http

import (
	"context"
	"net/http"
	"strings"

	"homestay-booking/internal/config"
	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/security"

	"github.com/gorilla/mux"
)

type claimsKey struct{}

func withClaims(ctx context.Context, claims *security.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the authenticated caller, or nil on public routes.
func ClaimsFromContext(ctx context.Context) *security.UserClaims {
	claims, _ := ctx.Value(claimsKey{}).(*security.UserClaims)
	return claims
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		level := config.RouteSecurity(name)
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authorization token is not provided", Code: "UNAUTHENTICATED"})
			return
		}
		claims, err := s.deps.Tokens.ValidateToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "UNAUTHENTICATED"})
			return
		}
		if level == config.SecurityStaff && !claims.HasRole(security.RoleStaff) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "staff role required", Code: "FORBIDDEN"})
			return
		}
		ctx := logger.WithAttrs(withClaims(r.Context(), claims), "user_id", claims.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

func isStaff(ctx context.Context) bool {
	claims := ClaimsFromContext(ctx)
	return claims != nil && claims.HasRole(security.RoleStaff)
}

// authorizeBooking lets staff through and otherwise requires the caller to own the booking.
func authorizeBooking(ctx context.Context, b *domain.Booking) error {
	if isStaff(ctx) {
		return nil
	}
	claims := ClaimsFromContext(ctx)
	if claims == nil || claims.UserID() != b.RenterID {
		return domain.ErrUnauthorized
	}
	return nil
}

// ownedBooking loads a booking and checks the caller may act on it.
func (s *Server) ownedBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := s.deps.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
