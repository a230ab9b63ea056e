// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityRenter                      // Any valid access token
	SecurityStaff                       // Access token carrying the staff role
)

// EndpointSecurityConfig maps HTTP route names to their required security level.
// Routes missing from the map are treated as SecurityStaff.
var EndpointSecurityConfig = map[string]SecurityLevel{
	"health": SecurityPublic,

	// Availability and pricing
	"availability.query": SecurityPublic,
	"quote":              SecurityRenter,
	"promo.eligibility":  SecurityRenter,

	// Bookings
	"bookings.create":    SecurityRenter,
	"bookings.list":      SecurityRenter,
	"bookings.get":       SecurityRenter,
	"bookings.cancel":    SecurityRenter,
	"bookings.confirm":   SecurityStaff,
	"bookings.complete":  SecurityStaff,
	"bookings.expire":    SecurityStaff,
	"bookings.reconcile": SecurityStaff,

	// Payments
	"payments.submit":     SecurityRenter,
	"payments.list":       SecurityRenter,
	"payments.proof":      SecurityRenter,
	"payments.upload_url": SecurityRenter,
	"payments.verify":     SecurityStaff,
	"payments.reject":     SecurityStaff,

	// Proof uploads use the signed URL handed out by payments.upload_url
	"uploads.put": SecurityPublic,
	"uploads.get": SecurityRenter,

	// Catalog and promotions
	"units.save":    SecurityStaff,
	"units.block":   SecurityStaff,
	"units.unblock": SecurityStaff,
	"packages.save": SecurityStaff,
	"promos.save":   SecurityStaff,
	"promos.list":   SecurityPublic,
}

// RouteSecurity returns the level required by a named route.
func RouteSecurity(name string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[name]; ok {
		return level
	}
	return SecurityStaff
}
