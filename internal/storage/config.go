package storage

import (
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Config holds storage configuration
type Config struct {
	Type         string   // "mock"
	MockDir      string   // Directory for mock storage
	BaseURL      string   // Server base URL for generating mock URLs
	AllowedTypes []string // Accepted proof content types
	MaxBytes     int64
}

var defaultAllowedTypes = []string{"image/jpeg", "image/png", "application/pdf"}

func (c Config) Allows(contentType string) bool {
	allowed := c.AllowedTypes
	if len(allowed) == 0 {
		allowed = defaultAllowedTypes
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, t := range allowed {
		if strings.EqualFold(t, mediaType) {
			return true
		}
	}
	return false
}

// ProofKey builds a fresh storage key for a booking's proof file.
func ProofKey(bookingID, contentType string) string {
	ext := ".bin"
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		ext = ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		ext = ".png"
	case strings.HasPrefix(contentType, "application/pdf"):
		ext = ".pdf"
	}
	return path.Join("proofs", bookingID, fmt.Sprintf("%s%s", uuid.NewString(), ext))
}

// BookingOfKey returns the booking id embedded in a proof key, or "" for foreign keys.
func BookingOfKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "proofs" || parts[1] == "" {
		return ""
	}
	return parts[1]
}
