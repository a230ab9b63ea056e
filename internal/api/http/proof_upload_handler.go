package http

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"homestay-booking/internal/logger"
	"homestay-booking/internal/storage"

	"github.com/gorilla/mux"
)

// ProofUploadHandler serves the upload and download URLs handed out by local proof storage
type ProofUploadHandler struct {
	storage   storage.LocalUploads
	cfg       storage.Config
	authorize func(ctx context.Context, bookingID string) error
}

// NewProofUploadHandler creates a new upload handler
func NewProofUploadHandler(s storage.LocalUploads, cfg storage.Config, authorize func(ctx context.Context, bookingID string) error) *ProofUploadHandler {
	return &ProofUploadHandler{
		storage:   s,
		cfg:       cfg,
		authorize: authorize,
	}
}

// HandleUpload handles HTTP PUT requests to the one-off upload URLs
func (h *ProofUploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}

	granted, ok := h.storage.ConsumeUploadToken(mux.Vars(r)["token"], key)
	if !ok {
		http.Error(w, "Upload URL is invalid or expired", http.StatusForbidden)
		return
	}

	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || contentType != granted || !h.cfg.Allows(contentType) {
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	if err := h.storage.SaveFile(key, r.Body); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.Error("Failed to save proof", "key", key, "error", err)
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	// Return success (mimic S3 response)
	w.Header().Set("ETag", `"mock-etag-success"`)
	w.WriteHeader(http.StatusOK)
}

// HandleDownload streams a stored proof to the booking's renter or to staff
func (h *ProofUploadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	bookingID := storage.BookingOfKey(key)
	if bookingID == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}
	if err := h.authorize(r.Context(), bookingID); err != nil {
		writeError(w, r, err)
		return
	}

	file, err := h.storage.ReadFile(key)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch filepath.Ext(key) {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	case ".pdf":
		contentType = "application/pdf"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(w, file); err != nil {
		logger.Warn("Proof download interrupted", "key", key, "error", err)
	}
}

// registerProofRoutes exposes the local proof storage endpoints
func (s *Server) registerProofRoutes(router *mux.Router, local storage.LocalUploads) {
	handler := NewProofUploadHandler(local, s.deps.StorageConfig, func(ctx context.Context, bookingID string) error {
		_, err := s.ownedBooking(ctx, bookingID)
		return err
	})
	router.HandleFunc("/upload/{token}", handler.HandleUpload).Methods(http.MethodPut).Name("uploads.put")
	router.HandleFunc("/download/{hash}", handler.HandleDownload).Methods(http.MethodGet).Name("uploads.get")
}
