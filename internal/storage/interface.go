package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrInvalidKey = errors.New("invalid storage key")
	ErrTooLarge   = errors.New("file exceeds size limit")
)

// ProofStorage holds proof-of-payment files. Payments only keep the opaque keys.
type ProofStorage interface {
	// GenerateUploadURL returns a one-off URL the renter PUTs the file to.
	GenerateUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error)

	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// FileExists checks if a file exists and returns its size
	FileExists(ctx context.Context, key string) (exists bool, size int64, err error)

	DeleteFile(ctx context.Context, key string) error
}

// LocalUploads is implemented by backends whose upload URLs point back at this server.
type LocalUploads interface {
	ProofStorage
	// ConsumeUploadToken reports whether token was issued for key and is still valid. Tokens are single use.
	ConsumeUploadToken(token, key string) (contentType string, ok bool)
	SaveFile(key string, reader io.Reader) error
	ReadFile(key string) (io.ReadCloser, error)
}
